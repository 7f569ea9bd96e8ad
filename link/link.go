// Package link carries text command frames over a serial line.
// The Bluetooth SPP profile is exposed by the host as an RFCOMM tty (e.g. /dev/rfcomm0).
package link

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mdouchement/logger"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	FrameEnd       = '\n'
	FrameAltEnd    = '\r'
	MaxFrameLength = 128
	DefaultBaud    = 115200

	readTimeout = 10 * time.Millisecond
)

var (
	ErrNotFound     = errors.New("device not found/plugged")
	ErrFrameTooLong = errors.New("frame too long")
	ErrInvalidFrame = errors.New("invalid frame")
)

type line interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	ResetOutputBuffer() error
	Close() error
}

type Port struct {
	sync    sync.Mutex
	pname   string
	line    line
	log     logger.Logger
	rbuf    []byte
	pending []byte
	discard bool
}

// OpenAuto opens the first port matching vid and pid.
// Without vid and pid, the first RFCOMM port is selected.
func OpenAuto(vid, pid string, baud int) (*Port, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	var port *enumerator.PortDetails
	for _, p := range ports {
		if vid == "" && pid == "" {
			if strings.Contains(p.Name, "rfcomm") {
				port = p
				break
			}
			continue
		}

		if strings.EqualFold(p.VID, vid) && strings.EqualFold(p.PID, pid) {
			port = p
			break
		}
	}
	if port == nil {
		return nil, ErrNotFound
	}

	return Open(port.Name, baud)
}

func Open(port string, baud int) (*Port, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}

	sp, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("link: %s: %w", port, err)
	}

	// Reads must not block the link activity longer than a fraction of its period.
	if err = sp.SetReadTimeout(readTimeout); err != nil {
		sp.Close()
		return nil, fmt.Errorf("link: %s: %w", port, err)
	}

	return newPort(port, sp)
}

func newPort(name string, l line) (*Port, error) {
	p := &Port{
		pname: name,
		line:  l,
		rbuf:  make([]byte, MaxFrameLength),
	}

	if err := l.ResetInputBuffer(); err != nil {
		return nil, err
	}

	if err := l.ResetOutputBuffer(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Port) SetLogger(l logger.Logger) {
	p.log = l
}

func (p *Port) Name() string {
	return p.pname
}

func (p *Port) Close() error {
	if err := p.line.ResetOutputBuffer(); err != nil {
		return err
	}

	return p.line.Close()
}

// ReadFrames drains the bytes received so far and returns the complete frames, terminators stripped.
// A partial frame is kept for the next call. Frames longer than MaxFrameLength are dropped.
func (p *Port) ReadFrames() ([]string, error) {
	p.sync.Lock()
	defer p.sync.Unlock()

	for {
		n, err := p.line.Read(p.rbuf)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			break // read timeout, nothing pending
		}

		p.pending = append(p.pending, p.rbuf[:n]...)
		if n < len(p.rbuf) {
			break
		}
	}

	var frames []string
	var errs []error
	for {
		i := bytes.IndexByte(p.pending, FrameEnd)
		if i < 0 {
			break
		}

		frame := p.pending[:i]
		p.pending = p.pending[i+1:]

		if p.discard {
			// Tail of an overlong frame.
			p.discard = false
			continue
		}

		frame = bytes.TrimRight(frame, string(FrameAltEnd))
		if len(frame) > MaxFrameLength {
			errs = append(errs, fmt.Errorf("%d bytes: %w", len(frame), ErrFrameTooLong))
			continue
		}

		frames = append(frames, string(frame))
	}

	if len(p.pending) > MaxFrameLength {
		errs = append(errs, fmt.Errorf("%d bytes: %w", len(p.pending), ErrFrameTooLong))
		p.pending = p.pending[:0]
		p.discard = true
	}

	if p.log != nil {
		for _, frame := range frames {
			p.log.Debugf("<- %q", frame)
		}
	}

	return frames, errors.Join(errs...)
}

// WriteFrame sends text terminated by "\r\n".
func (p *Port) WriteFrame(text string) error {
	if strings.ContainsAny(text, "\r\n") {
		return fmt.Errorf("%q: %w", text, ErrInvalidFrame)
	}

	p.sync.Lock()
	defer p.sync.Unlock()

	frame := make([]byte, 0, len(text)+2)
	frame = append(frame, text...)
	frame = append(frame, FrameAltEnd, FrameEnd)

	n, err := p.line.Write(frame)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if n != len(frame) && p.log != nil {
		p.log.Warnf("Invalid write: %d of %d", n, len(frame))
	}

	if p.log != nil {
		p.log.Debugf("-> %q", text)
	}
	return nil
}
