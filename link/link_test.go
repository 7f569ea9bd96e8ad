package link

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLine delivers scripted chunks, one per Read call, then behaves like a read timeout.
type fakeLine struct {
	mu      sync.Mutex
	chunks  [][]byte
	written bytes.Buffer
	closed  bool
}

func (l *fakeLine) Feed(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chunks = append(l.chunks, []byte(s))
}

func (l *fakeLine) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.chunks) == 0 {
		return 0, nil
	}

	n := copy(p, l.chunks[0])
	if n < len(l.chunks[0]) {
		l.chunks[0] = l.chunks[0][n:]
	} else {
		l.chunks = l.chunks[1:]
	}
	return n, nil
}

func (l *fakeLine) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written.Write(p)
}

func (l *fakeLine) ResetInputBuffer() error  { return nil }
func (l *fakeLine) ResetOutputBuffer() error { return nil }

func (l *fakeLine) Close() error {
	l.closed = true
	return nil
}

func newFake(t *testing.T) (*Port, *fakeLine) {
	l := &fakeLine{}
	p, err := newPort("/dev/rfcomm0", l)
	require.NoError(t, err)
	return p, l
}

func TestPort_ReadFrames(t *testing.T) {
	p, l := newFake(t)
	assert.Equal(t, "/dev/rfcomm0", p.Name())

	frames, err := p.ReadFrames()
	require.NoError(t, err)
	assert.Empty(t, frames)

	l.Feed("SET_FREQ:433\r\nGET_STA")
	frames, err = p.ReadFrames()
	require.NoError(t, err)
	assert.Equal(t, []string{"SET_FREQ:433"}, frames)

	l.Feed("TUS\n\n")
	frames, err = p.ReadFrames()
	require.NoError(t, err)
	assert.Equal(t, []string{"GET_STATUS", ""}, frames)
}

func TestPort_ReadFrames_LargeBurst(t *testing.T) {
	p, l := newFake(t)

	var burst strings.Builder
	for range 20 {
		burst.WriteString("GET_STATUS\r\n")
	}
	l.Feed(burst.String())

	frames, err := p.ReadFrames()
	require.NoError(t, err)
	assert.Len(t, frames, 20)
}

func TestPort_ReadFrames_TooLong(t *testing.T) {
	p, l := newFake(t)

	l.Feed(strings.Repeat("A", MaxFrameLength+10))
	frames, err := p.ReadFrames()
	assert.ErrorIs(t, err, ErrFrameTooLong)
	assert.Empty(t, frames)

	l.Feed("AAAA\nPING\n")
	frames, err = p.ReadFrames()
	require.NoError(t, err)
	assert.Equal(t, []string{"PING"}, frames)
}

func TestPort_WriteFrame(t *testing.T) {
	p, l := newFake(t)

	require.NoError(t, p.WriteFrame("OK SET_FREQ"))
	require.NoError(t, p.WriteFrame("ERR unknown"))
	assert.Equal(t, "OK SET_FREQ\r\nERR unknown\r\n", l.written.String())

	assert.ErrorIs(t, p.WriteFrame("two\nlines"), ErrInvalidFrame)

	require.NoError(t, p.Close())
	assert.True(t, l.closed)
}
