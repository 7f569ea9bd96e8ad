package rfboard

import (
	"errors"
	"io"
)

// MaxSSE bounds the size of one monitor event.
const MaxSSE = 512 << 10

var ErrSSETooLarge = errors.New("sse event too large")

// WriteSSE writes one monitor event: the payload followed by an empty line.
func WriteSSE(w io.Writer, payload []byte) error {
	frame := make([]byte, 0, len(payload)+2)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')

	_, err := w.Write(frame)
	return err
}

// ReadSSE reads one monitor event written by WriteSSE.
// It reads byte per byte so nothing of the next event is consumed.
func ReadSSE(r io.Reader) ([]byte, error) {
	buf := make([]byte, 0, 4<<10)
	b := make([]byte, 1)

	var lf uint8
	for {
		_, err := io.ReadFull(r, b)
		if err != nil {
			return buf, err
		}

		if b[0] == '\n' {
			lf++
			if lf == 2 {
				return buf[:len(buf)-1], nil
			}
		} else {
			lf = 0
		}

		if len(buf) == MaxSSE {
			return buf, ErrSSETooLarge
		}
		buf = append(buf, b[0])
	}
}
