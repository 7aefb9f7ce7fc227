// Package transport implements length-prefixed framing and the RSA/AES
// secure channel shared by both listeners.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameBytes is the payload cap used when none is configured.
const DefaultMaxFrameBytes = 1 << 20

const headerLen = 4

// ErrShortFrame is returned when the peer closes mid-frame.
var ErrShortFrame = errors.New("short frame")

// ErrFrameTooLarge is returned for a negative or oversized length prefix.
var ErrFrameTooLarge = errors.New("frame too large")

// WriteFrame writes payload preceded by its little-endian 32-bit length.
//
// Postcondition: header and payload are written in a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, headerLen+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerLen:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// ReadFrame reads exactly one frame.
//
// Postcondition: returns io.EOF if the stream ended cleanly before a header,
// ErrShortFrame if it ended inside a frame, ErrFrameTooLarge if the declared
// length is negative or exceeds maxBytes.
func ReadFrame(r io.Reader, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}

	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}

	n := int32(binary.LittleEndian.Uint32(header[:]))
	if n < 0 || int64(n) > int64(maxBytes) {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}
	return payload, nil
}
