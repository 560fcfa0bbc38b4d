package mux

import (
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the id byte plus the length byte.
	HeaderSize = 2
	// MaxPayload is the largest payload a single frame can carry.
	MaxPayload = 255
)

var (
	// ErrDesync is returned for a header announcing an empty payload.
	ErrDesync = errors.New("mux: frame out of sync")
	// ErrFrameSize is returned when encoding an empty or oversized payload.
	ErrFrameSize = errors.New("mux: invalid frame size")
)

// Frame is one block addressed to a port.
type Frame struct {
	ID   uint8
	Data []byte
}

// Encode returns the wire form of f.
func (f Frame) Encode() ([]byte, error) {
	if len(f.Data) == 0 || len(f.Data) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameSize, len(f.Data))
	}
	buf := make([]byte, HeaderSize+len(f.Data))
	buf[0] = f.ID
	buf[1] = uint8(len(f.Data))
	copy(buf[HeaderSize:], f.Data)
	return buf, nil
}

// ReadFrame reads one frame from r. On ErrDesync the returned frame carries
// the id from the bad header.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, fmt.Errorf("read header: %w", err)
	}

	f := Frame{ID: hdr[0]}
	if hdr[1] == 0 {
		return f, fmt.Errorf("%w: zero length for id %d", ErrDesync, f.ID)
	}

	f.Data = make([]byte, hdr[1])
	if _, err := io.ReadFull(r, f.Data); err != nil {
		return Frame{}, fmt.Errorf("read payload: %w", err)
	}
	return f, nil
}

// Split cuts p into frames of at most MaxPayload bytes for port id.
func Split(id uint8, p []byte) []Frame {
	var frames []Frame
	for len(p) > 0 {
		n := min(len(p), MaxPayload)
		frames = append(frames, Frame{ID: id, Data: p[:n]})
		p = p[n:]
	}
	return frames
}
