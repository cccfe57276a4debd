package minicap

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Encoder writes the capture protocol. It backs the simulator and tests.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteBanner writes the 24-byte banner.
func (e *Encoder) WriteBanner(b Banner) error {
	buf, err := b.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("write banner: %w", err)
	}
	return nil
}

// WriteFrame writes one length-prefixed frame.
func (e *Encoder) WriteFrame(frame []byte) error {
	if uint64(len(frame)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(frame)))
	if _, err := e.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if len(frame) == 0 {
		return nil
	}
	if _, err := e.w.Write(frame); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}
