package minicap

import (
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is wrapped by a ProtocolError when a length prefix
// exceeds the decoder's configured maximum frame size.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// ProtocolError reports a violation of the banner/length/payload framing,
// including a stream that ends before a complete unit was read.
type ProtocolError struct {
	Op  string // "banner", "length" or "payload"
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("minicap protocol error reading %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IOError reports a transport failure other than end of stream.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("minicap transport error reading %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// classify maps a read error onto the decoder's error taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ProtocolError{Op: op, Err: err}
	}
	return &IOError{Op: op, Err: err}
}
