// Package minicap implements the capture-daemon wire protocol: a 24-byte
// banner followed by an unbounded sequence of frames, each prefixed with
// its length as a little-endian uint32.
package minicap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultMaxFrameSize bounds a single frame unless overridden.
const DefaultMaxFrameSize uint32 = 32 << 20

const readBufferSize = 64 << 10

// Decoder reads the banner and frames from a capture stream. It is not
// safe for concurrent use; the ingestion loop owns it.
type Decoder struct {
	r            *bufio.Reader
	maxFrameSize uint32
	banner       *Banner
	lenBuf       [4]byte
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxFrameSize sets the largest accepted length prefix. Zero disables
// the check and trusts the daemon with arbitrary allocations.
func WithMaxFrameSize(n uint32) Option {
	return func(d *Decoder) { d.maxFrameSize = n }
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		r:            bufio.NewReaderSize(r, readBufferSize),
		maxFrameSize: DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ReadBanner consumes the 24-byte banner. After the first successful call
// it returns the cached banner without touching the stream.
func (d *Decoder) ReadBanner() (Banner, error) {
	if d.banner != nil {
		return *d.banner, nil
	}

	buf := make([]byte, BannerSize)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return Banner{}, classify("banner", err)
	}

	banner, err := ParseBanner(buf)
	if err != nil {
		return Banner{}, &ProtocolError{Op: "banner", Err: err}
	}
	d.banner = &banner
	return banner, nil
}

// Banner returns the banner if it has been consumed.
func (d *Decoder) Banner() (Banner, bool) {
	if d.banner == nil {
		return Banner{}, false
	}
	return *d.banner, true
}

// ReadFrame returns the next frame payload. The banner is consumed first
// if it has not been read yet. A zero-length frame yields an empty,
// non-nil slice. Each call allocates a fresh buffer, so returned frames
// may be shared without copying.
func (d *Decoder) ReadFrame() ([]byte, error) {
	if d.banner == nil {
		if _, err := d.ReadBanner(); err != nil {
			return nil, err
		}
	}

	if _, err := io.ReadFull(d.r, d.lenBuf[:]); err != nil {
		return nil, classify("length", err)
	}
	n := binary.LittleEndian.Uint32(d.lenBuf[:])
	if d.maxFrameSize > 0 && n > d.maxFrameSize {
		return nil, &ProtocolError{
			Op:  "length",
			Err: fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, n, d.maxFrameSize),
		}
	}

	frame := make([]byte, n)
	if _, err := io.ReadFull(d.r, frame); err != nil {
		return nil, classify("payload", err)
	}
	return frame, nil
}
