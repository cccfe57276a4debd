package minicap

import (
	"encoding/binary"
	"fmt"
)

// BannerSize is the fixed size of the header sent once per connection.
const BannerSize = 24

// Quirk flags advertised in the last banner byte.
const (
	QuirkDumb          uint8 = 1
	QuirkAlwaysUpright uint8 = 2
	QuirkTear          uint8 = 4
)

// Banner describes the capture daemon and the projection it streams.
// Nothing in the ingestion path depends on these values; they are kept
// for reporting.
type Banner struct {
	Version       uint8  `json:"version"`
	Length        uint8  `json:"length"`
	PID           uint32 `json:"pid"`
	RealWidth     uint32 `json:"real_width"`
	RealHeight    uint32 `json:"real_height"`
	VirtualWidth  uint32 `json:"virtual_width"`
	VirtualHeight uint32 `json:"virtual_height"`
	Orientation   int    `json:"orientation"` // degrees
	Quirks        uint8  `json:"quirks"`
}

// ParseBanner decodes the 24 banner bytes.
func ParseBanner(b []byte) (Banner, error) {
	if len(b) < BannerSize {
		return Banner{}, fmt.Errorf("banner too short: %d bytes", len(b))
	}
	le := binary.LittleEndian
	return Banner{
		Version:       b[0],
		Length:        b[1],
		PID:           le.Uint32(b[2:6]),
		RealWidth:     le.Uint32(b[6:10]),
		RealHeight:    le.Uint32(b[10:14]),
		VirtualWidth:  le.Uint32(b[14:18]),
		VirtualHeight: le.Uint32(b[18:22]),
		Orientation:   int(b[22]) * 90,
		Quirks:        b[23],
	}, nil
}

// MarshalBinary encodes the banner in wire layout.
func (b Banner) MarshalBinary() ([]byte, error) {
	buf := make([]byte, BannerSize)
	le := binary.LittleEndian
	buf[0] = b.Version
	buf[1] = b.Length
	if buf[1] == 0 {
		buf[1] = BannerSize
	}
	le.PutUint32(buf[2:6], b.PID)
	le.PutUint32(buf[6:10], b.RealWidth)
	le.PutUint32(buf[10:14], b.RealHeight)
	le.PutUint32(buf[14:18], b.VirtualWidth)
	le.PutUint32(buf[18:22], b.VirtualHeight)
	buf[22] = uint8(b.Orientation / 90)
	buf[23] = b.Quirks
	return buf, nil
}

func (b Banner) Dumb() bool          { return b.Quirks&QuirkDumb != 0 }
func (b Banner) AlwaysUpright() bool { return b.Quirks&QuirkAlwaysUpright != 0 }
func (b Banner) Tear() bool          { return b.Quirks&QuirkTear != 0 }
