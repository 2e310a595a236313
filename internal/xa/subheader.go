package xa

import (
	"fmt"
	"strconv"
	"strings"
)

// Subheader is the 4-byte XA tag block. Every sector carries it twice.
type Subheader struct {
	File       uint8
	Channel    uint8
	Submode    uint8
	CodingInfo uint8
}

// Uint32 packs the subheader in on-disc byte order, file number first.
func (h Subheader) Uint32() uint32 {
	return uint32(h.File)<<24 | uint32(h.Channel)<<16 | uint32(h.Submode)<<8 | uint32(h.CodingInfo)
}

// SubheaderFromUint32 is the inverse of Subheader.Uint32.
func SubheaderFromUint32(v uint32) Subheader {
	return Subheader{
		File:       uint8(v >> 24),
		Channel:    uint8(v >> 16),
		Submode:    uint8(v >> 8),
		CodingInfo: uint8(v),
	}
}

// String formats the subheader as 0xHHHHHHHH, the manifest notation.
func (h Subheader) String() string {
	return fmt.Sprintf("0x%08X", h.Uint32())
}

// ParseSubheader parses the 0xHHHHHHHH manifest notation.
func ParseSubheader(s string) (Subheader, error) {
	s = strings.TrimSpace(s)
	if len(s) < 3 || (s[:2] != "0x" && s[:2] != "0X") {
		return Subheader{}, fmt.Errorf("xa: subheader %q: missing 0x prefix", s)
	}
	v, err := strconv.ParseUint(s[2:], 16, 32)
	if err != nil {
		return Subheader{}, fmt.Errorf("xa: subheader %q: %w", s, err)
	}
	return SubheaderFromUint32(uint32(v)), nil
}
