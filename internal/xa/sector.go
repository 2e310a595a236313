package xa

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Physical sector sizes.
const (
	RawSectorSize  = 2352
	DataSectorSize = 2336
)

const (
	syncSize = 12

	// rawOffset is where a data-only sector starts inside a raw one.
	rawOffset = RawSectorSize - DataSectorSize

	subheaderOffset = rawOffset
	mirrorOffset    = subheaderOffset + 4

	// Form 2 user data follows the duplicated subheader.
	codingDataOffset = subheaderOffset + 8
	codingDataSize   = 2324
)

// Submode flag bits.
const (
	SubmodeAudio = 0x04
	SubmodeEOF   = 0x80
)

// InvalidChannel is the sentinel channel some encoders write on
// non-standard padding sectors.
const InvalidChannel = 0xFF

var syncPattern = [syncSize]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// blank is an empty mode 2 sector: sync, zero address, mode byte, zero
// subheader and payload.
var blank = func() Sector {
	var s Sector
	copy(s[:], syncPattern[:])
	s[15] = 0x02
	return s
}()

// Sector holds one sector in raw layout. Data-only sectors are stored at
// offset 16 behind a blank sync and header, so tag offsets never depend on
// the physical size.
type Sector [RawSectorSize]byte

// Blank returns an empty mode 2 sector.
func Blank() Sector {
	return blank
}

// ValidSectorSize reports whether size is one of the two supported sizes.
func ValidSectorSize(size int) bool {
	return size == RawSectorSize || size == DataSectorSize
}

// DetectSectorSize classifies a source by its first bytes and total length.
func DetectSectorSize(prefix []byte, size int64) (int, error) {
	if size > 0 && size%RawSectorSize == 0 && bytes.HasPrefix(prefix, syncPattern[:]) {
		return RawSectorSize, nil
	}
	if size > 0 && size%DataSectorSize == 0 {
		return DataSectorSize, nil
	}
	return 0, &FormatError{Size: size}
}

// ReadSector reads the sector of the given physical size at off. It returns
// io.EOF when off is at or past the end of r and io.ErrUnexpectedEOF when
// only part of a sector remains.
func ReadSector(r io.ReaderAt, off int64, size int) (Sector, error) {
	s := blank
	n, err := r.ReadAt(s[RawSectorSize-size:], off)
	if n == size {
		return s, nil
	}
	if errors.Is(err, io.EOF) || err == nil {
		if n == 0 {
			return s, io.EOF
		}
		return s, io.ErrUnexpectedEOF
	}
	return s, err
}

// Bytes returns the sector at the given physical size. Writing a data-only
// sector as raw yields the blank sync and header.
func (s *Sector) Bytes(size int) []byte {
	return s[RawSectorSize-size:]
}

// Load copies a sector of the given physical size into s.
func (s *Sector) Load(b []byte) error {
	if !ValidSectorSize(len(b)) {
		return fmt.Errorf("xa: sector size %d, expected %d or %d", len(b), RawSectorSize, DataSectorSize)
	}
	*s = blank
	copy(s[RawSectorSize-len(b):], b)
	return nil
}

func (s *Sector) File() uint8       { return s[subheaderOffset] }
func (s *Sector) Channel() uint8    { return s[subheaderOffset+1] }
func (s *Sector) Submode() uint8    { return s[subheaderOffset+2] }
func (s *Sector) CodingInfo() uint8 { return s[subheaderOffset+3] }

// Mirror returns the redundant subheader copy.
func (s *Sector) Mirror() Subheader {
	return Subheader{
		File:       s[mirrorOffset],
		Channel:    s[mirrorOffset+1],
		Submode:    s[mirrorOffset+2],
		CodingInfo: s[mirrorOffset+3],
	}
}

// Subheader returns the primary subheader copy.
func (s *Sector) Subheader() Subheader {
	return Subheader{
		File:       s[subheaderOffset],
		Channel:    s[subheaderOffset+1],
		Submode:    s[subheaderOffset+2],
		CodingInfo: s[subheaderOffset+3],
	}
}

// SetSubheader writes h into both subheader copies.
func (s *Sector) SetSubheader(h Subheader) {
	for _, off := range [2]int{subheaderOffset, mirrorOffset} {
		s[off] = h.File
		s[off+1] = h.Channel
		s[off+2] = h.Submode
		s[off+3] = h.CodingInfo
	}
}

// SetFile writes the file number into both subheader copies.
func (s *Sector) SetFile(v uint8) {
	s[subheaderOffset], s[mirrorOffset] = v, v
}

// SetChannel writes the channel number into both subheader copies.
func (s *Sector) SetChannel(v uint8) {
	s[subheaderOffset+1], s[mirrorOffset+1] = v, v
}

// SetSubmode writes the submode into both subheader copies.
func (s *Sector) SetSubmode(v uint8) {
	s[subheaderOffset+2], s[mirrorOffset+2] = v, v
}

// IsAudio reports whether the submode flags the sector as audio payload.
func (s *Sector) IsAudio() bool {
	return s.Submode()&SubmodeAudio != 0
}

// IsEOF reports whether the end-of-stream submode bit is set.
func (s *Sector) IsEOF() bool {
	return s.Submode()&SubmodeEOF != 0
}

// IsInvalidTag reports whether the channel carries the 0xFF sentinel.
func (s *Sector) IsInvalidTag() bool {
	return s.Channel() == InvalidChannel
}

// IsStandardPadding reports whether the submode's low seven bits are clear,
// the channel-agnostic padding tag.
func (s *Sector) IsStandardPadding() bool {
	return s.Submode()&0x7F == 0
}

// IsSilentTerminator reports an audio sector that marks end of stream and
// carries no coding data at all. Genuine silence still has ADPCM headers, so
// only an all-zero data region is taken as termination padding.
func (s *Sector) IsSilentTerminator() bool {
	if !s.IsAudio() || !s.IsEOF() {
		return false
	}
	for _, b := range s[codingDataOffset : codingDataOffset+codingDataSize] {
		if b != 0 {
			return false
		}
	}
	return true
}

// IsPadding reports whether the sector counts as padding rather than
// payload.
func (s *Sector) IsPadding() bool {
	return !s.IsAudio() || s.IsSilentTerminator()
}

// SubmodeOffset returns the offset of the primary submode byte within a
// sector of the given physical size. The mirror follows 4 bytes later.
func SubmodeOffset(size int) int {
	return subheaderOffset + 2 - (RawSectorSize - size)
}

// Normalizer rewrites a non-standard padding sector in memory before the
// scanner interprets it. file is the number of the stream being walked.
type Normalizer func(s *Sector, file uint8)

// NormalizeSentinel is the default Normalizer: a sector tagged with the 0xFF
// channel sentinel takes the walked stream's file number and a clean
// submode, turning it into ordinary padding.
func NormalizeSentinel(s *Sector, file uint8) {
	if !s.IsInvalidTag() {
		return
	}
	s.SetFile(file)
	s.SetSubmode(0)
}
