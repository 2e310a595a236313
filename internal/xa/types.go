// Package xa defines the CD-ROM XA sector vocabulary shared by the scanner,
// extractor, manifest codec and multiplexer: sector sizes and sync pattern,
// the duplicated subheader with its submode flags, the recovered per-stream
// layout, and the error taxonomy.
package xa

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Entry is the recovered layout of one logical stream segment inside an
// interleaved source. Offsets are byte offsets into the source.
type Entry struct {
	// Name is the output file name, assigned once scanning completes.
	Name string

	File    uint8
	Channel uint8

	// Begin is the offset of the entry's first sector. End is exclusive and
	// points at the slot following the entry's last claimed chunk, so for
	// strided entries it can run past the end of a short final group.
	Begin int64
	End   int64

	// Stride is the number of other streams' sectors between two chunks of
	// this stream. Zero means the stream was a single contiguous run.
	Stride int

	// ChunkLength is the number of consecutive sectors per chunk.
	ChunkLength int

	// Sectors counts every sector claimed by the entry, padding included.
	Sectors int

	// NullTermination counts trailing padding sectors.
	NullTermination int

	// NullSubheader holds the tags of the first padding sector as read from
	// the source, before any normalization.
	NullSubheader    Subheader
	HasNullSubheader bool
}

// Period returns the interleave period in slots: this stream's chunk plus
// the other streams' sectors in between.
func (e Entry) Period() int {
	if e.ChunkLength < 1 {
		return e.Stride + 1
	}
	return e.Stride + e.ChunkLength
}

// PayloadSectors returns the number of claimed sectors that carry payload.
func (e Entry) PayloadSectors() int {
	return e.Sectors - e.NullTermination
}

// PayloadLimit returns the offset at which real payload ends, excluding the
// trailing padding chunks.
func (e Entry) PayloadLimit(sectorSize int) int64 {
	chunk := e.ChunkLength
	if chunk < 1 {
		chunk = 1
	}
	nullChunks := e.NullTermination / chunk
	return e.End - int64(nullChunks)*int64(e.Period())*int64(sectorSize)
}

// Layout is the result of scanning one interleaved source.
type Layout struct {
	Source     string
	SectorSize int
	Entries    []Entry
}

// Stem returns the source's base name without extension.
func (l *Layout) Stem() string {
	base := filepath.Base(l.Source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// AssignNames names every entry by creation order. The ordinal is
// zero-padded to the width of the largest ordinal.
func (l *Layout) AssignNames() {
	if len(l.Entries) == 0 {
		return
	}
	width := len(strconv.Itoa(len(l.Entries) - 1))
	stem := l.Stem()
	for i := range l.Entries {
		e := &l.Entries[i]
		e.Name = fmt.Sprintf("%s_FN-%d_%0*d.xa", stem, e.File, width, i)
	}
}

// TypeName returns the manifest type tag for a sector size: "xa" for
// data-only sectors and "xacd" for raw sectors.
func TypeName(sectorSize int) string {
	if sectorSize == RawSectorSize {
		return "xacd"
	}
	return "xa"
}
