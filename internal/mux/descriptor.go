package mux

import (
	"errors"
	"fmt"

	"github.com/zsiec/xastream/internal/xa"
)

// Descriptor is one multiplexer input: a payload file or a pure padding
// slot, plus the tags to stamp on its sectors.
type Descriptor struct {
	// Path is the payload file. Empty means pure padding.
	Path string

	// SectorSize is the payload file's sector size; zero means pure padding.
	SectorSize int

	// Size is the payload file's length in bytes.
	Size int64

	ChunkLength int

	// NullTermination is the number of padding chunks still emitted in
	// this slot after the file is exhausted.
	NullTermination int

	// File and Channel override the tags of every written sector. Nil keeps
	// the tags already present in the payload.
	File    *uint8
	Channel *uint8

	// NullSubheader, when set, tags the padding sectors written for this
	// descriptor.
	NullSubheader *xa.Subheader

	// Computed by Schedule: the slot index and the output sector range the
	// descriptor occupies, in output sectors.
	Slot      int
	BeginSlot int64
	EndSlot   int64
}

// IsPadding reports whether the descriptor has no payload file.
func (d *Descriptor) IsPadding() bool {
	return d.SectorSize == 0 || d.Path == ""
}

// Sectors returns the number of payload sectors.
func (d *Descriptor) Sectors() int64 {
	if d.IsPadding() {
		return 0
	}
	return d.Size / int64(d.SectorSize)
}

// Rounds returns how many interleave rounds the descriptor occupies its
// slot for: its chunks plus the trailing padding chunks.
func (d *Descriptor) Rounds() int64 {
	if d.IsPadding() {
		return 0
	}
	chunk := int64(max(d.ChunkLength, 1))
	return (d.Sectors()+chunk-1)/chunk + int64(d.NullTermination)
}

var errQueuedPadding = errors.New("padding row after the first stride window")

// Schedule validates descs against stride and fills in Slot, BeginSlot and
// EndSlot. The first descriptors fill one stride window; their chunk
// lengths must sum to at most stride. Later descriptors queue for the slot
// that frees up first, the lowest slot winning ties, and must match that
// slot's chunk length. On failure it returns the index of the offending
// descriptor.
func Schedule(descs []Descriptor, stride int) (int, error) {
	if stride < 1 {
		return 0, fmt.Errorf("%w: stride %d", xa.ErrStride, stride)
	}

	type slot struct {
		offset  int
		chunk   int
		free    int64
		padding bool
	}
	var slots []slot
	used := 0

	for i := range descs {
		d := &descs[i]
		if d.ChunkLength < 1 || d.ChunkLength > stride {
			return i, fmt.Errorf("%w: chunk %d, stride %d", xa.ErrStride, d.ChunkLength, stride)
		}

		if used < stride {
			if used+d.ChunkLength > stride {
				return i, fmt.Errorf("%w: %d sectors declared, stride %d", xa.ErrStride, used+d.ChunkLength, stride)
			}
			d.Slot = len(slots)
			d.BeginSlot = int64(used)
			d.EndSlot = d.Rounds()*int64(stride) + int64(used)
			slots = append(slots, slot{offset: used, chunk: d.ChunkLength, free: d.Rounds(), padding: d.IsPadding()})
			used += d.ChunkLength
			continue
		}

		if d.IsPadding() {
			return i, errQueuedPadding
		}
		best := -1
		for j := range slots {
			if slots[j].padding {
				continue
			}
			if best < 0 || slots[j].free < slots[best].free {
				best = j
			}
		}
		if best < 0 {
			return i, fmt.Errorf("no slot carries a payload file")
		}
		s := &slots[best]
		if d.ChunkLength != s.chunk {
			return i, fmt.Errorf("%w: chunk %d does not fit slot %d of %d sectors", xa.ErrStride, d.ChunkLength, best, s.chunk)
		}
		d.Slot = best
		d.BeginSlot = s.free*int64(stride) + int64(s.offset)
		s.free += d.Rounds()
		d.EndSlot = s.free*int64(stride) + int64(s.offset)
	}
	return -1, nil
}
