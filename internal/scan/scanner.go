// Package scan recovers the sector layout of every logical stream inside an
// interleaved XA source without an external index.
//
// The scan is a single forward pass. Each audio sector not yet claimed by an
// entry starts a new entry, whose sectors are then walked through the rest
// of the file: a boundary probe measures the interleave stride on the first
// interruption, after which the walk hops from chunk to chunk until the tags
// stop matching. Claimed offsets live in an ordered set so no sector is ever
// attributed to two entries.
package scan

import (
	"errors"
	"io"
	"log/slog"

	"github.com/zsiec/xastream/internal/xa"
)

// DefaultMaxStride bounds how many foreign sectors the boundary probe reads
// before deciding a stream is not interleaved.
const DefaultMaxStride = 64

// Option configures a scan.
type Option func(*Scanner)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		s.log = l
	}
}

// WithNormalizer replaces the padding normalization strategy. Defaults to
// xa.NormalizeSentinel.
func WithNormalizer(n xa.Normalizer) Option {
	return func(s *Scanner) {
		s.normalize = n
	}
}

// WithMaxStride sets the boundary probe bound.
func WithMaxStride(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.maxStride = n
		}
	}
}

// Scanner walks one source. It is not safe for concurrent use.
type Scanner struct {
	log        *slog.Logger
	normalize  xa.Normalizer
	maxStride  int
	name       string
	r          io.ReaderAt
	size       int64
	sectorSize int
	step       int64
	claimed    *offsetSet
}

// Scan opens path and scans it. A source without any audio sector yields a
// layout with no entries and a nil error.
func Scan(path string, opts ...Option) (*xa.Layout, error) {
	src, err := xa.OpenSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return ScanReader(src, src.Size, path, opts...)
}

// ScanReader scans size bytes of r. name is recorded as the layout's source
// and used in errors.
func ScanReader(r io.ReaderAt, size int64, name string, opts ...Option) (*xa.Layout, error) {
	prefix := make([]byte, 12)
	n, err := r.ReadAt(prefix, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &xa.IOError{Op: "read", Path: name, Err: err}
	}

	sectorSize, err := xa.DetectSectorSize(prefix[:n], size)
	if err != nil {
		var fe *xa.FormatError
		if errors.As(err, &fe) {
			fe.Path = name
		}
		return nil, err
	}

	s := &Scanner{
		log:        slog.Default(),
		normalize:  xa.NormalizeSentinel,
		maxStride:  DefaultMaxStride,
		name:       name,
		r:          r,
		size:       size,
		sectorSize: sectorSize,
		step:       int64(sectorSize),
		claimed:    newOffsetSet(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "scanner", "source", name)

	entries, err := s.run()
	if err != nil {
		return nil, err
	}

	layout := &xa.Layout{Source: name, SectorSize: sectorSize, Entries: entries}
	layout.AssignNames()
	s.log.Debug("scan complete",
		"sector_size", sectorSize,
		"entries", len(entries),
		"claimed_sectors", s.claimed.len(),
		"total_sectors", size/s.step,
	)
	return layout, nil
}

func (s *Scanner) run() ([]xa.Entry, error) {
	var entries []xa.Entry
	for off := int64(0); off+s.step <= s.size; {
		if s.claimed.has(off) {
			off = s.claimed.nextFree(off, s.step)
			continue
		}

		sec, err := xa.ReadSector(s.r, off, s.sectorSize)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, &xa.IOError{Op: "read", Path: s.name, Err: err}
		}
		if sec.IsInvalidTag() || sec.IsPadding() {
			off += s.step
			continue
		}

		e, err := s.walk(off, sec)
		if err != nil {
			return nil, err
		}
		s.log.Debug("stream found",
			"file", e.File,
			"channel", e.Channel,
			"begin", e.Begin,
			"end", e.End,
			"stride", e.Stride,
			"chunk", e.ChunkLength,
			"sectors", e.Sectors,
			"null_termination", e.NullTermination,
		)
		entries = append(entries, e)

		// Other streams interleaved with this one start right after its
		// first sector.
		off += s.step
	}
	return entries, nil
}

// walk follows one stream from its first sector at begin until its tags stop
// matching, claiming every sector it accepts.
func (s *Scanner) walk(begin int64, first xa.Sector) (xa.Entry, error) {
	e := xa.Entry{
		File:    first.File(),
		Channel: first.Channel(),
		Begin:   begin,
	}

	pos, cur, raw := begin, first, first.Subheader()
	inChunk := 0
	for {
		if cur.IsPadding() {
			if !e.HasNullSubheader {
				e.NullSubheader, e.HasNullSubheader = raw, true
			}
			e.NullTermination++
		} else if e.NullTermination > 0 {
			// Payload after padding: the padding was not trailing after all.
			e.End = pos
			break
		}
		s.claimed.insert(pos)
		e.Sectors++
		inChunk++

		next := pos + s.step
		if e.Stride > 0 && inChunk == e.ChunkLength {
			next += int64(e.Stride) * s.step
			inChunk = 0
		}

		sec, rawNext, err := s.read(next, e.File)
		if errors.Is(err, io.EOF) {
			e.End = next
			break
		}
		if err != nil {
			return e, err
		}

		if e.Stride == 0 && !s.isOwn(&sec, &e) {
			if others, found := s.probe(next, &e); found {
				e.Stride = others
				e.ChunkLength = inChunk
				inChunk = 0
				next += int64(others) * s.step
				if sec, rawNext, err = s.read(next, e.File); err != nil {
					return e, err
				}
			}
		}

		if !s.continues(next, &sec, &e) {
			e.End = next
			break
		}
		pos, cur, raw = next, sec, rawNext
	}

	if e.ChunkLength == 0 {
		e.ChunkLength = 1
	}
	return e, nil
}

// read loads the sector at off and applies the normalization strategy. The
// subheader is also returned as it was on disc. A partial trailing sector is
// reported as io.EOF.
func (s *Scanner) read(off int64, file uint8) (xa.Sector, xa.Subheader, error) {
	sec, err := xa.ReadSector(s.r, off, s.sectorSize)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return sec, xa.Subheader{}, io.EOF
		}
		return sec, xa.Subheader{}, &xa.IOError{Op: "read", Path: s.name, Err: err}
	}
	raw := sec.Subheader()
	if s.normalize != nil {
		s.normalize(&sec, file)
	}
	return sec, raw, nil
}

// isOwn reports an audio payload sector carrying the entry's tags.
func (s *Scanner) isOwn(sec *xa.Sector, e *xa.Entry) bool {
	return sec.File() == e.File && sec.Channel() == e.Channel && !sec.IsPadding()
}

// continues reports whether the sector at off still belongs to the entry:
// same file number, and either the same channel or a channel-agnostic
// padding tag. Claimed offsets are a hard boundary.
func (s *Scanner) continues(off int64, sec *xa.Sector, e *xa.Entry) bool {
	if s.claimed.has(off) {
		return false
	}
	if sec.File() != e.File {
		return false
	}
	return sec.Channel() == e.Channel || sec.IsStandardPadding()
}

// probe counts foreign sectors from off until the entry's next payload
// sector. It gives up at EOF, after maxStride sectors, or when the match is
// already claimed by another entry.
func (s *Scanner) probe(off int64, e *xa.Entry) (int, bool) {
	for others := 0; others <= s.maxStride; others++ {
		at := off + int64(others)*s.step
		sec, _, err := s.read(at, e.File)
		if err != nil {
			return 0, false
		}
		if !s.isOwn(&sec, e) {
			continue
		}
		if s.claimed.has(at) || others == 0 {
			return 0, false
		}
		return others, true
	}
	return 0, false
}
