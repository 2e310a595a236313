// Package mux interleaves XA payload files into a single sector stream. One
// round of the interleave visits every slot of the stride window in order;
// a slot emits its chunk of payload sectors, or padding once its file is
// spent. The last written sector carries the end-of-file submode bit.
package mux

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/zsiec/xastream/internal/xa"
)

// DefaultStride is the number of sectors in one interleave round.
const DefaultStride = 8

// PaddingFunc updates the subheader template used for a padding sector
// written on behalf of d. The template keeps whatever the previous call
// left in it.
type PaddingFunc func(h *xa.Subheader, d *Descriptor)

// DefaultPadding tags padding with the descriptor's null subheader when it
// has one, otherwise with its file number override, otherwise leaves the
// template unchanged.
func DefaultPadding(h *xa.Subheader, d *Descriptor) {
	switch {
	case d.NullSubheader != nil:
		*h = *d.NullSubheader
	case d.File != nil:
		h.File = *d.File
	}
}

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithStride sets the number of sectors per interleave round.
func WithStride(n int) Option {
	return func(m *Multiplexer) {
		m.stride = n
	}
}

// WithSectorSize sets the output sector size. Defaults to the sector size
// of the first descriptor with a payload file.
func WithSectorSize(n int) Option {
	return func(m *Multiplexer) {
		m.sectorSize = n
	}
}

// WithPadding replaces DefaultPadding.
func WithPadding(fn PaddingFunc) Option {
	return func(m *Multiplexer) {
		m.padding = fn
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Multiplexer) {
		m.log = l
	}
}

// WithOpener replaces os.Open for payload files.
func WithOpener(fn func(path string) (io.ReadCloser, error)) Option {
	return func(m *Multiplexer) {
		m.open = fn
	}
}

// WithOutputName names the output in write errors.
func WithOutputName(name string) Option {
	return func(m *Multiplexer) {
		m.outName = name
	}
}

// Multiplexer writes descriptors into one interleaved stream.
type Multiplexer struct {
	stride     int
	sectorSize int
	padding    PaddingFunc
	open       func(path string) (io.ReadCloser, error)
	outName    string
	log        *slog.Logger

	template xa.Sector
}

// New returns a Multiplexer with opts applied.
func New(opts ...Option) *Multiplexer {
	m := &Multiplexer{
		stride:   DefaultStride,
		padding:  DefaultPadding,
		open:     func(path string) (io.ReadCloser, error) { return os.Open(path) },
		outName:  "output",
		log:      slog.Default(),
		template: xa.Blank(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "mux")
	return m
}

// Multiplex interleaves descs into w using a default Multiplexer.
func Multiplex(descs []Descriptor, w io.Writer, opts ...Option) error {
	return New(opts...).Multiplex(descs, w)
}

type slot struct {
	d        Descriptor
	src      io.ReadCloser
	read     int64
	nullLeft int
}

// Multiplex interleaves descs into w. Writes are buffered and flushed
// before it returns; a partial stream may be left behind on error.
func (m *Multiplexer) Multiplex(descs []Descriptor, w io.Writer) error {
	descs = append([]Descriptor(nil), descs...)
	if i, err := Schedule(descs, m.stride); err != nil {
		return fmt.Errorf("descriptor %d: %w", i, err)
	}

	size := m.sectorSize
	live := 0
	for i := range descs {
		if descs[i].IsPadding() {
			continue
		}
		if size == 0 {
			size = descs[i].SectorSize
		}
		live++
	}
	if live == 0 {
		m.log.Info("nothing to interleave")
		return nil
	}
	if !xa.ValidSectorSize(size) {
		return fmt.Errorf("mux: output sector size %d, expected %d or %d", size, xa.DataSectorSize, xa.RawSectorSize)
	}

	var slots []*slot
	used, next := 0, 0
	for ; next < len(descs) && used < m.stride; next++ {
		slots = append(slots, &slot{d: descs[next]})
		used += descs[next].ChunkLength
	}
	for ; used < m.stride; used++ {
		slots = append(slots, &slot{d: Descriptor{ChunkLength: 1}})
	}
	pending := descs[next:]

	defer func() {
		for _, s := range slots {
			if s.src != nil {
				s.src.Close()
			}
		}
	}()
	for _, s := range slots {
		if err := m.start(s); err != nil {
			return err
		}
	}

	out := &sectorWriter{w: bufio.NewWriterSize(w, 32*size), size: size}
	var sec xa.Sector
	for live > 0 {
		for _, s := range slots {
			for c := 0; c < s.d.ChunkLength; c++ {
				ok, err := m.readSector(s, &sec)
				if err != nil {
					return err
				}
				if !ok {
					h := m.template.Mirror()
					m.padding(&h, &s.d)
					m.template.SetSubheader(h)
					sec = m.template
				}
				if err := out.write(&sec); err != nil {
					return m.writeError(err)
				}
			}

			if s.src == nil || s.read < s.d.Size {
				continue
			}
			if s.nullLeft > 0 {
				s.nullLeft--
				continue
			}
			s.src.Close()
			s.src = nil
			live--
			m.log.Debug("source interleaved", "path", s.d.Path, "slot", s.d.Slot)

			if len(pending) > 0 {
				s.d = pending[0]
				pending = pending[1:]
				if err := m.start(s); err != nil {
					return err
				}
			}
		}
	}

	if err := out.finish(); err != nil {
		return m.writeError(err)
	}
	m.log.Debug("interleave complete",
		"sectors", out.n,
		"size", humanize.IBytes(uint64(out.n)*uint64(size)),
		"stride", m.stride,
	)
	return nil
}

func (m *Multiplexer) start(s *slot) error {
	s.read = 0
	s.nullLeft = s.d.NullTermination
	if s.d.IsPadding() {
		return nil
	}
	if s.d.Size == 0 {
		fi, err := os.Stat(s.d.Path)
		if err != nil {
			return &xa.IOError{Op: "stat", Path: s.d.Path, Err: err}
		}
		s.d.Size = fi.Size()
	}
	src, err := m.open(s.d.Path)
	if err != nil {
		return &xa.IOError{Op: "open", Path: s.d.Path, Err: err}
	}
	s.src = src
	return nil
}

// readSector fills sec with the slot's next payload sector and stamps the
// descriptor's tags on it. It reports false once the payload is spent.
func (m *Multiplexer) readSector(s *slot, sec *xa.Sector) (bool, error) {
	if s.src == nil || s.read >= s.d.Size {
		return false, nil
	}
	*sec = xa.Blank()
	_, err := io.ReadFull(s.src, sec.Bytes(s.d.SectorSize))
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		s.read = s.d.Size
		return false, nil
	}
	if err != nil {
		return false, &xa.IOError{Op: "read", Path: s.d.Path, Err: err}
	}
	s.read += int64(s.d.SectorSize)

	mirror := sec.Mirror()
	file, channel := mirror.File, mirror.Channel
	if s.d.File != nil {
		file = *s.d.File
	}
	if s.d.Channel != nil {
		channel = *s.d.Channel
	}
	sec.SetFile(file)
	sec.SetChannel(channel)
	return true, nil
}

func (m *Multiplexer) writeError(err error) error {
	return &xa.IOError{Op: "write", Path: m.outName, Err: err}
}

// sectorWriter holds back the most recent sector so the final one can be
// marked with the end-of-file bit before it is written.
type sectorWriter struct {
	w       *bufio.Writer
	size    int
	last    xa.Sector
	pending bool
	n       int64
}

func (sw *sectorWriter) write(s *xa.Sector) error {
	if sw.pending {
		if err := sw.flushLast(); err != nil {
			return err
		}
	}
	sw.last = *s
	sw.pending = true
	return nil
}

func (sw *sectorWriter) flushLast() error {
	if _, err := sw.w.Write(sw.last.Bytes(sw.size)); err != nil {
		return err
	}
	sw.n++
	return nil
}

func (sw *sectorWriter) finish() error {
	if sw.pending {
		sw.last.SetSubmode(sw.last.Submode() | xa.SubmodeEOF)
		if err := sw.flushLast(); err != nil {
			return err
		}
		sw.pending = false
	}
	return sw.w.Flush()
}
