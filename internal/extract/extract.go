// Package extract replays a scanned source and writes each logical stream's
// payload sectors to its own file, dropping the sectors of other streams and
// the trailing padding.
package extract

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/xastream/internal/xa"
)

// Option configures an extraction.
type Option func(*options)

type options struct {
	sectorSize int
	jobs       int
	log        *slog.Logger
}

// WithSectorSize sets the output sector size (2336 or 2352). Defaults to
// the source's sector size.
func WithSectorSize(n int) Option {
	return func(o *options) {
		o.sectorSize = n
	}
}

// WithJobs sets how many entries are extracted concurrently. Defaults to 1.
func WithJobs(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.jobs = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// Extract writes every entry of layout into outDir, creating it if needed.
// Each entry gets a fresh output file, so a failure leaves the outputs of
// already completed entries intact.
func Extract(layout *xa.Layout, outDir string, opts ...Option) error {
	o := options{jobs: 1, log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sectorSize == 0 {
		o.sectorSize = layout.SectorSize
	}
	if !xa.ValidSectorSize(o.sectorSize) {
		return fmt.Errorf("extract: output sector size %d, expected %d or %d", o.sectorSize, xa.DataSectorSize, xa.RawSectorSize)
	}
	if !xa.ValidSectorSize(layout.SectorSize) {
		return fmt.Errorf("extract: source sector size %d, expected %d or %d", layout.SectorSize, xa.DataSectorSize, xa.RawSectorSize)
	}
	log := o.log.With("component", "extractor", "source", layout.Source)

	for _, e := range layout.Entries {
		if e.Name == "" {
			layout.AssignNames()
			break
		}
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return &xa.IOError{Op: "mkdir", Path: outDir, Err: err}
	}

	src, err := xa.OpenSource(layout.Source)
	if err != nil {
		return err
	}
	defer src.Close()
	log.Debug("source opened", "size", humanize.IBytes(uint64(src.Size)), "mapped", src.Mapped())

	var g errgroup.Group
	g.SetLimit(o.jobs)
	for _, e := range layout.Entries {
		g.Go(func() error {
			return extractFile(src, filepath.Join(outDir, e.Name), e, layout.SectorSize, o.sectorSize, log)
		})
	}
	return g.Wait()
}

func extractFile(src io.ReaderAt, path string, e xa.Entry, inSize, outSize int, log *slog.Logger) error {
	f, err := os.Create(path)
	if err != nil {
		return &xa.IOError{Op: "create", Path: path, Err: err}
	}

	bw := bufio.NewWriterSize(f, 32*outSize)
	n, err := ExtractEntry(src, bw, e, inSize, outSize)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &xa.IOError{Op: "extract", Path: path, Err: err}
	}

	log.Debug("stream extracted",
		"file", filepath.Base(path),
		"xa_file", e.File,
		"xa_channel", e.Channel,
		"size", humanize.IBytes(uint64(n)),
	)
	return nil
}

// ExtractEntry copies the payload sectors of e from r to w, converting each
// from inSize to outSize bytes. It returns the number of bytes written. A
// source that ends early is not an error; the payload read so far is kept.
func ExtractEntry(r io.ReaderAt, w io.Writer, e xa.Entry, inSize, outSize int) (int64, error) {
	var (
		written   int64
		step      = int64(inSize)
		skip      = int64(e.Stride) * step
		limit     = e.PayloadLimit(inSize)
		remaining = e.PayloadSectors()
		chunk     = max(e.ChunkLength, 1)
	)

	for off := e.Begin; off < limit && remaining > 0; off += skip {
		for c := 0; c < chunk && remaining > 0; c++ {
			sec, err := xa.ReadSector(r, off, inSize)
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return written, nil
			}
			if err != nil {
				return written, fmt.Errorf("read sector at %d: %w", off, err)
			}
			n, err := w.Write(sec.Bytes(outSize))
			written += int64(n)
			if err != nil {
				return written, err
			}
			off += step
			remaining--
		}
	}
	return written, nil
}
