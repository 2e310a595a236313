// Package manifest writes the CSV manifest describing a deinterleaved source
// and loads manifests back into multiplexer descriptors.
//
// A manifest row is
//
//	chunk,type,file,null_termination,xa_file_number,xa_channel_number,sector_beg-end,null_subheader
//
// where type is null, xa or xacd and null_termination counts whole padding
// chunks. Only chunk and type are required. Rows
// whose first field is not a positive integer, the header among them, are
// ignored.
package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zsiec/xastream/internal/mux"
	"github.com/zsiec/xastream/internal/xa"
)

// Header is the first row of every written manifest.
var Header = []string{
	"chunk", "type", "file", "null_termination",
	"xa_file_number", "xa_channel_number", "sector_beg-end", "null_subheader",
}

// Write writes a manifest row for every entry of layout. Files are typed
// by outSize, the sector size they were extracted at; zero means the
// layout's own sector size.
func Write(w io.Writer, layout *xa.Layout, outSize int) error {
	if outSize == 0 {
		outSize = layout.SectorSize
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range layout.Entries {
		if err := cw.Write(row(e, layout.SectorSize, outSize)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(e xa.Entry, inSize, outSize int) []string {
	begin := e.Begin / int64(inSize)
	last := begin
	if e.PayloadSectors() > 0 {
		last = max(begin, e.PayloadLimit(inSize)/int64(inSize)-int64(e.Stride)-1)
	}
	chunk := max(e.ChunkLength, 1)
	null := ""
	if e.HasNullSubheader {
		null = e.NullSubheader.String()
	}
	return []string{
		strconv.Itoa(chunk),
		xa.TypeName(outSize),
		e.Name,
		strconv.Itoa(e.NullTermination / chunk),
		strconv.Itoa(int(e.File)),
		strconv.Itoa(int(e.Channel)),
		fmt.Sprintf("%d-%d", begin, last),
		null,
	}
}

// Loader loads manifests.
type Loader struct {
	stride int
	log    *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) LoaderOption {
	return func(ld *Loader) {
		ld.log = l
	}
}

// NewLoader returns a Loader that schedules descriptors for stride.
func NewLoader(stride int, opts ...LoaderOption) *Loader {
	ld := &Loader{stride: stride, log: slog.Default()}
	for _, opt := range opts {
		opt(ld)
	}
	ld.log = ld.log.With("component", "manifest")
	return ld
}

// Load reads the manifest at path and returns its descriptors, validated
// and scheduled for the given stride. Relative file names resolve against
// the manifest's directory. On error no descriptors are returned.
func Load(path string, stride int, opts ...LoaderOption) ([]mux.Descriptor, error) {
	return NewLoader(stride, opts...).Load(path)
}

// Load reads and schedules the manifest at path.
func (ld *Loader) Load(path string) ([]mux.Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &xa.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	return ld.Parse(f, path)
}

// Parse reads a manifest from r. name is used for error messages and to
// resolve relative file names.
func (ld *Loader) Parse(r io.Reader, name string) ([]mux.Descriptor, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	dir := filepath.Dir(name)
	var (
		descs []mux.Descriptor
		lines []int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, &xa.ManifestError{Path: name, Line: line, Err: err}
		}
		line, _ := cr.FieldPos(0)

		d, ok, err := ld.parseRow(rec, dir)
		if err != nil {
			return nil, &xa.ManifestError{Path: name, Line: line, Err: err}
		}
		if !ok {
			continue
		}
		descs = append(descs, d)
		lines = append(lines, line)
	}

	if i, err := mux.Schedule(descs, ld.stride); err != nil {
		line := 0
		if i >= 0 && i < len(lines) {
			line = lines[i]
		}
		return nil, &xa.ManifestError{Path: name, Line: line, Err: err}
	}
	ld.log.Debug("manifest loaded", "path", name, "descriptors", len(descs), "stride", ld.stride)
	return descs, nil
}

// parseRow turns one record into a descriptor. It reports false for rows
// that are skipped: non-numeric chunk fields and unknown types.
func (ld *Loader) parseRow(rec []string, dir string) (mux.Descriptor, bool, error) {
	field := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	chunk, err := strconv.Atoi(field(0))
	if err != nil || chunk < 1 {
		return mux.Descriptor{}, false, nil
	}
	d := mux.Descriptor{ChunkLength: chunk}

	switch typ := strings.ToLower(field(1)); typ {
	case "", "null":
	case "xa":
		d.SectorSize = xa.DataSectorSize
	case "xacd":
		d.SectorSize = xa.RawSectorSize
	default:
		ld.log.Warn("skipping row with unknown type", "type", typ, "file", field(2))
		return mux.Descriptor{}, false, nil
	}

	if d.SectorSize != 0 {
		name := field(2)
		if name == "" {
			return d, false, errors.New("empty file name")
		}
		d.Path = name
		if !filepath.IsAbs(name) {
			d.Path = filepath.Join(dir, name)
		}
		fi, err := os.Stat(d.Path)
		if err != nil {
			return d, false, &xa.IOError{Op: "stat", Path: d.Path, Err: err}
		}
		if fi.Size() == 0 || fi.Size()%int64(d.SectorSize) != 0 {
			return d, false, fmt.Errorf("invalid type for file %s: %d bytes is not a whole number of %d-byte sectors", name, fi.Size(), d.SectorSize)
		}
		d.Size = fi.Size()
	}

	if v := field(3); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return d, false, fmt.Errorf("null_termination %q", v)
		}
		d.NullTermination = n
	}
	if d.File, err = parseTag(field(4), "xa_file_number"); err != nil {
		return d, false, err
	}
	if d.Channel, err = parseTag(field(5), "xa_channel_number"); err != nil {
		return d, false, err
	}

	// Trailing fields: an informational sector range, then the padding
	// subheader. Either may be absent.
	for i := 6; i < len(rec); i++ {
		v := field(i)
		if !strings.HasPrefix(v, "0x") && !strings.HasPrefix(v, "0X") {
			continue
		}
		h, err := xa.ParseSubheader(v)
		if err != nil {
			return d, false, err
		}
		d.NullSubheader = &h
	}
	return d, true, nil
}

func parseTag(v, column string) (*uint8, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", column, v, err)
	}
	tag := uint8(n)
	return &tag, nil
}
