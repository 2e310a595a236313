package xa

import (
	"bytes"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Source is an opened input file. Reads go through a read-only memory map
// when the platform allows one, and through the file otherwise. ReadAt is
// safe for concurrent use either way.
type Source struct {
	io.ReaderAt
	Path string
	Size int64

	f *os.File
	m mmap.MMap
}

// OpenSource opens path for random access.
func OpenSource(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &IOError{Op: "stat", Path: path, Err: err}
	}

	src := &Source{ReaderAt: f, Path: path, Size: st.Size(), f: f}
	if st.Size() > 0 {
		if m, err := mmap.Map(f, mmap.RDONLY, 0); err == nil {
			src.m = m
			src.ReaderAt = bytes.NewReader(m)
		}
	}
	return src, nil
}

// Mapped reports whether reads are served from a memory map.
func (s *Source) Mapped() bool {
	return s.m != nil
}

// Close unmaps and closes the file.
func (s *Source) Close() error {
	var err error
	if s.m != nil {
		err = s.m.Unmap()
		s.m = nil
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}
