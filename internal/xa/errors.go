package xa

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below unwrap to these so callers can use
// errors.Is without caring about the details.
var (
	ErrFormat   = errors.New("xa: not aligned to either known sector size")
	ErrManifest = errors.New("xa: malformed manifest")
	ErrStride   = errors.New("xa: consecutive sectors are not divisible by the stride")
)

// FormatError reports a source whose length matches neither sector size.
type FormatError struct {
	Path string
	Size int64
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v (%d bytes)", ErrFormat, e.Size)
	}
	return fmt.Sprintf("%v: %s (%d bytes)", ErrFormat, e.Path, e.Size)
}

func (e *FormatError) Unwrap() error {
	return ErrFormat
}

// IOError reports an open, read or write failure on a specific path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("xa: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ManifestError reports a manifest row that cannot be loaded. Line is
// 1-based; zero means the error is not tied to a row.
type ManifestError struct {
	Path string
	Line int
	Err  error
}

func (e *ManifestError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("manifest %s:%d: %v", e.Path, e.Line, e.Err)
}

// Unwrap exposes both the cause and ErrManifest.
func (e *ManifestError) Unwrap() []error {
	return []error{ErrManifest, e.Err}
}
