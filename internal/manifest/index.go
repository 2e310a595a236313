package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/xastream/internal/xa"
)

// IndexExt is the file extension of a binary layout index.
const IndexExt = ".xai"

// IndexVersion is the only index version written and accepted.
const IndexVersion = 1

var indexMagic = []byte("XAIX")

// ErrIndex is returned for a malformed or unsupported index.
var ErrIndex = errors.New("manifest: malformed index")

// Layout index format, all integers QUIC varints:
//
//	"XAIX" version sector_size len(source) source count
//	count × entry
//
// entry:
//
//	len(name) name file channel begin end stride chunk sectors
//	null_termination has_null_subheader null_subheader
//
// Unlike the CSV manifest the index keeps every field of the layout, so a
// source can be extracted again without rescanning it.

// WriteIndex encodes layout to w.
func WriteIndex(w io.Writer, layout *xa.Layout) error {
	buf := append([]byte(nil), indexMagic...)
	buf = quicvarint.Append(buf, IndexVersion)
	buf = quicvarint.Append(buf, uint64(layout.SectorSize))
	buf = appendVarIntBytes(buf, []byte(layout.Source))
	buf = quicvarint.Append(buf, uint64(len(layout.Entries)))
	for _, e := range layout.Entries {
		buf = appendEntry(buf, e)
	}
	_, err := w.Write(buf)
	return err
}

func appendEntry(buf []byte, e xa.Entry) []byte {
	buf = appendVarIntBytes(buf, []byte(e.Name))
	buf = quicvarint.Append(buf, uint64(e.File))
	buf = quicvarint.Append(buf, uint64(e.Channel))
	buf = quicvarint.Append(buf, uint64(e.Begin))
	buf = quicvarint.Append(buf, uint64(e.End))
	buf = quicvarint.Append(buf, uint64(e.Stride))
	buf = quicvarint.Append(buf, uint64(e.ChunkLength))
	buf = quicvarint.Append(buf, uint64(e.Sectors))
	buf = quicvarint.Append(buf, uint64(e.NullTermination))
	var has uint64
	if e.HasNullSubheader {
		has = 1
	}
	buf = quicvarint.Append(buf, has)
	buf = quicvarint.Append(buf, uint64(e.NullSubheader.Uint32()))
	return buf
}

// ReadIndex decodes a layout written by WriteIndex.
func ReadIndex(r io.Reader) (*xa.Layout, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, indexMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrIndex)
	}
	br := newBufReader(data[len(indexMagic):])

	version, err := br.readVarint()
	if err != nil {
		return nil, fmt.Errorf("%w: read version: %v", ErrIndex, err)
	}
	if version != IndexVersion {
		return nil, fmt.Errorf("%w: version %d", ErrIndex, version)
	}
	size, err := br.readVarint()
	if err != nil {
		return nil, fmt.Errorf("%w: read sector size: %v", ErrIndex, err)
	}
	if !xa.ValidSectorSize(int(size)) {
		return nil, fmt.Errorf("%w: sector size %d", ErrIndex, size)
	}
	source, err := br.readVarIntBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: read source: %v", ErrIndex, err)
	}
	count, err := br.readVarint()
	if err != nil {
		return nil, fmt.Errorf("%w: read entry count: %v", ErrIndex, err)
	}
	// Every entry takes at least 11 bytes.
	if count > uint64(br.remaining()/11) {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrIndex, count, br.remaining())
	}

	layout := &xa.Layout{
		Source:     string(source),
		SectorSize: int(size),
		Entries:    make([]xa.Entry, 0, count),
	}
	for i := uint64(0); i < count; i++ {
		e, err := br.readEntry()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrIndex, i, err)
		}
		layout.Entries = append(layout.Entries, e)
	}
	if br.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrIndex, br.remaining())
	}
	return layout, nil
}

func (b *bufReader) readEntry() (xa.Entry, error) {
	var e xa.Entry
	name, err := b.readVarIntBytes()
	if err != nil {
		return e, err
	}
	e.Name = string(name)

	var v [10]uint64
	for i := range v {
		if v[i], err = b.readVarint(); err != nil {
			return e, err
		}
	}
	if v[0] > 0xFF || v[1] > 0xFF || v[8] > 1 || v[9] > 0xFFFFFFFF {
		return e, errors.New("field out of range")
	}
	e.File = uint8(v[0])
	e.Channel = uint8(v[1])
	e.Begin = int64(v[2])
	e.End = int64(v[3])
	e.Stride = int(v[4])
	e.ChunkLength = int(v[5])
	e.Sectors = int(v[6])
	e.NullTermination = int(v[7])
	e.HasNullSubheader = v[8] == 1
	e.NullSubheader = xa.SubheaderFromUint32(uint32(v[9]))
	return e, nil
}

// appendVarIntBytes appends a varint-length-prefixed byte string to buf.
func appendVarIntBytes(buf []byte, data []byte) []byte {
	buf = quicvarint.Append(buf, uint64(len(data)))
	buf = append(buf, data...)
	return buf
}

// bufReader wraps a byte slice for sequential varint reading.
type bufReader struct {
	data []byte
	pos  int
}

func newBufReader(data []byte) *bufReader {
	return &bufReader{data: data}
}

func (b *bufReader) remaining() int {
	return len(b.data) - b.pos
}

func (b *bufReader) readVarint() (uint64, error) {
	if b.pos >= len(b.data) {
		return 0, io.ErrUnexpectedEOF
	}
	val, n, err := quicvarint.Parse(b.data[b.pos:])
	if err != nil {
		return 0, err
	}
	b.pos += n
	return val, nil
}

func (b *bufReader) readVarIntBytes() ([]byte, error) {
	length, err := b.readVarint()
	if err != nil {
		return nil, err
	}
	if length > uint64(b.remaining()) {
		return nil, io.ErrUnexpectedEOF
	}
	end := b.pos + int(length)
	val := b.data[b.pos:end]
	b.pos = end
	return val, nil
}
