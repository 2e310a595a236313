// Package xatest builds synthetic XA sectors and interleaved streams for
// tests and the fixture generator.
package xatest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/xastream/internal/xa"
)

// Stream describes one synthetic logical stream.
type Stream struct {
	File    uint8
	Channel uint8

	// Sectors is the number of audio payload sectors.
	Sectors int

	// Padding is the number of trailing non-audio sectors tagged with the
	// stream's file and channel.
	Padding int

	// PaddingSubheader overrides the padding tags when non-nil.
	PaddingSubheader *xa.Subheader
}

// Total returns payload plus padding sectors.
func (s Stream) Total() int {
	return s.Sectors + s.Padding
}

// Audio returns an audio payload sector. The coding data is a pattern
// derived from the tags and seq, so payloads of different streams and
// positions never compare equal.
func Audio(file, channel uint8, seq int) xa.Sector {
	s := xa.Blank()
	s.SetSubheader(xa.Subheader{File: file, Channel: channel, Submode: xa.SubmodeAudio | 0x60, CodingInfo: 0x01})
	data := s.Bytes(xa.DataSectorSize)[8 : 8+2324]
	for i := range data {
		data[i] = byte(int(file)*31 + int(channel)*7 + seq*13 + i)
	}
	return s
}

// Padding returns a non-audio sector with the given tags and no payload.
func Padding(h xa.Subheader) xa.Sector {
	s := xa.Blank()
	s.SetSubheader(h)
	return s
}

// sectors lays out one stream: its payload followed by its padding.
func (s Stream) sectors() []xa.Sector {
	out := make([]xa.Sector, 0, s.Total())
	for i := 0; i < s.Sectors; i++ {
		out = append(out, Audio(s.File, s.Channel, i))
	}
	pad := xa.Subheader{File: s.File, Channel: s.Channel}
	if s.PaddingSubheader != nil {
		pad = *s.PaddingSubheader
	}
	for i := 0; i < s.Padding; i++ {
		out = append(out, Padding(pad))
	}
	return out
}

// Payload returns the payload sectors of s encoded at the given size, the
// bytes an extractor is expected to produce.
func (s Stream) Payload(size int) []byte {
	var out []byte
	for i := 0; i < s.Sectors; i++ {
		sec := Audio(s.File, s.Channel, i)
		out = append(out, sec.Bytes(size)...)
	}
	return out
}

// Interleave weaves streams round-robin, chunk sectors per stream per
// round. Streams that run out are filled with blank sectors (file 0,
// channel 0, submode 0) until the longest stream is exhausted.
func Interleave(chunk int, streams ...Stream) []xa.Sector {
	laid := make([][]xa.Sector, len(streams))
	rounds := 0
	for i, s := range streams {
		laid[i] = s.sectors()
		if n := (len(laid[i]) + chunk - 1) / chunk; n > rounds {
			rounds = n
		}
	}

	var out []xa.Sector
	for r := 0; r < rounds; r++ {
		for i := range streams {
			for c := 0; c < chunk; c++ {
				if idx := r*chunk + c; idx < len(laid[i]) {
					out = append(out, laid[i][idx])
				} else {
					out = append(out, xa.Blank())
				}
			}
		}
	}
	return out
}

// Encode serializes sectors at the given physical size.
func Encode(sectors []xa.Sector, size int) []byte {
	out := make([]byte, 0, len(sectors)*size)
	for i := range sectors {
		out = append(out, sectors[i].Bytes(size)...)
	}
	return out
}

// WriteFile writes data under dir and returns the path.
func WriteFile(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	require.NoError(tb, os.WriteFile(path, data, 0o644))
	return path
}
