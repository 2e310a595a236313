package mux

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/xastream/internal/xa"
	"github.com/zsiec/xastream/internal/xatest"
)

func u8(v uint8) *uint8 { return &v }

// payloadFile writes s's payload as a data-only file and returns a
// descriptor for it.
func payloadFile(t *testing.T, dir string, s xatest.Stream) Descriptor {
	t.Helper()
	data := s.Payload(xa.DataSectorSize)
	path := xatest.WriteFile(t, dir, fmt.Sprintf("f%d_c%d.xa", s.File, s.Channel), data)
	return Descriptor{
		Path:        path,
		SectorSize:  xa.DataSectorSize,
		Size:        int64(len(data)),
		ChunkLength: 1,
	}
}

// withEOF marks the last sector the way the multiplexer does.
func withEOF(secs []xa.Sector) []xa.Sector {
	last := &secs[len(secs)-1]
	last.SetSubmode(last.Submode() | xa.SubmodeEOF)
	return secs
}

func TestMultiplex_RoundRobin(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := xatest.Stream{File: 1, Channel: 0, Sectors: 3}
	b := xatest.Stream{File: 1, Channel: 1, Sectors: 3}
	descs := []Descriptor{payloadFile(t, dir, a), payloadFile(t, dir, b)}

	var out bytes.Buffer
	require.NoError(t, Multiplex(descs, &out, WithStride(2)))

	want := xatest.Encode(withEOF(xatest.Interleave(1, a, b)), xa.DataSectorSize)
	assert.Equal(t, want, out.Bytes())

	last := out.Bytes()[out.Len()-xa.DataSectorSize:]
	assert.Equal(t, byte(xa.SubmodeAudio|0x60|xa.SubmodeEOF), last[xa.SubmodeOffset(xa.DataSectorSize)])
	assert.Equal(t, last[2], last[6], "mirror carries the EOF bit")
}

func TestMultiplex_FillsWindowWithPadding(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := xatest.Stream{File: 2, Channel: 0, Sectors: 2}
	descs := []Descriptor{payloadFile(t, dir, a)}

	var out bytes.Buffer
	require.NoError(t, Multiplex(descs, &out, WithStride(3)))

	want := []xa.Sector{
		xatest.Audio(2, 0, 0), xa.Blank(), xa.Blank(),
		xatest.Audio(2, 0, 1), xa.Blank(), xa.Blank(),
	}
	assert.Equal(t, xatest.Encode(withEOF(want), xa.DataSectorSize), out.Bytes())
}

func TestMultiplex_NullTerminationAndOverrides(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := payloadFile(t, dir, xatest.Stream{File: 1, Channel: 0, Sectors: 2})
	a.NullTermination = 1
	a.File = u8(5)
	a.Channel = u8(3)
	b := payloadFile(t, dir, xatest.Stream{File: 1, Channel: 1, Sectors: 2})

	var out bytes.Buffer
	require.NoError(t, Multiplex([]Descriptor{a, b}, &out, WithStride(2)))
	require.Equal(t, 6*xa.DataSectorSize, out.Len())

	secs := make([]xa.Sector, 6)
	for i := range secs {
		require.NoError(t, secs[i].Load(out.Bytes()[i*xa.DataSectorSize:(i+1)*xa.DataSectorSize]))
	}

	for _, i := range []int{0, 2} {
		assert.Equal(t, uint8(5), secs[i].File(), "sector %d", i)
		assert.Equal(t, uint8(3), secs[i].Channel(), "sector %d", i)
		assert.Equal(t, secs[i].Subheader(), secs[i].Mirror(), "sector %d", i)
	}
	for _, i := range []int{1, 3} {
		assert.Equal(t, uint8(1), secs[i].File(), "sector %d keeps its own tags", i)
		assert.Equal(t, uint8(1), secs[i].Channel(), "sector %d keeps its own tags", i)
	}

	// Round 2: one padding chunk for a, tagged with its file override, and
	// padding for the exhausted b slot carrying the same template.
	assert.False(t, secs[4].IsAudio())
	assert.Equal(t, uint8(5), secs[4].File())
	assert.Equal(t, uint8(5), secs[5].File())
	assert.Equal(t, uint8(xa.SubmodeEOF), secs[5].Submode())
	assert.Equal(t, uint8(xa.SubmodeEOF), secs[5].Mirror().Submode)
}

func TestMultiplex_RotatesQueuedDescriptors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := xatest.Stream{File: 1, Sectors: 2}
	b := xatest.Stream{File: 2, Sectors: 4}
	c := xatest.Stream{File: 3, Sectors: 2}
	descs := []Descriptor{payloadFile(t, dir, a), payloadFile(t, dir, b), payloadFile(t, dir, c)}

	var out bytes.Buffer
	require.NoError(t, Multiplex(descs, &out, WithStride(2)))

	want := []xa.Sector{
		xatest.Audio(1, 0, 0), xatest.Audio(2, 0, 0),
		xatest.Audio(1, 0, 1), xatest.Audio(2, 0, 1),
		xatest.Audio(3, 0, 0), xatest.Audio(2, 0, 2),
		xatest.Audio(3, 0, 1), xatest.Audio(2, 0, 3),
	}
	assert.Equal(t, xatest.Encode(withEOF(want), xa.DataSectorSize), out.Bytes())
}

func TestMultiplex_RawOutput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := xatest.Stream{File: 1, Sectors: 2}
	b := xatest.Stream{File: 2, Sectors: 2}
	descs := []Descriptor{payloadFile(t, dir, a), payloadFile(t, dir, b)}

	var out bytes.Buffer
	require.NoError(t, Multiplex(descs, &out, WithStride(2), WithSectorSize(xa.RawSectorSize)))

	want := xatest.Encode(withEOF(xatest.Interleave(1, a, b)), xa.RawSectorSize)
	assert.Equal(t, want, out.Bytes())
	last := out.Bytes()[out.Len()-xa.RawSectorSize:]
	assert.Equal(t, byte(xa.SubmodeAudio|0x60|xa.SubmodeEOF), last[xa.SubmodeOffset(xa.RawSectorSize)])
}

func TestMultiplex_CustomPadding(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := payloadFile(t, dir, xatest.Stream{File: 4, Sectors: 1})
	pad := func(h *xa.Subheader, d *Descriptor) {
		h.Channel = xa.InvalidChannel
	}

	var out bytes.Buffer
	require.NoError(t, Multiplex([]Descriptor{a}, &out, WithStride(2), WithPadding(pad)))

	var s xa.Sector
	require.NoError(t, s.Load(out.Bytes()[xa.DataSectorSize:]))
	assert.True(t, s.IsInvalidTag())
}

func TestMultiplex_StrideViolation(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := payloadFile(t, dir, xatest.Stream{File: 1, Sectors: 2})
	b := payloadFile(t, dir, xatest.Stream{File: 2, Sectors: 2})
	b.ChunkLength = 2

	var out bytes.Buffer
	err := Multiplex([]Descriptor{a, b}, &out, WithStride(2))
	require.ErrorIs(t, err, xa.ErrStride)
	assert.Zero(t, out.Len())
}

func TestMultiplex_OpenError(t *testing.T) {
	t.Parallel()
	d := Descriptor{Path: "unused.xa", SectorSize: xa.DataSectorSize, Size: xa.DataSectorSize, ChunkLength: 1}
	boom := errors.New("boom")
	open := func(string) (io.ReadCloser, error) { return nil, boom }

	err := Multiplex([]Descriptor{d}, io.Discard, WithOpener(open))
	var ioErr *xa.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "open", ioErr.Op)
	assert.ErrorIs(t, err, boom)
}

func TestMultiplex_OnlyPadding(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	require.NoError(t, Multiplex([]Descriptor{{ChunkLength: 1}}, &out))
	assert.Zero(t, out.Len())
}

func TestSchedule(t *testing.T) {
	t.Parallel()
	descs := []Descriptor{
		{Path: "a", SectorSize: xa.DataSectorSize, Size: 2 * xa.DataSectorSize, ChunkLength: 1},
		{Path: "b", SectorSize: xa.DataSectorSize, Size: 4 * xa.DataSectorSize, ChunkLength: 1, NullTermination: 1},
		{ChunkLength: 1},
		{Path: "c", SectorSize: xa.DataSectorSize, Size: 3 * xa.DataSectorSize, ChunkLength: 1},
		{Path: "d", SectorSize: xa.DataSectorSize, Size: 1 * xa.DataSectorSize, ChunkLength: 1},
	}
	i, err := Schedule(descs, 3)
	require.NoError(t, err)
	assert.Equal(t, -1, i)

	type span struct {
		slot       int
		begin, end int64
	}
	got := make([]span, len(descs))
	for i, d := range descs {
		got[i] = span{d.Slot, d.BeginSlot, d.EndSlot}
	}
	assert.Equal(t, []span{
		{0, 0, 6},
		{1, 1, 16},
		{2, 2, 2},
		{0, 6, 15},  // a's slot frees after round 2
		{0, 15, 18}, // c and b free up together; the lower slot wins
	}, got)
}

func TestSchedule_Violations(t *testing.T) {
	t.Parallel()
	file := func(chunk int) Descriptor {
		return Descriptor{Path: "x", SectorSize: xa.DataSectorSize, Size: xa.DataSectorSize, ChunkLength: chunk}
	}
	tests := []struct {
		name   string
		descs  []Descriptor
		index  int
		stride bool
	}{
		{"chunk_exceeds_stride", []Descriptor{file(3)}, 0, true},
		{"window_overshoot", []Descriptor{file(1), file(2)}, 1, true},
		{"queued_chunk_mismatch", []Descriptor{file(1), file(1), file(2)}, 2, true},
		{"queued_padding", []Descriptor{file(1), file(1), {ChunkLength: 1}}, 2, false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			i, err := Schedule(tc.descs, 2)
			require.Error(t, err)
			assert.Equal(t, tc.index, i)
			assert.Equal(t, tc.stride, errors.Is(err, xa.ErrStride))
		})
	}
}
