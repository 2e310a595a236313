package xa

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectSectorSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		prefix  []byte
		size    int64
		want    int
		wantErr bool
	}{
		{"raw_with_sync", syncPattern[:], 4 * RawSectorSize, RawSectorSize, false},
		{"raw_size_without_sync", []byte{1, 0, 0x64, 1}, 2336 * 2352, DataSectorSize, false},
		{"data_only", []byte{1, 0, 0x64, 1}, 3 * DataSectorSize, DataSectorSize, false},
		{"misaligned", syncPattern[:], RawSectorSize + 1, 0, true},
		{"empty", nil, 0, 0, true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := DetectSectorSize(tc.prefix, tc.size)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrFormat)
				var fe *FormatError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, tc.size, fe.Size)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSector_Tags(t *testing.T) {
	t.Parallel()
	s := Blank()
	s.SetSubheader(Subheader{File: 3, Channel: 7, Submode: SubmodeAudio | 0x60, CodingInfo: 0x05})

	assert.Equal(t, uint8(3), s.File())
	assert.Equal(t, uint8(7), s.Channel())
	assert.Equal(t, uint8(0x05), s.CodingInfo())
	assert.Equal(t, s.Subheader(), s.Mirror())
	assert.True(t, s.IsAudio())
	assert.False(t, s.IsEOF())
	assert.False(t, s.IsInvalidTag())
	assert.False(t, s.IsStandardPadding())
	assert.False(t, s.IsPadding())

	s.SetChannel(InvalidChannel)
	assert.True(t, s.IsInvalidTag())
	assert.Equal(t, uint8(InvalidChannel), s.Mirror().Channel)

	s.SetSubmode(SubmodeEOF)
	assert.True(t, s.IsStandardPadding(), "EOF bit alone is still a standard padding tag")
	assert.True(t, s.IsPadding())
}

func TestSector_SilentTerminator(t *testing.T) {
	t.Parallel()
	s := Blank()
	s.SetSubmode(SubmodeAudio | SubmodeEOF)
	assert.True(t, s.IsSilentTerminator())

	s[codingDataOffset+100] = 0x11
	assert.False(t, s.IsSilentTerminator(), "non-zero coding data is real audio")

	s[codingDataOffset+100] = 0
	s.SetSubmode(SubmodeAudio)
	assert.False(t, s.IsSilentTerminator(), "no EOF bit")
}

func TestNormalizeSentinel(t *testing.T) {
	t.Parallel()
	s := Blank()
	s.SetSubheader(Subheader{File: 0x20, Channel: InvalidChannel, Submode: 0x48, CodingInfo: 0x01})
	NormalizeSentinel(&s, 4)
	assert.Equal(t, Subheader{File: 4, Channel: InvalidChannel, Submode: 0, CodingInfo: 0x01}, s.Subheader())
	assert.Equal(t, s.Subheader(), s.Mirror())

	ok := Blank()
	ok.SetSubheader(Subheader{File: 1, Channel: 2, Submode: 0x48})
	NormalizeSentinel(&ok, 4)
	assert.Equal(t, Subheader{File: 1, Channel: 2, Submode: 0x48}, ok.Subheader())
}

func TestReadSector(t *testing.T) {
	t.Parallel()
	src := Blank()
	src.SetSubheader(Subheader{File: 1, Channel: 2, Submode: SubmodeAudio})
	data := append(bytes.Clone(src.Bytes(DataSectorSize)), make([]byte, 10)...)
	r := bytes.NewReader(data)

	got, err := ReadSector(r, 0, DataSectorSize)
	require.NoError(t, err)
	assert.Equal(t, src, got)
	assert.Equal(t, syncPattern[:], got.Bytes(RawSectorSize)[:syncSize], "data-only read gets a blank sync")

	_, err = ReadSector(r, DataSectorSize, DataSectorSize)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	_, err = ReadSector(r, int64(len(data)), DataSectorSize)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestSubmodeOffset(t *testing.T) {
	t.Parallel()
	// Both sizes put the last sector's submode 2334 bytes before the end.
	assert.Equal(t, RawSectorSize-2334, SubmodeOffset(RawSectorSize))
	assert.Equal(t, DataSectorSize-2334, SubmodeOffset(DataSectorSize))
}

func TestSubheader_Parse(t *testing.T) {
	t.Parallel()
	h, err := ParseSubheader("0x01FF4800")
	require.NoError(t, err)
	assert.Equal(t, Subheader{File: 1, Channel: 0xFF, Submode: 0x48}, h)
	assert.Equal(t, "0x01FF4800", h.String())

	_, err = ParseSubheader("01FF4800")
	assert.Error(t, err)
	_, err = ParseSubheader("0x1FFFFFFFF")
	assert.Error(t, err)
}

func TestLayout_AssignNames(t *testing.T) {
	t.Parallel()
	l := &Layout{Source: "/tmp/MUSIC.XA", Entries: make([]Entry, 3)}
	l.Entries[2].File = 1
	l.AssignNames()
	assert.Equal(t, "MUSIC_FN-0_0.xa", l.Entries[0].Name)
	assert.Equal(t, "MUSIC_FN-1_2.xa", l.Entries[2].Name)
}

func FuzzSectorPredicates(f *testing.F) {
	f.Add(bytes.Repeat([]byte{0}, DataSectorSize))
	raw := Blank()
	f.Add(raw.Bytes(RawSectorSize))

	f.Fuzz(func(t *testing.T, data []byte) {
		var s Sector
		if err := s.Load(data); err != nil {
			return
		}
		// must not panic
		_ = s.IsPadding()
		_ = s.IsInvalidTag()
		assert.Equal(t, s.Subheader().File, s.File())
	})
}
