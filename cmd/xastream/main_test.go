package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/xastream/internal/scan"
	"github.com/zsiec/xastream/internal/xa"
	"github.com/zsiec/xastream/internal/xatest"
)

func TestSectorSizeFlag(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"", 0, false},
		{"2336", xa.DataSectorSize, false},
		{"XA", xa.DataSectorSize, false},
		{"2352", xa.RawSectorSize, false},
		{"xacd", xa.RawSectorSize, false},
		{"2048", 0, true},
	}
	for _, tc := range tests {
		got, err := sectorSizeFlag(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestOutputDir(t *testing.T) {
	t.Parallel()
	assert.Equal(t, filepath.Join("disc", "MUSIC"), outputDir(filepath.Join("disc", "MUSIC.XA"), "", false))
	assert.Equal(t, "out", outputDir("MUSIC.XA", "out", false))
	assert.Equal(t, filepath.Join("out", "MUSIC"), outputDir("MUSIC.XA", "out", true))
}

func run(t *testing.T, args ...string) {
	t.Helper()
	cmdMain.SetArgs(args)
	require.NoError(t, cmdMain.ExecuteContext(context.Background()))
}

// Commands share package-level flag state, so this test runs serially.
func TestDeinterleaveInterleave(t *testing.T) {
	dir := t.TempDir()
	streams := []xatest.Stream{
		{File: 1, Channel: 0, Sectors: 6, Padding: 1},
		{File: 1, Channel: 1, Sectors: 4},
		{File: 2, Channel: 0, Sectors: 5},
		{File: 2, Channel: 1, Sectors: 6},
	}
	src := xatest.WriteFile(t, dir, "MUSIC.XA", xatest.Encode(xatest.Interleave(1, streams...), xa.RawSectorSize))

	run(t, "deinterleave", "--index", src)
	outDir := filepath.Join(dir, "MUSIC")
	assert.FileExists(t, filepath.Join(outDir, "MUSIC.csv"))
	assert.FileExists(t, filepath.Join(outDir, "MUSIC.xai"))
	for i, s := range streams {
		got, err := os.ReadFile(filepath.Join(outDir, "MUSIC_FN-"+string(rune('0'+s.File))+"_"+string(rune('0'+i))+".xa"))
		require.NoError(t, err)
		assert.Equal(t, s.Payload(xa.RawSectorSize), got)
	}

	run(t, "interleave", "--stride", "4", filepath.Join(outDir, "MUSIC.csv"))
	remuxed := filepath.Join(outDir, "MUSIC_NEW.XA")
	layout, err := scan.Scan(remuxed)
	require.NoError(t, err)
	assert.Equal(t, xa.RawSectorSize, layout.SectorSize)
	require.Len(t, layout.Entries, len(streams))
	for i, e := range layout.Entries {
		assert.Equal(t, streams[i].File, e.File)
		assert.Equal(t, streams[i].Channel, e.Channel)
		assert.Equal(t, streams[i].Sectors, e.PayloadSectors())
	}
}
