// Command gen-xa writes synthetic interleaved XA files for manual testing of
// xastream: a handful of layouts covering both sector sizes, chunked
// interleaves, trailing padding and sentinel padding tags.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zsiec/xastream/internal/xa"
	"github.com/zsiec/xastream/internal/xatest"
)

type Fixture struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	SectorSize  int              `json:"sectorSize"`
	Chunk       int              `json:"chunk"`
	Streams     []xatest.Stream  `json:"-"`
	Summary     []fixtureSummary `json:"streams"`
}

type fixtureSummary struct {
	File    uint8 `json:"file"`
	Channel uint8 `json:"channel"`
	Sectors int   `json:"sectors"`
	Padding int   `json:"padding"`
}

type Manifest struct {
	Generated string    `json:"generated"`
	Fixtures  []Fixture `json:"fixtures"`
}

var sentinel = xa.Subheader{File: 0x20, Channel: xa.InvalidChannel, Submode: 0x48}

var fixtures = []Fixture{
	{
		Name: "FOUR.XA", Description: "four single-sector streams, data-only sectors",
		SectorSize: xa.DataSectorSize, Chunk: 1,
		Streams: []xatest.Stream{
			{File: 1, Channel: 0, Sectors: 300, Padding: 2},
			{File: 1, Channel: 1, Sectors: 280, Padding: 1},
			{File: 2, Channel: 0, Sectors: 302},
			{File: 2, Channel: 1, Sectors: 150},
		},
	},
	{
		Name: "RAW8.XA", Description: "eight streams, raw sectors with sync and header",
		SectorSize: xa.RawSectorSize, Chunk: 1,
		Streams: []xatest.Stream{
			{File: 1, Channel: 0, Sectors: 200}, {File: 1, Channel: 1, Sectors: 190},
			{File: 1, Channel: 2, Sectors: 180}, {File: 1, Channel: 3, Sectors: 170},
			{File: 1, Channel: 4, Sectors: 160}, {File: 1, Channel: 5, Sectors: 150},
			{File: 1, Channel: 6, Sectors: 140}, {File: 1, Channel: 7, Sectors: 130, Padding: 3},
		},
	},
	{
		Name: "CHUNKED.XA", Description: "two-sector chunks across three streams",
		SectorSize: xa.DataSectorSize, Chunk: 2,
		Streams: []xatest.Stream{
			{File: 3, Channel: 0, Sectors: 120, Padding: 2},
			{File: 3, Channel: 1, Sectors: 118},
			{File: 4, Channel: 0, Sectors: 90},
		},
	},
	{
		Name: "SENTINEL.XA", Description: "padding tagged with channel 0xFF and a foreign file number",
		SectorSize: xa.RawSectorSize, Chunk: 1,
		Streams: []xatest.Stream{
			{File: 5, Channel: 0, Sectors: 64, Padding: 4, PaddingSubheader: &sentinel},
			{File: 5, Channel: 1, Sectors: 70},
		},
	},
}

func main() {
	outFlag := flag.String("out", filepath.Join("test", "streams"), "Output directory")
	flag.Parse()

	if err := os.MkdirAll(*outFlag, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir %s: %v\n", *outFlag, err)
		os.Exit(1)
	}

	m := Manifest{Generated: time.Now().UTC().Format(time.RFC3339)}
	for _, fx := range fixtures {
		data := xatest.Encode(xatest.Interleave(fx.Chunk, fx.Streams...), fx.SectorSize)
		path := filepath.Join(*outFlag, fx.Name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
		for _, s := range fx.Streams {
			fx.Summary = append(fx.Summary, fixtureSummary{File: s.File, Channel: s.Channel, Sectors: s.Sectors, Padding: s.Padding})
		}
		m.Fixtures = append(m.Fixtures, fx)
		fmt.Printf("  %-12s %7d bytes  %s\n", fx.Name, len(data), fx.Description)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal manifest: %v\n", err)
		os.Exit(1)
	}
	manifestPath := filepath.Join(*outFlag, "manifest.json")
	if err := os.WriteFile(manifestPath, append(data, '\n'), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", manifestPath, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d fixtures and %s\n", len(m.Fixtures), manifestPath)
}
