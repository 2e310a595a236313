package main

import (
	"bufio"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/xastream/internal/extract"
	"github.com/zsiec/xastream/internal/manifest"
	"github.com/zsiec/xastream/internal/xa"
)

func init() {
	cmdMain.AddCommand(cmdDeinterleave)
	f := cmdDeinterleave.Flags()
	addScanFlags(f)
	f.StringP("out-dir", "o", "", "Output directory (default: <input dir>/<input stem>; one subdirectory per input when several are given)")
	f.String("sector-size", "0", "Output sector size: 2336 (xa), 2352 (xacd) or 0 to keep the source's")
	f.IntP("jobs", "j", 1, "Streams extracted concurrently per input")
	f.Int("parallel", 2, "Inputs processed concurrently")
	f.Bool("index", false, "Also write a binary layout index (<stem>"+manifest.IndexExt+")")
	f.Bool("from-index", false, "Reuse an existing layout index instead of scanning")
}

var cmdDeinterleave = &cobra.Command{
	Use:     "deinterleave <file>...",
	Aliases: []string{"demux"},
	Short:   "Split interleaved XA files into one file per stream plus a manifest",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outSize, err := sectorSizeFlag(cfg.GetString("sector-size"))
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(max(cfg.GetInt("parallel"), 1))
		for _, path := range args {
			outDir := outputDir(path, cfg.GetString("out-dir"), len(args) > 1)
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return deinterleave(path, outDir, outSize)
			})
		}
		return g.Wait()
	},
}

func outputDir(input, flag string, many bool) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	switch {
	case flag == "":
		return filepath.Join(filepath.Dir(input), stem)
	case many:
		return filepath.Join(flag, stem)
	default:
		return flag
	}
}

func deinterleave(path, outDir string, outSize int) error {
	log := slog.With("component", "deinterleave", "source", path)

	layout, err := loadLayout(path, outDir)
	if err != nil {
		return err
	}
	if len(layout.Entries) == 0 {
		return nil
	}

	if err := extract.Extract(layout, outDir,
		extract.WithSectorSize(outSize),
		extract.WithJobs(cfg.GetInt("jobs")),
	); err != nil {
		return err
	}

	stem := layout.Stem()
	if err := writeFile(filepath.Join(outDir, stem+".csv"), func(w *bufio.Writer) error {
		return manifest.Write(w, layout, outSize)
	}); err != nil {
		return err
	}
	if cfg.GetBool("index") {
		if err := writeFile(filepath.Join(outDir, stem+manifest.IndexExt), func(w *bufio.Writer) error {
			return manifest.WriteIndex(w, layout)
		}); err != nil {
			return err
		}
	}

	log.Info("deinterleaved", "streams", len(layout.Entries), "out_dir", outDir)
	return nil
}

// loadLayout reads the layout from a previously written index when asked
// to and one exists for the same source, otherwise scans the source.
func loadLayout(path, outDir string) (*xa.Layout, error) {
	if cfg.GetBool("from-index") {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		indexPath := filepath.Join(outDir, stem+manifest.IndexExt)
		f, err := os.Open(indexPath)
		switch {
		case err == nil:
			defer f.Close()
			layout, err := manifest.ReadIndex(bufio.NewReader(f))
			if err != nil {
				return nil, &xa.IOError{Op: "read", Path: indexPath, Err: err}
			}
			layout.Source = path
			slog.Debug("layout loaded from index", "index", indexPath, "entries", len(layout.Entries))
			return layout, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, &xa.IOError{Op: "open", Path: indexPath, Err: err}
		}
	}
	return scanFile(path)
}

func writeFile(path string, fn func(w *bufio.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &xa.IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return &xa.IOError{Op: "create", Path: path, Err: err}
	}
	w := bufio.NewWriter(f)
	err = fn(w)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &xa.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}
