package main

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zsiec/xastream/internal/manifest"
	"github.com/zsiec/xastream/internal/mux"
	"github.com/zsiec/xastream/internal/xa"
)

func init() {
	cmdMain.AddCommand(cmdInterleave)
	f := cmdInterleave.Flags()
	addPushFlags(f)
	f.IntP("stride", "s", mux.DefaultStride, "Sectors per interleave round")
	f.String("sector-size", "0", "Output sector size: 2336 (xa), 2352 (xacd) or 0 for the first file's")
	f.StringP("output", "o", "", "Output file (default: <manifest dir>/<manifest stem>_NEW.XA)")
	f.String("push", "", "After writing, push the result to this SRT address")
}

var cmdInterleave = &cobra.Command{
	Use:     "interleave <manifest.csv>",
	Aliases: []string{"mux"},
	Short:   "Interleave the files listed in a manifest into one XA stream",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outSize, err := sectorSizeFlag(cfg.GetString("sector-size"))
		if err != nil {
			return err
		}
		stride := cfg.GetInt("stride")
		manifestPath := args[0]

		descs, err := manifest.Load(manifestPath, stride)
		if err != nil {
			return err
		}
		if len(descs) == 0 {
			slog.Info("manifest lists no streams", "manifest", manifestPath)
			return nil
		}

		out := cfg.GetString("output")
		if out == "" {
			stem := strings.TrimSuffix(filepath.Base(manifestPath), filepath.Ext(manifestPath))
			out = filepath.Join(filepath.Dir(manifestPath), stem+"_NEW.XA")
		}
		if err := writeFile(out, func(w *bufio.Writer) error {
			return mux.Multiplex(descs, w,
				mux.WithStride(stride),
				mux.WithSectorSize(outSize),
				mux.WithOutputName(out),
			)
		}); err != nil {
			return err
		}

		fi, err := os.Stat(out)
		if err != nil {
			return &xa.IOError{Op: "stat", Path: out, Err: err}
		}
		slog.Info("interleaved", "output", out, "streams", len(descs), "stride", stride, "size", humanize.IBytes(uint64(fi.Size())))

		if addr := cfg.GetString("push"); addr != "" {
			return pushFile(cmd, out, addr)
		}
		return nil
	},
}
