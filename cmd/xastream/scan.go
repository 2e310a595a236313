package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/zsiec/xastream/internal/scan"
	"github.com/zsiec/xastream/internal/xa"
)

func init() {
	cmdMain.AddCommand(cmdScan)
	addScanFlags(cmdScan.Flags())
	cmdScan.Flags().Bool("no-color", false, "Disable colored output")
}

var cmdScan = &cobra.Command{
	Use:   "scan <file>...",
	Short: "Print the stream layout of interleaved XA files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.GetBool("no-color") {
			color.NoColor = true
		}
		for _, path := range args {
			layout, err := scanFile(path)
			if err != nil {
				return err
			}
			printLayout(cmd.OutOrStdout(), layout)
		}
		return nil
	},
}

func addScanFlags(f *pflag.FlagSet) {
	f.Int("max-stride", scan.DefaultMaxStride, "Largest number of foreign sectors searched between two chunks")
	f.Bool("no-normalize", false, "Do not rewrite sentinel channel 0xFF padding before matching")
}

func scanFile(path string) (*xa.Layout, error) {
	opts := []scan.Option{scan.WithMaxStride(cfg.GetInt("max-stride"))}
	if cfg.GetBool("no-normalize") {
		opts = append(opts, scan.WithNormalizer(nil))
	}
	layout, err := scan.Scan(path, opts...)
	if err != nil {
		return nil, err
	}
	if len(layout.Entries) == 0 {
		slog.Info("no XA audio streams found", "source", path)
	}
	return layout, nil
}

var title = color.New(color.Bold, color.FgCyan)

func printLayout(w io.Writer, layout *xa.Layout) {
	title.Fprintf(w, "%s: %d streams, %s sectors\n", layout.Source, len(layout.Entries), xa.TypeName(layout.SectorSize))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tFILE\tCHANNEL\tBEGIN\tSTRIDE\tCHUNK\tSECTORS\tNULL\tSIZE")
	for i, e := range layout.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			i, e.Name, e.File, e.Channel,
			e.Begin/int64(layout.SectorSize), e.Stride, e.ChunkLength,
			e.Sectors, e.NullTermination,
			humanize.IBytes(uint64(e.PayloadSectors())*uint64(layout.SectorSize)),
		)
	}
	tw.Flush()
}
