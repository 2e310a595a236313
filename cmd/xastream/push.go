package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/zsiec/xastream/internal/push"
	"github.com/zsiec/xastream/internal/xa"
)

func init() {
	cmdMain.AddCommand(cmdPush)
	addPushFlags(cmdPush.Flags())
	cmdPush.Flags().String("addr", "127.0.0.1:6000", "SRT listener address")
}

var cmdPush = &cobra.Command{
	Use:   "push <file.xa>",
	Short: "Stream an interleaved XA file to an SRT listener at CD speed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return pushFile(cmd, args[0], cfg.GetString("addr"))
	},
}

func addPushFlags(f *pflag.FlagSet) {
	f.String("stream-id", "", "SRT stream ID (default: live/<file stem>)")
	f.Float64("speed", 1, "Drive speed multiplier; 1 is 75 sectors per second")
	f.Bool("loop", false, "Restart from the beginning when the file ends")
}

func pushFile(cmd *cobra.Command, path, addr string) error {
	f, err := os.Open(path)
	if err != nil {
		return &xa.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return &xa.IOError{Op: "stat", Path: path, Err: err}
	}
	prefix := make([]byte, 12)
	n, _ := f.ReadAt(prefix, 0)
	size, err := xa.DetectSectorSize(prefix[:n], fi.Size())
	if err != nil {
		return err
	}

	streamID := cfg.GetString("stream-id")
	if streamID == "" {
		base := filepath.Base(path)
		streamID = "live/" + strings.TrimSuffix(base, filepath.Ext(base))
	}

	return push.Push(cmd.Context(), addr, f, push.Config{
		StreamID:   streamID,
		Speed:      cfg.GetFloat64("speed"),
		SectorSize: size,
		Loop:       cfg.GetBool("loop"),
	})
}
