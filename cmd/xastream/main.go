package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zsiec/xastream/internal/xa"
)

var version = "dev"

// cfg holds flag values. Every flag can also be set as XASTREAM_<FLAG> or
// as a key in the file named by --config.
var cfg = viper.New()

var cmdMain = &cobra.Command{
	Use:           "xastream",
	Short:         "Split and rebuild interleaved CD-ROM XA audio streams",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		if path := cfg.GetString("config"); path != "" {
			cfg.SetConfigFile(path)
			if err := cfg.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", path, err)
			}
		}
		setupLogging(cfg.GetString("log-level"))
		return nil
	},
}

func init() {
	cfg.SetEnvPrefix("XASTREAM")
	cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfg.AutomaticEnv()

	cmdMain.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	cmdMain.PersistentFlags().String("config", "", "Config file (yaml, toml or json) providing flag defaults")
}

func setupLogging(name string) {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(name)); err != nil {
		level = slog.LevelInfo
	}
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cmdMain.ExecuteContext(ctx); err != nil {
		slog.Error("xastream failed", "error", err)
		os.Exit(1)
	}
}

// sectorSizeFlag parses a --sector-size value: 0 (keep), 2336, 2352, or
// the manifest type names xa and xacd.
func sectorSizeFlag(v string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0":
		return 0, nil
	case "xa", "2336":
		return xa.DataSectorSize, nil
	case "xacd", "2352":
		return xa.RawSectorSize, nil
	}
	return 0, fmt.Errorf("sector size %q: expected %d (xa) or %d (xacd)", v, xa.DataSectorSize, xa.RawSectorSize)
}
