// Package push sends an interleaved XA stream to an SRT listener at the
// rate a CD drive would read it.
package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/xastream/internal/xa"
)

// SectorsPerSecond is the single-speed CD-ROM read rate.
const SectorsPerSecond = 75

// DefaultPacketSize is the largest payload of one SRT live-mode packet.
const DefaultPacketSize = 1316

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

const (
	dialTimeout = 10 * time.Second
	logInterval = 10 * time.Second
)

// Config controls a push.
type Config struct {
	// StreamID is sent in the SRT handshake.
	StreamID string

	// Speed multiplies the single-speed rate. Zero or less means 1.
	Speed float64

	// SectorSize is the stream's sector size, used to derive the byte rate.
	SectorSize int

	// PacketSize is the number of bytes per write.
	PacketSize int

	// Loop restarts from the beginning of the source when it ends. Pacing
	// stays continuous across the seam.
	Loop bool

	Logger *slog.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Speed <= 0 {
		out.Speed = 1
	}
	if out.SectorSize == 0 {
		out.SectorSize = xa.RawSectorSize
	}
	if out.PacketSize <= 0 {
		out.PacketSize = DefaultPacketSize
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// BytesPerSecond returns the target rate.
func (c *Config) BytesPerSecond() float64 {
	cfg := c.withDefaults()
	return SectorsPerSecond * cfg.Speed * float64(cfg.SectorSize)
}

// Push dials addr and streams src to it until src ends, or forever when
// cfg.Loop is set, or until ctx is done.
func Push(ctx context.Context, addr string, src io.ReadSeeker, cfg Config) error {
	cfg = cfg.withDefaults()
	log := cfg.Logger.With("component", "srt-push", "address", addr, "stream_id", cfg.StreamID)

	scfg := srtgo.DefaultConfig()
	scfg.StreamID = cfg.StreamID
	scfg.Latency = srtLatencyNs

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(addr, scfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()

	var conn *srtgo.Conn
	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("SRT dial failed: %w", res.err)
		}
		conn = res.conn
	case <-timer.C:
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return fmt.Errorf("SRT dial timed out after %s", dialTimeout)
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return ctx.Err()
	}
	defer conn.Close()

	log.Info("connected", "rate", humanize.IBytes(uint64(cfg.BytesPerSecond()))+"/s")
	p := newPacer(cfg, log)
	for loop := 1; ; loop++ {
		if err := p.run(ctx, conn, src); err != nil {
			return err
		}
		if !cfg.Loop {
			break
		}
		log.Info("loop complete, restarting", "loop", loop, "sent", humanize.IBytes(uint64(p.sent)))
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind source: %w", err)
		}
	}
	log.Info("push complete", "sent", humanize.IBytes(uint64(p.sent)))
	return nil
}

// Stream copies r to w in packets, paced against cfg's byte rate. It
// returns the number of bytes written.
func Stream(ctx context.Context, w io.Writer, r io.Reader, cfg Config) (int64, error) {
	cfg = cfg.withDefaults()
	p := newPacer(cfg, cfg.Logger.With("component", "srt-push"))
	err := p.run(ctx, w, r)
	return p.sent, err
}

type pacer struct {
	cfg         Config
	log         *slog.Logger
	bytesPerSec float64
	start       time.Time
	lastLog     time.Time
	sent        int64
}

func newPacer(cfg Config, log *slog.Logger) *pacer {
	now := time.Now()
	return &pacer{
		cfg:         cfg,
		log:         log,
		bytesPerSec: cfg.BytesPerSecond(),
		start:       now,
		lastLog:     now,
	}
}

// run sends r once. The clock starts when the pacer is created, so
// repeated runs keep pacing continuous.
func (p *pacer) run(ctx context.Context, w io.Writer, r io.Reader) error {
	buf := make([]byte, p.cfg.PacketSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write: %w", werr)
			}
			p.sent += int64(n)
			if err := p.wait(ctx); err != nil {
				return err
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
	}
}

func (p *pacer) wait(ctx context.Context) error {
	expected := time.Duration(float64(p.sent) / p.bytesPerSec * float64(time.Second))
	elapsed := time.Since(p.start)
	if expected > elapsed {
		t := time.NewTimer(expected - elapsed)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	if time.Since(p.lastLog) >= logInterval {
		rate := float64(p.sent) / time.Since(p.start).Seconds()
		p.log.Info("pushing",
			"rate", humanize.IBytes(uint64(rate))+"/s",
			"target", humanize.IBytes(uint64(p.bytesPerSec))+"/s",
			"sent", humanize.IBytes(uint64(p.sent)),
		)
		p.lastLog = time.Now()
	}
	return nil
}
