package main

import (
	"compress/gzip"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andybalholm/brotli"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/flashline/searcher/config"
	"github.com/flashline/searcher/flashblocks"
	"github.com/flashline/searcher/gasfilter"
	"github.com/flashline/searcher/lifecycle"
	"github.com/flashline/searcher/submit"
)

var (
	version = "v0.1.0"
	commit  = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "searcher",
		Usage:   "flashblock-driven MEV searcher",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "verbosity", Value: 3, Usage: "log level 0-5 (0 and 1=error, 5=trace)"},
			&cli.BoolFlag{Name: "metrics", Value: true, Usage: "serve Prometheus metrics"},
			&cli.StringFlag{Name: "metrics.addr", Value: "127.0.0.1:9100", Usage: "metrics HTTP listen address"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run brings up every component this binary can construct on its own —
// config, metrics, the per-target gas filter, wallets, and the
// flashblock ingest client. It stops short of constructing a
// pipeline.Pipeline: that requires a concrete ChainEvm and StateSource,
// which per this module's design are external collaborators supplied by
// the embedding process (a specific rollup's node and EVM build), not
// something this binary can manufacture itself.
func run(c *cli.Context) error {
	setupLogging(c.Int("verbosity"))

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("configuration error", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	metrics := lifecycle.New(reg)

	if c.Bool("metrics") {
		go serveMetrics(c.String("metrics.addr"), reg)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	gasFilter := gasfilter.New(redisClient, log.Root())

	wallets, err := loadWallets(cfg)
	if err != nil {
		log.Error("fatal wallet configuration error", "err", err)
		os.Exit(1)
	}

	submitConfig := submit.Config{
		ChainID:      cfg.ChainID,
		Policy:       submit.WalletPolicyRoundRobin,
		DefaultGas:   300_000,
		DryRun:       cfg.DryRun,
		SequencerURL: cfg.SequencerURL,
	}
	sequencer := submit.NewHTTPSequencerClient(cfg.SequencerURL)
	log.Info("submission configured",
		"wallets", wallets.Len(), "policy", submitConfig.Policy, "dry_run", submitConfig.DryRun)

	ingest := flashblocks.NewClient(cfg.FlashblockWSURL, log.Root())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("starting searcher",
		"version", version,
		"sequencer", cfg.SequencerURL,
		"flashblock_ws", cfg.FlashblockWSURL,
		"dry_run", cfg.DryRun,
	)

	go ingest.Run(ctx)

	// Once the embedder supplies a ChainEvm and StateSource, each event
	// off this channel feeds pipeline.New(...).ProcessEvent(ctx, ev);
	// until then this loop only tracks ingest health metrics.
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown complete")
			return nil
		case ev := <-ingest.Events():
			metrics.FlashblocksIngested.Inc()
			metrics.QueueDepth.Set(float64(len(ingest.Events())))
			log.Debug("flashblock received", "block_number", ev.BlockNumber, "index", ev.Index)
			_ = gasFilter
			_ = sequencer
		}
	}
}

func loadWallets(cfg config.Config) (*submit.WalletSet, error) {
	keys := make([][]byte, 0, len(cfg.WalletKeysHex))
	for _, hexKey := range cfg.WalletKeysHex {
		keys = append(keys, hexToBytes(hexKey))
	}
	return submit.NewWalletSet(keys)
}

func hexToBytes(s string) []byte {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b := make([]byte, len(s)/2)
	for i := range b {
		hi := unhex(s[2*i])
		lo := unhex(s[2*i+1])
		b[i] = hi<<4 | lo
	}
	return b
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func setupLogging(verbosity int) {
	var lvl slog.Level
	switch {
	case verbosity <= 1:
		lvl = slog.LevelError
	case verbosity == 2:
		lvl = slog.LevelWarn
	case verbosity == 3:
		lvl = slog.LevelInfo
	case verbosity == 4:
		lvl = slog.LevelDebug
	default:
		lvl = log.LevelTrace
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true)))
}

// serveMetrics serves the registry's families at /metrics, brotli- or
// gzip-compressing the body when the scraper advertises support — the
// family-dump response compresses well and scrape intervals are short
// enough that the encoder cost is negligible next to the bandwidth win.
func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	mux.Handle("/metrics", compressHandler(handler))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", "err", err)
	}
}

func compressHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept := r.Header.Get("Accept-Encoding")
		switch {
		case strings.Contains(accept, "br"):
			w.Header().Set("Content-Encoding", "br")
			bw := brotli.NewWriter(w)
			defer bw.Close()
			next.ServeHTTP(compressedWriter{ResponseWriter: w, enc: bw}, r)
		case strings.Contains(accept, "gzip"):
			w.Header().Set("Content-Encoding", "gzip")
			gw := gzip.NewWriter(w)
			defer gw.Close()
			next.ServeHTTP(compressedWriter{ResponseWriter: w, enc: gw}, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

type compressedWriter struct {
	http.ResponseWriter
	enc interface {
		Write([]byte) (int, error)
	}
}

func (w compressedWriter) Write(b []byte) (int, error) {
	return w.enc.Write(b)
}
