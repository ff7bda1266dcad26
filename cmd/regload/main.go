// regload ships a JSON-lines registry dump into regcheck.
//
// Usage:
//
//	regload -file registry.jsonl -target http -url http://localhost:8080 -api-key $API_KEY
//	regload -file registry.jsonl -target nats -nats-url nats://localhost:4222
//
// Each line is one registry entry: {"id": "...", "content": "...", "source": "minjust", ...}.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/regcheck/internal/logger"
	"github.com/kailas-cloud/regcheck/internal/resilience"
	natsTransport "github.com/kailas-cloud/regcheck/internal/transport/nats"
	"github.com/kailas-cloud/regcheck/internal/version"
)

type config struct {
	file        string
	target      string
	url         string
	apiKey      string
	natsURL     string
	subject     string
	workers     int
	batchSize   int
	timeout     time.Duration
	metricsPort string
	logLevel    string
	version     bool
}

func main() {
	cfg := parseFlags()
	if cfg.version {
		fmt.Println("regload", version.String())
		return
	}

	logger, err := logpkg.NewLogger("local", cfg.logLevel)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		cancel()
		logger.Fatal("regload failed", zap.Error(err))
	}
}

func parseFlags() config {
	cfg := config{}
	flag.StringVar(&cfg.file, "file", "", "JSON-lines registry dump (- for stdin)")
	flag.StringVar(&cfg.target, "target", "http", "destination: http or nats")
	flag.StringVar(&cfg.url, "url", "http://localhost:8080", "regcheck API base URL")
	flag.StringVar(&cfg.apiKey, "api-key", os.Getenv("API_KEY"), "bearer token for the API")
	flag.StringVar(&cfg.natsURL, "nats-url", "nats://localhost:4222", "NATS server URL")
	flag.StringVar(&cfg.subject, "subject", natsTransport.SubjectUpsert, "NATS upsert subject")
	flag.IntVar(&cfg.workers, "workers", 4, "parallel batch senders")
	flag.IntVar(&cfg.batchSize, "batch-size", 100, "entries per batch")
	flag.DurationVar(&cfg.timeout, "timeout", 2*time.Minute, "per-batch timeout")
	flag.StringVar(&cfg.metricsPort, "metrics-port", "", "serve Prometheus metrics on this port")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "debug, info, warn, error")
	flag.BoolVar(&cfg.version, "version", false, "print version and exit")
	flag.Parse()
	return cfg
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	if cfg.file == "" {
		return errors.New("-file is required")
	}
	in, closeIn, err := openInput(cfg.file)
	if err != nil {
		return err
	}
	defer closeIn()

	reg := prometheus.NewRegistry()
	m := newLoaderMetrics(reg)
	if cfg.metricsPort != "" {
		srv := serveMetrics(cfg.metricsPort, reg, logger)
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	exec := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	var s sink
	switch cfg.target {
	case "http":
		s = newHTTPSink(&http.Client{Timeout: cfg.timeout}, cfg.url, cfg.apiKey, exec)
	case "nats":
		nc, err := natsTransport.Connect(cfg.natsURL, natsTransport.ConnOptions{Name: "regload", Logger: logger})
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer nc.Close()
		s = newNATSSink(natsTransport.NewPublisher(nc, exec, cfg.subject, natsTransport.SubjectRetract))
	default:
		return fmt.Errorf("unknown target %q: want http or nats", cfg.target)
	}

	l := &loader{sink: s, workers: cfg.workers, batchSize: cfg.batchSize, timeout: cfg.timeout, metrics: m, logger: logger}
	res, err := l.Run(ctx, in)
	logger.Info("Load finished",
		zap.Int64("lines", res.Lines),
		zap.Int64("succeeded", res.Succeeded),
		zap.Int64("failed", res.Failed),
		zap.Int64("malformed", res.Malformed),
		zap.Duration("duration", res.Duration),
	)
	if err != nil {
		return err
	}
	if f, ok := s.(flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
	}
	return nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}
