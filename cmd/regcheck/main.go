package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/regcheck/internal/config"
	logpkg "github.com/kailas-cloud/regcheck/internal/logger"
	"github.com/kailas-cloud/regcheck/internal/metrics"
	"github.com/kailas-cloud/regcheck/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting regcheck",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("index", cfg.Index.Backend),
		zap.String("generation", cfg.Generation.Mode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("regcheck stopped with error", zap.Error(err))
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics.RegisterHTTPMetrics()
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterCheckMetrics()

	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	if cfg.Ingest.Warmup {
		report, err := app.ingest.Warmup(ctx)
		if err != nil {
			return fmt.Errorf("warmup: %w", err)
		}
		logger.Info("Index warmed up",
			zap.Int("scanned", report.Scanned),
			zap.Int("indexed", report.Indexed),
			zap.Int("reembedded", report.Reembedded),
			zap.Int("failed", report.Failed),
		)
	}

	consumerDone := make(chan error, 1)
	if app.consumer != nil {
		go func() { consumerDone <- app.consumer.Run(ctx) }()
	} else {
		close(consumerDone)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      app.server.Routes(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			cancelRun()
			<-consumerDone
			return fmt.Errorf("http server: %w", err)
		}
	}
	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if err := <-consumerDone; err != nil {
		logger.Error("NATS consumer stopped with error", zap.Error(err))
	}
	return nil
}
