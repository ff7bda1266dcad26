package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type loaderMetrics struct {
	entriesShipped prometheus.Counter
	entriesFailed  *prometheus.CounterVec
	batchesTotal   prometheus.Counter
	batchDuration  prometheus.Histogram
}

func newLoaderMetrics(reg prometheus.Registerer) *loaderMetrics {
	m := &loaderMetrics{
		entriesShipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "regload",
			Name:      "entries_shipped_total",
			Help:      "Registry entries accepted by the destination",
		}),
		entriesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "regload",
			Name:      "entries_failed_total",
			Help:      "Registry entries not shipped",
		}, []string{"reason"}),
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "regload",
			Name:      "batches_total",
			Help:      "Batches sent",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "regload",
			Name:      "batch_duration_seconds",
			Help:      "Batch delivery duration",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
	reg.MustRegister(m.entriesShipped, m.entriesFailed, m.batchesTotal, m.batchDuration)
	return m
}

func serveMetrics(port string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
