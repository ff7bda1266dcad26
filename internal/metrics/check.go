package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "regcheck"

// Check pipeline Prometheus metrics.
var (
	CheckVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_verdicts_total",
			Help:      "Verdicts by classification",
		},
		[]string{"classification"},
	)

	CheckErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_errors_total",
			Help:      "Checks that ended undetermined, by error kind",
		},
		[]string{"kind"},
	)

	CheckStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_stage_duration_seconds",
			Help:      "Duration of check stages (retrieval, generation, decision, total)",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"stage"},
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Generation collaborator calls by outcome",
		},
		[]string{"status"}, // "success" / "error" / "skipped"
	)

	RetrievalMissingDocumentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_missing_documents_total",
			Help:      "Index hits whose document was absent from the document store",
		},
	)

	IndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_size",
			Help:      "Number of vectors in the index",
		},
	)

	IngestItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_items_total",
			Help:      "Ingested registry entries by action and status",
		},
		[]string{"action", "status"},
	)
)

var checkOnce sync.Once

// RegisterCheckMetrics registers the check pipeline metrics. Safe to call more than once.
func RegisterCheckMetrics() {
	checkOnce.Do(func() {
		prometheus.MustRegister(
			CheckVerdictsTotal,
			CheckErrorsTotal,
			CheckStageDuration,
			GenerationRequestsTotal,
			RetrievalMissingDocumentsTotal,
			IndexSize,
			IngestItemsTotal,
		)
	})
}
