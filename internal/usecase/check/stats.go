package check

import (
	"sync"
	"time"

	"github.com/kailas-cloud/regcheck/internal/domain/verdict"
)

// Stats is a snapshot of service counters since start.
type Stats struct {
	Total             int64
	Failed            int64
	ByClassification  map[verdict.Classification]int64
	GenerationCalls   int64
	GenerationErrors  int64
	AverageProcessing time.Duration
}

type statsRecorder struct {
	mu        sync.Mutex
	total     int64
	failed    int64
	byClass   map[verdict.Classification]int64
	genCalls  int64
	genErrors int64
	elapsed   time.Duration
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{byClass: make(map[verdict.Classification]int64)}
}

func (r *statsRecorder) verdict(c verdict.Classification, d time.Duration) {
	r.mu.Lock()
	r.total++
	r.byClass[c]++
	r.elapsed += d
	r.mu.Unlock()
}

func (r *statsRecorder) failure(d time.Duration) {
	r.mu.Lock()
	r.total++
	r.failed++
	r.elapsed += d
	r.mu.Unlock()
}

func (r *statsRecorder) generation(err error) {
	r.mu.Lock()
	r.genCalls++
	if err != nil {
		r.genErrors++
	}
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{
		Total:            r.total,
		Failed:           r.failed,
		ByClassification: make(map[verdict.Classification]int64, len(r.byClass)),
		GenerationCalls:  r.genCalls,
		GenerationErrors: r.genErrors,
	}
	for k, v := range r.byClass {
		s.ByClassification[k] = v
	}
	if r.total > 0 {
		s.AverageProcessing = r.elapsed / time.Duration(r.total)
	}
	return s
}
