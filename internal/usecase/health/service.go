package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names used as Report.Checks keys.
const (
	ComponentStore     = "document_store"
	ComponentEmbedding = "embedding"
	ComponentIndex     = "index"
)

// defaultProbeTimeout bounds each component probe.
const defaultProbeTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status    Status
	Checks    map[string]CheckResult
	IndexSize int
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	embedding EmbeddingChecker
	index     IndexSizer
	timeout   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithEmbedding adds the embedding provider probe. Off by default since it costs an API call.
func WithEmbedding(c EmbeddingChecker) Option {
	return func(s *Service) { s.embedding = c }
}

// WithIndex adds the index size probe.
func WithIndex(x IndexSizer) Option {
	return func(s *Service) { s.index = x }
}

// WithProbeTimeout bounds each probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a Service.
func New(store StorePinger, opts ...Option) *Service {
	s := &Service{store: store, timeout: defaultProbeTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Check runs health checks against all configured components.
func (s *Service) Check(ctx context.Context) Report {
	r := Report{Status: Healthy, Checks: make(map[string]CheckResult)}

	r.Checks[ComponentStore] = s.probe(ctx, s.store.Ping)

	if s.embedding != nil {
		r.Checks[ComponentEmbedding] = s.probe(ctx, s.embedding.HealthCheck)
	}

	if s.index != nil {
		r.Checks[ComponentIndex] = s.probe(ctx, func(ctx context.Context) error {
			n, err := s.index.Len(ctx)
			r.IndexSize = n
			return err
		})
	}

	for _, v := range r.Checks {
		if v == CheckError {
			r.Status = Degraded
			break
		}
	}
	return r
}

func (s *Service) probe(ctx context.Context, fn func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
