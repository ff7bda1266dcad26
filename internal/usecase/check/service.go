// Package check composes retrieval, optional generation and the decision policy into one call.
package check

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/search/result"
	"github.com/kailas-cloud/regcheck/internal/domain/verdict"
	"github.com/kailas-cloud/regcheck/internal/logger"
	"github.com/kailas-cloud/regcheck/internal/metrics"
	"github.com/kailas-cloud/regcheck/internal/usecase/retrieval"
)

// GenerationMode selects when the generator is consulted.
type GenerationMode string

// Generation modes.
const (
	GenerationOff       GenerationMode = "off"
	GenerationUncertain GenerationMode = "uncertain"
	GenerationAlways    GenerationMode = "always"
)

// ParseGenerationMode accepts off, uncertain or always; empty means uncertain.
func ParseGenerationMode(s string) (GenerationMode, error) {
	switch GenerationMode(s) {
	case "", GenerationUncertain:
		return GenerationUncertain, nil
	case GenerationOff, GenerationAlways:
		return GenerationMode(s), nil
	default:
		return "", fmt.Errorf("unknown generation mode %q", s)
	}
}

// DefaultTimeout bounds a check when the caller gives no deadline.
const DefaultTimeout = 10 * time.Second

// Config holds the check pipeline settings.
type Config struct {
	Timeout           time.Duration
	GenerationMode    GenerationMode
	GenerationTimeout time.Duration
	Retrieval         retrieval.Options
}

// Service runs a registry check.
type Service struct {
	retriever Retriever
	decider   Decider
	generator Generator
	cfg       Config
	stats     *statsRecorder
	logger    *zap.Logger
}

// New creates a check service. generator may be nil.
func New(r Retriever, d Decider, g Generator, cfg Config, logger *zap.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.GenerationMode == "" {
		cfg.GenerationMode = GenerationUncertain
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval = retrieval.DefaultOptions()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		retriever: r,
		decider:   d,
		generator: g,
		cfg:       cfg,
		stats:     newStatsRecorder(),
		logger:    logger,
	}
}

// Check classifies query. timeout <= 0 uses the configured default. Any returned error
// means the query could not be determined; it is never reported as NOT_MATCHED.
func (s *Service) Check(ctx context.Context, query string, timeout time.Duration) (verdict.Verdict, error) {
	start := time.Now()
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := s.run(ctx, query)
	elapsed := time.Since(start)
	metrics.CheckStageDuration.WithLabelValues("total").Observe(elapsed.Seconds())

	if err != nil {
		err = domain.ContextError(err)
		s.stats.failure(elapsed)
		metrics.CheckErrorsTotal.WithLabelValues(errorKind(err)).Inc()
		return verdict.Verdict{}, err
	}

	v = v.WithProcessingTime(elapsed)
	s.stats.verdict(v.Classification(), elapsed)
	metrics.CheckVerdictsTotal.WithLabelValues(string(v.Classification())).Inc()
	return v, nil
}

func (s *Service) run(ctx context.Context, query string) (verdict.Verdict, error) {
	stage := time.Now()
	evidence, err := s.retriever.Retrieve(ctx, query, s.cfg.Retrieval)
	metrics.CheckStageDuration.WithLabelValues("retrieval").Observe(time.Since(stage).Seconds())
	if err != nil {
		return verdict.Verdict{}, fmt.Errorf("retrieve: %w", err)
	}

	generation, err := s.generate(ctx, query, evidence)
	if err != nil {
		return verdict.Verdict{}, err
	}

	stage = time.Now()
	v, err := s.decider.Decide(query, evidence, generation)
	metrics.CheckStageDuration.WithLabelValues("decision").Observe(time.Since(stage).Seconds())
	if err != nil {
		logger.FromContextOr(ctx, s.logger).Error("Decision contract violated", zap.Error(err))
		return verdict.Verdict{}, fmt.Errorf("decide: %w", err)
	}
	return v, nil
}

// generate returns nil text when generation is skipped or fails. Only the end of the
// whole check (caller cancellation or check deadline) is reported as an error.
func (s *Service) generate(ctx context.Context, query string, evidence []result.Result) (*string, error) {
	if !s.wantsGeneration(evidence) {
		metrics.GenerationRequestsTotal.WithLabelValues("skipped").Inc()
		return nil, nil
	}

	genCtx := ctx
	if s.cfg.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.cfg.GenerationTimeout)
		defer cancel()
	}

	stage := time.Now()
	text, err := s.generator.Generate(genCtx, query, evidence)
	metrics.CheckStageDuration.WithLabelValues("generation").Observe(time.Since(stage).Seconds())
	s.stats.generation(err)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues("error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.ContextError(ctxErr)
		}
		logger.FromContextOr(ctx, s.logger).Warn("Generation failed, deciding on similarity only",
			zap.Error(err),
		)
		return nil, nil
	}
	metrics.GenerationRequestsTotal.WithLabelValues("success").Inc()
	return &text, nil
}

func (s *Service) wantsGeneration(evidence []result.Result) bool {
	if s.generator == nil || len(evidence) == 0 {
		return false
	}
	switch s.cfg.GenerationMode {
	case GenerationAlways:
		return true
	case GenerationUncertain:
		return s.decider.NeedsCorroboration(evidence)
	default:
		return false
	}
}

// Stats returns counters accumulated since start.
func (s *Service) Stats() Stats { return s.stats.snapshot() }

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrCanceled):
		return "canceled"
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, domain.ErrPreconditionViolation):
		return "precondition_violation"
	default:
		return "internal"
	}
}
