// Package retrieval turns a text query into ranked, threshold-filtered registry evidence.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/registry"
	"github.com/kailas-cloud/regcheck/internal/domain/search/result"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
	"github.com/kailas-cloud/regcheck/internal/logger"
)

// Limits on a single retrieval.
const (
	DefaultTopK          = 5
	MaxTopK              = 100
	DefaultMinSimilarity = 0.3
	MaxQueryBytes        = 4096
)

// Options tunes one retrieval.
type Options struct {
	TopK          int
	MinSimilarity float64
	// Source restricts evidence to one registry. Empty means all.
	Source string
}

// DefaultOptions returns top 5 above 0.3.
func DefaultOptions() Options {
	return Options{TopK: DefaultTopK, MinSimilarity: DefaultMinSimilarity}
}

func (o Options) validate() (Options, error) {
	switch {
	case o.TopK == 0:
		o.TopK = DefaultTopK
	case o.TopK < 0 || o.TopK > MaxTopK:
		return o, fmt.Errorf("top_k must be in [1, %d]: %w", MaxTopK, domain.ErrInvalidQuery)
	}
	if o.MinSimilarity < -1 || o.MinSimilarity > 1 {
		return o, fmt.Errorf("min_similarity must be in [-1, 1]: %w", domain.ErrInvalidQuery)
	}
	return o, nil
}

// Service composes embedder, vector index and document store.
type Service struct {
	embed     domain.Embedder
	index     Index
	docs      DocumentReader
	normalize bool
	lower     bool
	missing   prometheus.Counter
	logger    *zap.Logger

	keywords       DocumentLister
	exactThreshold float64
}

// Option configures a Service.
type Option func(*Service)

// WithNormalization folds whitespace (and lower-cases when lower is set) before embedding.
// Must match the setting used at ingestion.
func WithNormalization(lower bool) Option {
	return func(s *Service) {
		s.normalize = true
		s.lower = lower
	}
}

// WithMissingCounter counts hits whose document is absent from the store.
func WithMissingCounter(c prometheus.Counter) Option {
	return func(s *Service) { s.missing = c }
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a retrieval service.
func New(embed domain.Embedder, index Index, docs DocumentReader, opts ...Option) *Service {
	s := &Service{embed: embed, index: index, docs: docs, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// PrepareQuery trims and optionally normalizes query, rejecting empty or oversized text.
func (s *Service) PrepareQuery(query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", fmt.Errorf("query is empty: %w", domain.ErrInvalidQuery)
	}
	if len(q) > MaxQueryBytes {
		return "", fmt.Errorf("query exceeds %d bytes: %w", MaxQueryBytes, domain.ErrInvalidQuery)
	}
	if s.normalize {
		q = registry.Normalize(q, s.lower)
	}
	return q, nil
}

// Retrieve returns evidence ranked 1..N by descending similarity. No hits is not an error.
func (s *Service) Retrieve(ctx context.Context, query string, opts Options) ([]result.Result, error) {
	q, err := s.PrepareQuery(query)
	if err != nil {
		return nil, err
	}
	opts, err = opts.validate()
	if err != nil {
		return nil, err
	}

	if s.keywords != nil {
		return s.hybrid(ctx, q, opts)
	}
	hits, err := s.semantic(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, hits, nil)
}

// Mode reports which retrieval mode is active.
func (s *Service) Mode() Mode {
	if s.keywords != nil {
		return ModeHybrid
	}
	return ModeSemantic
}

func (s *Service) semantic(ctx context.Context, q string, opts Options) ([]vector.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.ContextError(err)
	}
	emb, err := s.embed.Embed(ctx, q)
	if err != nil {
		return nil, embedError(ctx, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, domain.ContextError(err)
	}
	hits, err := s.index.Search(ctx, vector.Query{
		Vector:        emb.Embedding,
		K:             opts.TopK,
		MinSimilarity: opts.MinSimilarity,
		Source:        opts.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", domain.ContextError(err))
	}
	vector.Sort(hits)

	if err := ctx.Err(); err != nil {
		return nil, domain.ContextError(err)
	}
	return hits, nil
}

// hydrate resolves hits to documents, using loaded before asking the store.
func (s *Service) hydrate(ctx context.Context, hits []vector.Hit, loaded map[string]document.Document) ([]result.Result, error) {
	out := make([]result.Result, 0, len(hits))
	for _, h := range hits {
		if doc, ok := loaded[h.ID]; ok {
			out = append(out, result.FromDocument(&doc, h.Similarity, len(out)+1))
			continue
		}
		doc, ok, err := s.docs.Get(ctx, h.ID)
		if err != nil {
			return nil, fmt.Errorf("hydrate %q: %w", h.ID, domain.ContextError(err))
		}
		if !ok {
			logger.FromContextOr(ctx, s.logger).Warn("Index hit without stored document",
				zap.String("document_id", h.ID),
				zap.Float64("similarity", h.Similarity),
			)
			if s.missing != nil {
				s.missing.Inc()
			}
			continue
		}
		out = append(out, result.FromDocument(&doc, h.Similarity, len(out)+1))
	}
	return out, nil
}

func embedError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("embed query: %w", domain.ContextError(ctxErr))
	}
	if errors.Is(err, domain.ErrTimeout) || errors.Is(err, domain.ErrCanceled) ||
		errors.Is(err, domain.ErrEmbeddingUnavailable) {
		return fmt.Errorf("embed query: %w", err)
	}
	return fmt.Errorf("embed query: %w: %w", domain.ErrEmbeddingUnavailable, err)
}
