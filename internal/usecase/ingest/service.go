// Package ingest loads registry entries into the Document Store and the vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/regcheck/internal/domain"
	dombatch "github.com/kailas-cloud/regcheck/internal/domain/batch"
	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/registry"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
	"github.com/kailas-cloud/regcheck/internal/metrics"
)

// MaxBatchSize is the default maximum number of entries per call.
const MaxBatchSize = 100

// Entry is one registry record as delivered by a loader.
type Entry struct {
	ID       string
	Content  string
	Metadata document.Metadata
}

// Service writes registry entries. All writes go through one write section so the store
// and the index never disagree about an id for longer than a single item.
type Service struct {
	store        Store
	index        Index
	embed        domain.Embedder
	maxBatchSize int
	lower        bool
	enrich       bool
	logger       *zap.Logger

	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithMaxBatchSize caps the number of entries per Upsert or Retract call.
func WithMaxBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithNormalization lower-cases entry text after whitespace folding. Must match retrieval.
func WithNormalization(lower bool) Option {
	return func(s *Service) { s.lower = lower }
}

// WithEnrichment fills absent metadata from the entry text.
func WithEnrichment(enabled bool) Option {
	return func(s *Service) { s.enrich = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an ingestion service.
func New(store Store, index Index, embed domain.Embedder, opts ...Option) *Service {
	s := &Service{
		store:        store,
		index:        index,
		embed:        embed,
		maxBatchSize: MaxBatchSize,
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// pending is an entry that passed validation and needs a write.
type pending struct {
	pos    int
	doc    document.Document
	update bool
	// old is the stored entry an update replaces.
	old document.Document
}

// Upsert validates, embeds and stores entries. Results are positional.
func (s *Service) Upsert(ctx context.Context, entries []Entry) []dombatch.Result {
	results := make([]dombatch.Result, len(entries))
	if len(entries) > s.maxBatchSize {
		err := fmt.Errorf("batch size exceeds %d: %w", s.maxBatchSize, domain.ErrInvalidDocument)
		for i, e := range entries {
			results[i] = dombatch.NewError(e.ID, err)
		}
		s.count(results)
		return results
	}

	todo := make([]pending, 0, len(entries))
	for i, e := range entries {
		doc, err := s.prepare(e)
		if err != nil {
			results[i] = dombatch.NewError(e.ID, err)
			continue
		}
		p := pending{pos: i, doc: doc}
		unchanged, old, exists, err := s.compare(ctx, &doc)
		if err != nil {
			results[i] = dombatch.NewError(doc.ID(), err)
			continue
		}
		if unchanged {
			results[i] = dombatch.NewOK(doc.ID(), dombatch.ActionUnchanged)
			continue
		}
		p.update, p.old = exists, old
		todo = append(todo, p)
	}

	if len(todo) > 0 {
		s.embedAll(ctx, todo, results)
		s.write(ctx, todo, results)
	}

	s.count(results)
	s.reportSize(ctx)
	return results
}

func (s *Service) prepare(e Entry) (document.Document, error) {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	content := registry.Normalize(e.Content, s.lower)
	md := e.Metadata
	if s.enrich {
		md = registry.Enrich(md, content)
	}
	doc, err := document.New(id, content, md)
	if err != nil {
		return document.Document{}, fmt.Errorf("validate: %w", err)
	}
	return doc, nil
}

// compare reports whether doc is already stored with identical content and indexed.
// The stored entry is returned when it exists.
func (s *Service) compare(
	ctx context.Context, doc *document.Document,
) (unchanged bool, old document.Document, exists bool, err error) {
	old, found, err := s.store.Get(ctx, doc.ID())
	if err != nil {
		return false, old, false, fmt.Errorf("load existing: %w", err)
	}
	if !found {
		return false, old, false, nil
	}
	if old.Content() != doc.Content() || !sameMetadata(old.Metadata(), doc.Metadata()) ||
		vector.CheckDimension(old.Embedding(), s.index.Dimension()) != nil {
		return false, old, true, nil
	}
	indexed, err := s.index.Contains(ctx, doc.ID())
	if err != nil {
		return false, old, true, fmt.Errorf("probe index: %w", err)
	}
	return indexed, old, true, nil
}

// embedAll vectorizes every pending entry in one provider call. A failed call fails the
// whole pending set since no entry can be written without its vector.
func (s *Service) embedAll(ctx context.Context, todo []pending, results []dombatch.Result) {
	texts := make([]string, len(todo))
	for i := range todo {
		texts[i] = todo[i].doc.Content()
	}

	res, err := domain.EmbedAll(ctx, s.embed, texts)
	if err != nil {
		err = domain.ContextError(err)
		if !errors.Is(err, domain.ErrTimeout) && !errors.Is(err, domain.ErrCanceled) &&
			!errors.Is(err, domain.ErrEmbeddingUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
		s.logger.Warn("Embedding batch failed", zap.Int("entries", len(todo)), zap.Error(err))
		for i := range todo {
			results[todo[i].pos] = dombatch.NewError(todo[i].doc.ID(), fmt.Errorf("vectorize: %w", err))
			todo[i].pos = -1
		}
		return
	}

	dim := s.index.Dimension()
	for i := range todo {
		v := res.Embeddings[i]
		if err := vector.CheckDimension(v, dim); err != nil {
			results[todo[i].pos] = dombatch.NewError(todo[i].doc.ID(),
				fmt.Errorf("vectorize: %w: %w", domain.ErrDimensionMismatch, err))
			todo[i].pos = -1
			continue
		}
		todo[i].doc = todo[i].doc.WithEmbedding(v)
	}
}

func (s *Service) write(ctx context.Context, todo []pending, results []dombatch.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range todo {
		if p.pos < 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			results[p.pos] = dombatch.NewError(p.doc.ID(), domain.ContextError(err))
			continue
		}
		action, err := s.writeOne(ctx, p)
		if err != nil {
			results[p.pos] = dombatch.NewError(p.doc.ID(), err)
			continue
		}
		results[p.pos] = dombatch.NewOK(p.doc.ID(), action)
	}
}

func (s *Service) writeOne(ctx context.Context, p pending) (dombatch.Action, error) {
	action := dombatch.ActionCreated
	if p.update {
		action = dombatch.ActionUpdated
	}

	// The index rejects duplicate ids, so a replaced entry loses its old vector first.
	dropped := false
	if err := s.index.Delete(ctx, p.doc.ID()); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("drop old vector: %w", err)
		}
	} else {
		dropped = true
	}
	id, err := s.store.Put(ctx, p.doc)
	if err != nil {
		if dropped && p.update {
			s.restore(ctx, p.old, false)
		}
		return "", fmt.Errorf("store: %w", err)
	}
	item := vector.Item{ID: id, Vector: p.doc.Embedding(), Metadata: p.doc.Metadata()}
	if err := s.index.Insert(ctx, item); err != nil {
		if errors.Is(err, domain.ErrDuplicateID) || errors.Is(err, domain.ErrDimensionMismatch) {
			s.logger.Error("Index contract violated during ingestion",
				zap.String("id", id),
				zap.Error(err),
			)
		}
		if p.update {
			s.restore(ctx, p.old, true)
		}
		return "", fmt.Errorf("index: %w", err)
	}
	return action, nil
}

// restore puts a replaced entry back after a failed update so it stays searchable.
// rewrite also returns the old document to the store. Cancellation of ctx is ignored.
func (s *Service) restore(ctx context.Context, old document.Document, rewrite bool) {
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(zap.String("id", old.ID()))

	if rewrite {
		if _, err := s.store.Put(ctx, old); err != nil {
			log.Error("Entry left unsearchable until warmup: restore document failed", zap.Error(err))
			return
		}
	}
	if vector.CheckDimension(old.Embedding(), s.index.Dimension()) != nil {
		log.Error("Entry left unsearchable until warmup: previous vector unusable")
		return
	}
	item := vector.Item{ID: old.ID(), Vector: old.Embedding(), Metadata: old.Metadata()}
	if err := s.index.Insert(ctx, item); err != nil && !errors.Is(err, domain.ErrDuplicateID) {
		log.Error("Entry left unsearchable until warmup: restore vector failed", zap.Error(err))
	}
}

// Retract removes entries from the index and the store.
func (s *Service) Retract(ctx context.Context, ids []string) []dombatch.Result {
	results := make([]dombatch.Result, len(ids))
	if len(ids) > s.maxBatchSize {
		err := fmt.Errorf("batch size exceeds %d: %w", s.maxBatchSize, domain.ErrInvalidDocument)
		results = dombatch.FailAll(ids, err)
		s.count(results)
		return results
	}

	s.mu.Lock()
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			results[i] = dombatch.NewError(id, domain.ContextError(err))
			continue
		}
		if err := s.retractOne(ctx, id); err != nil {
			results[i] = dombatch.NewError(id, err)
			continue
		}
		results[i] = dombatch.NewOK(id, dombatch.ActionRetracted)
	}
	s.mu.Unlock()

	s.count(results)
	s.reportSize(ctx)
	return results
}

func (s *Service) retractOne(ctx context.Context, id string) error {
	if err := document.ValidateID(id); err != nil {
		return err
	}
	idxErr := s.index.Delete(ctx, id)
	if idxErr != nil && !errors.Is(idxErr, domain.ErrNotFound) {
		return fmt.Errorf("index: %w", idxErr)
	}
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if idxErr != nil && !removed {
		return fmt.Errorf("retract %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Rebuild asks the index backend to rebuild its search structure.
func (s *Service) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	s.logger.Info("Index rebuilt")
	return nil
}

func (s *Service) count(results []dombatch.Result) {
	for _, r := range results {
		action := string(r.Action())
		if !r.IsOK() {
			action = "none"
		}
		metrics.IngestItemsTotal.WithLabelValues(action, string(r.Status())).Inc()
	}
}

func (s *Service) reportSize(ctx context.Context) {
	n, err := s.index.Len(ctx)
	if err != nil {
		s.logger.Debug("Index size unavailable", zap.Error(err))
		return
	}
	metrics.IndexSize.Set(float64(n))
}

func sameMetadata(a, b document.Metadata) bool {
	return a.Source == b.Source &&
		a.RegistryNumber == b.RegistryNumber &&
		a.DecisionDate.Equal(b.DecisionDate) &&
		a.CourtName == b.CourtName &&
		a.Reason == b.Reason &&
		a.MaterialName == b.MaterialName &&
		maps.Equal(a.Extra, b.Extra)
}
