package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/document/filter"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
)

// warmupFlush is the number of documents loaded per index write during Warmup.
const warmupFlush = 100

// WarmupReport summarizes a Warmup pass.
type WarmupReport struct {
	Scanned    int
	Indexed    int
	Reembedded int
	Failed     int
}

// Warmup streams the Document Store and indexes every document the index lacks. Documents
// without a usable stored vector are embedded again and written back.
func (s *Service) Warmup(ctx context.Context) (WarmupReport, error) {
	var (
		rep     WarmupReport
		ready   []document.Document
		stale   []document.Document
		dim     = s.index.Dimension()
		flushFn = func() error {
			if err := s.warmupFlush(ctx, &rep, ready, stale); err != nil {
				return err
			}
			ready, stale = ready[:0], stale[:0]
			return nil
		}
	)

	for doc, err := range s.store.List(ctx, filter.Filter{}) {
		if err != nil {
			return rep, fmt.Errorf("warmup: list documents: %w", err)
		}
		rep.Scanned++

		indexed, err := s.index.Contains(ctx, doc.ID())
		if err != nil {
			return rep, fmt.Errorf("warmup: %w", err)
		}
		if indexed {
			continue
		}
		if vector.CheckDimension(doc.Embedding(), dim) == nil {
			ready = append(ready, doc)
		} else {
			stale = append(stale, doc)
		}
		if len(ready)+len(stale) >= warmupFlush {
			if err := flushFn(); err != nil {
				return rep, err
			}
		}
	}
	if err := flushFn(); err != nil {
		return rep, err
	}

	s.reportSize(ctx)
	s.logger.Info("Index warmup finished",
		zap.Int("scanned", rep.Scanned),
		zap.Int("indexed", rep.Indexed),
		zap.Int("reembedded", rep.Reembedded),
		zap.Int("failed", rep.Failed),
	)
	return rep, nil
}

func (s *Service) warmupFlush(ctx context.Context, rep *WarmupReport, ready, stale []document.Document) error {
	if len(stale) > 0 {
		texts := make([]string, len(stale))
		for i := range stale {
			texts[i] = stale[i].Content()
		}
		res, err := domain.EmbedAll(ctx, s.embed, texts)
		if err != nil {
			return fmt.Errorf("warmup: re-embed %d documents: %w", len(stale), domain.ContextError(err))
		}
		for i := range stale {
			if err := vector.CheckDimension(res.Embeddings[i], s.index.Dimension()); err != nil {
				s.logger.Error("Re-embedded vector has wrong dimension",
					zap.String("id", stale[i].ID()),
					zap.Error(err),
				)
				rep.Failed++
				continue
			}
			doc := stale[i].WithEmbedding(res.Embeddings[i])
			if _, err := s.store.Put(ctx, doc); err != nil {
				return fmt.Errorf("warmup: store %q: %w", doc.ID(), err)
			}
			ready = append(ready, doc)
			rep.Reembedded++
		}
	}
	if len(ready) == 0 {
		return nil
	}

	items := make([]vector.Item, len(ready))
	for i := range ready {
		items[i] = vector.Item{ID: ready[i].ID(), Vector: ready[i].Embedding(), Metadata: ready[i].Metadata()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.InsertBatch(ctx, items); err != nil {
		return fmt.Errorf("warmup: insert %d vectors: %w", len(items), err)
	}
	rep.Indexed += len(items)
	return nil
}
