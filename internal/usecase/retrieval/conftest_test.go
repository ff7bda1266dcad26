package retrieval

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/document/filter"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
)

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
	texts   []string
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.texts = append(m.texts, text)
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0}}, nil
}

type mockIndex struct {
	searchFn func(ctx context.Context, q vector.Query) ([]vector.Hit, error)
	queries  []vector.Query
}

func (m *mockIndex) Search(ctx context.Context, q vector.Query) ([]vector.Hit, error) {
	m.queries = append(m.queries, q)
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return nil, nil
}

type mockDocs struct {
	getFn func(ctx context.Context, id string) (document.Document, bool, error)
}

func (m *mockDocs) Get(ctx context.Context, id string) (document.Document, bool, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	doc := document.Reconstruct(id, "entry "+id, document.Metadata{Source: document.SourceMinjust}, nil, time.Time{})
	return doc, true, nil
}

func newTestService(t *testing.T, opts ...Option) (*Service, *mockEmbedder, *mockIndex, *mockDocs) {
	t.Helper()
	emb, idx, docs := &mockEmbedder{}, &mockIndex{}, &mockDocs{}
	return New(emb, idx, docs, opts...), emb, idx, docs
}

type mockLister struct {
	docs    []document.Document
	err     error
	filters []filter.Filter
}

func (m *mockLister) List(_ context.Context, f filter.Filter) iter.Seq2[document.Document, error] {
	m.filters = append(m.filters, f)
	return func(yield func(document.Document, error) bool) {
		if m.err != nil {
			yield(document.Document{}, m.err)
			return
		}
		for _, d := range m.docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func stored(id, content string) document.Document {
	return document.Reconstruct(id, content, document.Metadata{Source: document.SourceMinjust}, nil, time.Time{})
}
