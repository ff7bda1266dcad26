package ingest

import (
	"context"
	"iter"

	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/document/filter"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
)

// Index is the write side of the vector index.
type Index interface {
	Dimension() int
	Insert(ctx context.Context, item vector.Item) error
	InsertBatch(ctx context.Context, items []vector.Item) error
	Delete(ctx context.Context, id string) error
	Contains(ctx context.Context, id string) (bool, error)
	Len(ctx context.Context) (int, error)
	Rebuild(ctx context.Context) error
}

// Store persists registry entries and their embeddings.
type Store interface {
	Put(ctx context.Context, doc document.Document) (string, error)
	Get(ctx context.Context, id string) (document.Document, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, f filter.Filter) iter.Seq2[document.Document, error]
}
