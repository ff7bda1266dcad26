package retrieval

import (
	"context"
	"iter"

	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/document/filter"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
)

// Index finds the nearest registry vectors.
type Index interface {
	Search(ctx context.Context, q vector.Query) ([]vector.Hit, error)
}

// DocumentReader hydrates index hits.
type DocumentReader interface {
	Get(ctx context.Context, id string) (document.Document, bool, error)
}

// DocumentLister scans stored entries for keyword matching.
type DocumentLister interface {
	List(ctx context.Context, f filter.Filter) iter.Seq2[document.Document, error]
}
