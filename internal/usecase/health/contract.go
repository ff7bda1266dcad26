package health

import "context"

// StorePinger checks Document Store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexSizer reports the number of indexed vectors.
type IndexSizer interface {
	Len(ctx context.Context) (int, error)
}
