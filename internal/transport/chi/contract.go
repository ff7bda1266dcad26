package chi

import (
	"context"
	"time"

	dombatch "github.com/kailas-cloud/regcheck/internal/domain/batch"
	"github.com/kailas-cloud/regcheck/internal/domain/search/result"
	"github.com/kailas-cloud/regcheck/internal/domain/verdict"
	checkuc "github.com/kailas-cloud/regcheck/internal/usecase/check"
	healthuc "github.com/kailas-cloud/regcheck/internal/usecase/health"
	"github.com/kailas-cloud/regcheck/internal/usecase/ingest"
	"github.com/kailas-cloud/regcheck/internal/usecase/retrieval"
)

// Checker classifies a query against the registry.
type Checker interface {
	Check(ctx context.Context, query string, timeout time.Duration) (verdict.Verdict, error)
	Stats() checkuc.Stats
}

// Searcher returns raw ranked evidence.
type Searcher interface {
	Retrieve(ctx context.Context, query string, opts retrieval.Options) ([]result.Result, error)
}

// Ingester writes registry entries.
type Ingester interface {
	Upsert(ctx context.Context, entries []ingest.Entry) []dombatch.Result
	Retract(ctx context.Context, ids []string) []dombatch.Result
	Rebuild(ctx context.Context) error
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
