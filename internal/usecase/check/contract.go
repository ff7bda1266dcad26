package check

import (
	"context"

	"github.com/kailas-cloud/regcheck/internal/domain/search/result"
	"github.com/kailas-cloud/regcheck/internal/domain/verdict"
	"github.com/kailas-cloud/regcheck/internal/usecase/retrieval"
)

// Retriever produces ranked evidence for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts retrieval.Options) ([]result.Result, error)
}

// Decider turns evidence into a verdict.
type Decider interface {
	Decide(query string, evidence []result.Result, generation *string) (verdict.Verdict, error)
	NeedsCorroboration(evidence []result.Result) bool
}

// Generator is the optional language-model judgment over evidence. Output is untrusted text.
type Generator interface {
	Generate(ctx context.Context, query string, evidence []result.Result) (string, error)
}
