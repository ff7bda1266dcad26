package check

import (
	"context"
	"testing"

	"github.com/kailas-cloud/regcheck/internal/domain/search/result"
	"github.com/kailas-cloud/regcheck/internal/usecase/decision"
	"github.com/kailas-cloud/regcheck/internal/usecase/retrieval"
)

type mockRetriever struct {
	retrieveFn func(ctx context.Context, query string, opts retrieval.Options) ([]result.Result, error)
}

func (m *mockRetriever) Retrieve(ctx context.Context, query string, opts retrieval.Options) ([]result.Result, error) {
	if m.retrieveFn != nil {
		return m.retrieveFn(ctx, query, opts)
	}
	return nil, nil
}

type mockGenerator struct {
	generateFn func(ctx context.Context, query string, evidence []result.Result) (string, error)
	calls      int
}

func (m *mockGenerator) Generate(ctx context.Context, query string, evidence []result.Result) (string, error) {
	m.calls++
	if m.generateFn != nil {
		return m.generateFn(ctx, query, evidence)
	}
	return "", nil
}

func evidenceWith(scores ...float64) []result.Result {
	out := make([]result.Result, len(scores))
	for i, s := range scores {
		out[i] = result.New("d"+string(rune('1'+i)), "entry", docMeta(), s, i+1)
	}
	return out
}

func newTestService(t *testing.T, r *mockRetriever, g Generator, cfg Config) *Service {
	t.Helper()
	p, err := decision.New(decision.DefaultConfig())
	if err != nil {
		t.Fatalf("decision.New: %v", err)
	}
	return New(r, p, g, cfg, nil)
}
