package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dombatch "github.com/kailas-cloud/regcheck/internal/domain/batch"
	"github.com/kailas-cloud/regcheck/internal/domain/search/result"
	"github.com/kailas-cloud/regcheck/internal/domain/verdict"
	checkuc "github.com/kailas-cloud/regcheck/internal/usecase/check"
	healthuc "github.com/kailas-cloud/regcheck/internal/usecase/health"
	"github.com/kailas-cloud/regcheck/internal/usecase/ingest"
	"github.com/kailas-cloud/regcheck/internal/usecase/retrieval"
)

type mockChecker struct {
	checkFn func(ctx context.Context, query string, timeout time.Duration) (verdict.Verdict, error)
	stats   checkuc.Stats
}

func (m *mockChecker) Check(ctx context.Context, query string, timeout time.Duration) (verdict.Verdict, error) {
	if m.checkFn != nil {
		return m.checkFn(ctx, query, timeout)
	}
	return verdict.NewNotMatched(0.9, "", verdict.CorroborationNone), nil
}

func (m *mockChecker) Stats() checkuc.Stats { return m.stats }

type mockSearcher struct {
	retrieveFn func(ctx context.Context, query string, opts retrieval.Options) ([]result.Result, error)
}

func (m *mockSearcher) Retrieve(ctx context.Context, query string, opts retrieval.Options) ([]result.Result, error) {
	if m.retrieveFn != nil {
		return m.retrieveFn(ctx, query, opts)
	}
	return nil, nil
}

type mockIngester struct {
	upsertFn  func(ctx context.Context, entries []ingest.Entry) []dombatch.Result
	retractFn func(ctx context.Context, ids []string) []dombatch.Result
	rebuildFn func(ctx context.Context) error
}

func (m *mockIngester) Upsert(ctx context.Context, entries []ingest.Entry) []dombatch.Result {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, entries)
	}
	out := make([]dombatch.Result, len(entries))
	for i, e := range entries {
		out[i] = dombatch.NewOK(e.ID, dombatch.ActionCreated)
	}
	return out
}

func (m *mockIngester) Retract(ctx context.Context, ids []string) []dombatch.Result {
	if m.retractFn != nil {
		return m.retractFn(ctx, ids)
	}
	out := make([]dombatch.Result, len(ids))
	for i, id := range ids {
		out[i] = dombatch.NewOK(id, dombatch.ActionRetracted)
	}
	return out
}

func (m *mockIngester) Rebuild(ctx context.Context) error {
	if m.rebuildFn != nil {
		return m.rebuildFn(ctx)
	}
	return nil
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

type deps struct {
	checker  *mockChecker
	searcher *mockSearcher
	ingester *mockIngester
	health   *mockHealth
}

func newDeps() *deps {
	return &deps{
		checker:  &mockChecker{},
		searcher: &mockSearcher{},
		ingester: &mockIngester{},
		health: &mockHealth{report: healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{healthuc.ComponentStore: healthuc.CheckOK},
		}},
	}
}

func (d *deps) handler(cfg Config) http.Handler {
	return NewServer(d.checker, d.searcher, d.ingester, d.health, cfg, nil).Routes()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}
