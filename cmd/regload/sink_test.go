package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/regcheck/internal/resilience"
	"github.com/kailas-cloud/regcheck/internal/transport/wire"
)

func testExecutor() *resilience.Executor {
	cfg := resilience.DefaultConfig()
	cfg.RetryInitialBackoff = time.Millisecond
	cfg.RetryMaxBackoff = time.Millisecond
	cfg.BreakerEnabled = false
	return resilience.NewExecutor(cfg, zap.NewNop())
}

func TestHTTPSink_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/documents" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		var req wire.UpsertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(wire.BatchResponse{Succeeded: len(req.Documents)})
	}))
	defer srv.Close()

	s := newHTTPSink(srv.Client(), srv.URL+"/", "secret", testExecutor())
	res, err := s.Send(context.Background(), []wire.Entry{{ID: "a", Content: "x"}, {ID: "b", Content: "y"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Succeeded != 2 {
		t.Errorf("succeeded = %d", res.Succeeded)
	}
}

func TestHTTPSink_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"code":"store_unavailable","message":"down"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(wire.BatchResponse{Succeeded: 1})
	}))
	defer srv.Close()

	s := newHTTPSink(srv.Client(), srv.URL, "", testExecutor())
	if _, err := s.Send(context.Background(), []wire.Entry{{Content: "x"}}); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestHTTPSink_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid_document","message":"batch too large"}`))
	}))
	defer srv.Close()

	s := newHTTPSink(srv.Client(), srv.URL, "", testExecutor())
	if _, err := s.Send(context.Background(), []wire.Entry{{Content: "x"}}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
