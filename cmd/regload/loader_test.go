package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/regcheck/internal/transport/wire"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]wire.Entry
	sendFn  func(entries []wire.Entry) (wire.BatchResponse, error)
}

func (s *fakeSink) Send(_ context.Context, entries []wire.Entry) (wire.BatchResponse, error) {
	s.mu.Lock()
	s.batches = append(s.batches, entries)
	s.mu.Unlock()
	if s.sendFn != nil {
		return s.sendFn(entries)
	}
	return wire.BatchResponse{Succeeded: len(entries)}, nil
}

func (s *fakeSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func newTestLoader(s sink, workers, batchSize int) *loader {
	return &loader{
		sink:      s,
		workers:   workers,
		batchSize: batchSize,
		timeout:   time.Second,
		metrics:   newLoaderMetrics(prometheus.NewRegistry()),
		logger:    zap.NewNop(),
	}
}

func jsonLines(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `{"id":"e-%d","content":"Материал номер %d","source":"minjust"}`+"\n", i, i)
	}
	return b.String()
}

func TestLoader_BatchesAllLines(t *testing.T) {
	s := &fakeSink{}
	res, err := newTestLoader(s, 3, 10).Run(context.Background(), strings.NewReader(jsonLines(25)))
	if err != nil {
		t.Fatal(err)
	}
	if res.Lines != 25 || res.Succeeded != 25 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if s.total() != 25 {
		t.Errorf("shipped %d entries, want 25", s.total())
	}
	if len(s.batches) != 3 {
		t.Errorf("batches = %d, want 3", len(s.batches))
	}
	for _, b := range s.batches {
		if len(b) > 10 {
			t.Errorf("batch of %d exceeds batch size", len(b))
		}
	}
}

func TestLoader_SkipsMalformedAndBlank(t *testing.T) {
	input := `{"id":"a","content":"Книга А"}

not json
{"id":"b","content":"   "}
{"id":"c","content":"Книга В"}
`
	s := &fakeSink{}
	res, err := newTestLoader(s, 1, 100).Run(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if res.Lines != 4 || res.Malformed != 2 || res.Succeeded != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestLoader_CountsItemAndBatchFailures(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	s := &fakeSink{sendFn: func(entries []wire.Entry) (wire.BatchResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return wire.BatchResponse{}, errors.New("connection refused")
		}
		return wire.BatchResponse{
			Succeeded: len(entries) - 1,
			Failed:    1,
			Items:     []wire.BatchItem{{ID: entries[0].ID, Status: "error", Error: &wire.ItemError{Code: "invalid_document"}}},
		}, nil
	}}
	res, err := newTestLoader(s, 1, 5).Run(context.Background(), strings.NewReader(jsonLines(10)))
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 6 || res.Succeeded != 4 {
		t.Errorf("result = %+v, want 6 failed and 4 succeeded", res)
	}
}

func TestLoader_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestLoader(&fakeSink{}, 2, 1).Run(ctx, strings.NewReader(jsonLines(50)))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
