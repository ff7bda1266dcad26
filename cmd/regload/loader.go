package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/regcheck/internal/transport/wire"
)

// maxLineBytes bounds one JSON line.
const maxLineBytes = 1 << 20

// loader runs the pipeline: reader -> channel([]wire.Entry) -> N workers -> sink.
type loader struct {
	sink      sink
	workers   int
	batchSize int
	timeout   time.Duration
	metrics   *loaderMetrics
	logger    *zap.Logger
}

// loadResult sums up a run.
type loadResult struct {
	Lines     int64
	Succeeded int64
	Failed    int64
	Malformed int64
	Duration  time.Duration
}

// Run reads entries from r and ships them in batches until r is exhausted or ctx ends.
func (l *loader) Run(ctx context.Context, r io.Reader) (loadResult, error) {
	workers := max(l.workers, 1)
	batches := make(chan []wire.Entry, workers*2)

	var (
		wg                       sync.WaitGroup
		succeeded, failed, lines atomic.Int64
		malformed                atomic.Int64
	)
	start := time.Now()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for batch := range batches {
				l.send(ctx, id, batch, &succeeded, &failed)
			}
		}(i)
	}

	readErr := l.produce(ctx, r, batches, &lines, &malformed)
	close(batches)
	wg.Wait()

	res := loadResult{
		Lines:     lines.Load(),
		Succeeded: succeeded.Load(),
		Failed:    failed.Load(),
		Malformed: malformed.Load(),
		Duration:  time.Since(start),
	}
	if readErr != nil {
		return res, readErr
	}
	return res, ctx.Err()
}

func (l *loader) produce(ctx context.Context, r io.Reader, out chan<- []wire.Entry, lines, malformed *atomic.Int64) error {
	size := max(l.batchSize, 1)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	batch := make([]wire.Entry, 0, size)
	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		select {
		case out <- batch:
			batch = make([]wire.Entry, 0, size)
			return true
		case <-ctx.Done():
			return false
		}
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		n := lines.Add(1)

		var e wire.Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil || strings.TrimSpace(e.Content) == "" {
			malformed.Add(1)
			l.metrics.entriesFailed.WithLabelValues("malformed").Inc()
			l.logger.Warn("Skipping malformed line", zap.Int64("line", n), zap.Error(err))
			continue
		}
		batch = append(batch, e)
		if len(batch) >= size && !flush() {
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if !flush() {
		return ctx.Err()
	}
	return nil
}

func (l *loader) send(ctx context.Context, worker int, batch []wire.Entry, succeeded, failed *atomic.Int64) {
	if ctx.Err() != nil {
		failed.Add(int64(len(batch)))
		return
	}
	bctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	res, err := l.sink.Send(bctx, batch)
	l.metrics.batchDuration.Observe(time.Since(start).Seconds())
	l.metrics.batchesTotal.Inc()

	if err != nil {
		l.logger.Error("Batch failed",
			zap.Int("worker", worker),
			zap.Int("size", len(batch)),
			zap.Error(err),
		)
		failed.Add(int64(len(batch)))
		l.metrics.entriesFailed.WithLabelValues("batch_error").Add(float64(len(batch)))
		return
	}

	succeeded.Add(int64(res.Succeeded))
	failed.Add(int64(res.Failed))
	l.metrics.entriesShipped.Add(float64(res.Succeeded))
	if res.Failed > 0 {
		l.metrics.entriesFailed.WithLabelValues("item_error").Add(float64(res.Failed))
		// First failure only, for diagnostics.
		for _, it := range res.Items {
			if it.Error != nil {
				l.logger.Warn("Entry rejected",
					zap.Int("worker", worker),
					zap.String("id", it.ID),
					zap.String("code", it.Error.Code),
					zap.String("message", it.Error.Message),
				)
				break
			}
		}
	}
}
