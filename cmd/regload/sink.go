package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kailas-cloud/regcheck/internal/resilience"
	natsTransport "github.com/kailas-cloud/regcheck/internal/transport/nats"
	"github.com/kailas-cloud/regcheck/internal/transport/wire"
)

// sink delivers one batch of entries.
type sink interface {
	Send(ctx context.Context, entries []wire.Entry) (wire.BatchResponse, error)
}

type flusher interface {
	Flush(ctx context.Context) error
}

type executor interface {
	Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier resilience.ErrorClassifier) error
}

// httpSink sends batches to PUT /v1/documents.
type httpSink struct {
	client   *http.Client
	endpoint string
	apiKey   string
	exec     executor
}

func newHTTPSink(client *http.Client, baseURL, apiKey string, exec executor) *httpSink {
	return &httpSink{
		client:   client,
		endpoint: strings.TrimRight(baseURL, "/") + "/v1/documents",
		apiKey:   apiKey,
		exec:     exec,
	}
}

func (s *httpSink) Send(ctx context.Context, entries []wire.Entry) (wire.BatchResponse, error) {
	body, err := json.Marshal(wire.UpsertRequest{Documents: entries})
	if err != nil {
		return wire.BatchResponse{}, fmt.Errorf("marshal batch: %w", err)
	}

	var out wire.BatchResponse
	err = s.exec.Execute(ctx, "regcheck.upsert", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			var e wire.ItemError
			_ = json.Unmarshal(data, &e)
			return &resilience.StatusError{Operation: "upsert", StatusCode: resp.StatusCode, Message: e.Message}
		}
		out = wire.BatchResponse{}
		return json.Unmarshal(data, &out)
	}, resilience.ClassifyHTTP)
	if err != nil {
		return wire.BatchResponse{}, fmt.Errorf("upsert %d entries: %w", len(entries), err)
	}
	return out, nil
}

// natsSink publishes batches to the upsert subject. Delivery is fire-and-forget, so every
// published entry counts as shipped; rejections surface in the service logs.
type natsSink struct {
	pub *natsTransport.Publisher
}

func newNATSSink(pub *natsTransport.Publisher) *natsSink {
	return &natsSink{pub: pub}
}

func (s *natsSink) Send(ctx context.Context, entries []wire.Entry) (wire.BatchResponse, error) {
	if err := s.pub.PublishUpsert(ctx, entries); err != nil {
		return wire.BatchResponse{}, err
	}
	return wire.BatchResponse{Succeeded: len(entries)}, nil
}

func (s *natsSink) Flush(ctx context.Context) error {
	return s.pub.Flush(ctx)
}
