package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/kailas-cloud/regcheck/internal/resilience"
	"github.com/kailas-cloud/regcheck/internal/transport/wire"
)

// conn is the publishing side of a NATS connection.
type conn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// executor runs calls with retry and a circuit breaker.
type executor interface {
	Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier resilience.ErrorClassifier) error
}

// Publisher ships registry batches to the ingestion subjects.
type Publisher struct {
	conn           conn
	exec           executor
	upsertSubject  string
	retractSubject string
}

// NewPublisher creates a publisher. Empty subjects take the defaults; exec may be nil.
func NewPublisher(c conn, exec executor, upsertSubject, retractSubject string) *Publisher {
	if upsertSubject == "" {
		upsertSubject = SubjectUpsert
	}
	if retractSubject == "" {
		retractSubject = SubjectRetract
	}
	return &Publisher{conn: c, exec: exec, upsertSubject: upsertSubject, retractSubject: retractSubject}
}

// PublishUpsert sends entries as a JSON array.
func (p *Publisher) PublishUpsert(ctx context.Context, entries []wire.Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode upsert batch: %w", err)
	}
	return p.publish(ctx, p.upsertSubject, data)
}

// PublishRetract sends ids to retract.
func (p *Publisher) PublishRetract(ctx context.Context, ids []string) error {
	data, err := json.Marshal(wire.RetractRequest{IDs: ids})
	if err != nil {
		return fmt.Errorf("encode retract batch: %w", err)
	}
	return p.publish(ctx, p.retractSubject, data)
}

// Flush waits until the server has processed everything published so far.
func (p *Publisher) Flush(ctx context.Context) error {
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, subject string, data []byte) error {
	call := func(context.Context) error {
		if err := p.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}
	if p.exec == nil {
		return call(ctx)
	}
	return p.exec.Execute(ctx, "nats.publish", call, classifyNATSError)
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrConnectionReconnecting):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}
