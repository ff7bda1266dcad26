package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	dombatch "github.com/kailas-cloud/regcheck/internal/domain/batch"
	"github.com/kailas-cloud/regcheck/internal/transport/wire"
	"github.com/kailas-cloud/regcheck/internal/usecase/ingest"
)

// Consumer defaults.
const (
	// DefaultHandlerTimeout bounds the processing of one message.
	DefaultHandlerTimeout = 2 * time.Minute
	// DefaultDrainTimeout bounds the wait for buffered messages on shutdown.
	DefaultDrainTimeout = 30 * time.Second

	drainPollInterval = 50 * time.Millisecond
)

var (
	errDrainTimeout = errors.New("nats drain did not finish in time")
	errUpsertEmpty  = errors.New("upsert payload has no entries")
	errRetractEmpty = errors.New("retract payload has no ids")
)

// Ingester writes registry entries.
type Ingester interface {
	Upsert(ctx context.Context, entries []ingest.Entry) []dombatch.Result
	Retract(ctx context.Context, ids []string) []dombatch.Result
}

// subscription is the part of *nats.Subscription used on shutdown.
type subscription interface {
	Drain() error
	IsValid() bool
}

// replier publishes request-reply answers.
type replier interface {
	Publish(subj string, data []byte) error
}

// ConsumerConfig selects subjects and the queue group.
type ConsumerConfig struct {
	UpsertSubject  string
	RetractSubject string
	Queue          string
	HandlerTimeout time.Duration
	DrainTimeout   time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.UpsertSubject == "" {
		c.UpsertSubject = SubjectUpsert
	}
	if c.RetractSubject == "" {
		c.RetractSubject = SubjectRetract
	}
	if c.Queue == "" {
		c.Queue = QueueGroup
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = DefaultHandlerTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	return c
}

// Consumer feeds ingestion from NATS. Messages with a reply subject get the batch outcome back.
type Consumer struct {
	conn     *nats.Conn
	reply    replier
	ingester Ingester
	cfg      ConsumerConfig
	logger   *zap.Logger
}

// NewConsumer creates a consumer on an open connection.
func NewConsumer(conn *nats.Conn, ingester Ingester, cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Consumer{ingester: ingester, cfg: cfg.withDefaults(), logger: logger}
	if conn != nil {
		c.conn = conn
		c.reply = conn
	}
	return c
}

// Run subscribes and blocks until ctx is done. It then drains the subscriptions and
// returns once every buffered message has been handled or the drain timeout passes.
// Handlers keep a live context until Run returns, so the drain does not fail them.
func (c *Consumer) Run(ctx context.Context) error {
	work, stopWork := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWork()

	subs := make([]subscription, 0, 2)
	for subject, handle := range map[string]func(context.Context, []byte) (wire.BatchResponse, error){
		c.cfg.UpsertSubject:  c.handleUpsert,
		c.cfg.RetractSubject: c.handleRetract,
	} {
		sub, err := c.conn.QueueSubscribe(subject, c.cfg.Queue, func(msg *nats.Msg) {
			c.dispatch(work, msg, handle)
		})
		if err != nil {
			return fmt.Errorf("nats subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	if err := c.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	c.logger.Info("NATS ingestion consumer started",
		zap.String("upsert_subject", c.cfg.UpsertSubject),
		zap.String("retract_subject", c.cfg.RetractSubject),
		zap.String("queue", c.cfg.Queue),
	)

	<-ctx.Done()
	if err := c.drain(subs); err != nil {
		return err
	}
	if err := c.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	c.logger.Info("NATS ingestion consumer drained")
	return nil
}

// drain stops delivery on every subscription and waits until each has handled its
// pending messages. nats.go drains asynchronously and invalidates the subscription
// when the last callback returns.
func (c *Consumer) drain(subs []subscription) error {
	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			return fmt.Errorf("nats drain: %w", err)
		}
	}

	deadline := time.NewTimer(c.cfg.DrainTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(drainPollInterval)
	defer tick.Stop()
	for {
		pending := 0
		for _, sub := range subs {
			if sub.IsValid() {
				pending++
			}
		}
		if pending == 0 {
			return nil
		}
		select {
		case <-deadline.C:
			c.logger.Error("NATS drain timed out", zap.Int("subscriptions", pending))
			return errDrainTimeout
		case <-tick.C:
		}
	}
}

func (c *Consumer) dispatch(
	ctx context.Context,
	msg *nats.Msg,
	handle func(context.Context, []byte) (wire.BatchResponse, error),
) {
	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandlerTimeout)
	defer cancel()

	resp, err := handle(hctx, msg.Data)
	if err != nil {
		c.logger.Warn("Rejected NATS message",
			zap.String("subject", msg.Subject),
			zap.Int("bytes", len(msg.Data)),
			zap.Error(err),
		)
		c.respond(msg, map[string]string{"error": err.Error()})
		return
	}
	c.logger.Info("NATS batch ingested",
		zap.String("subject", msg.Subject),
		zap.Int("succeeded", resp.Succeeded),
		zap.Int("failed", resp.Failed),
	)
	c.respond(msg, resp)
}

func (c *Consumer) respond(msg *nats.Msg, v any) {
	if msg.Reply == "" || c.reply == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Encode NATS reply", zap.Error(err))
		return
	}
	if err := c.reply.Publish(msg.Reply, data); err != nil {
		c.logger.Warn("Publish NATS reply", zap.String("reply", msg.Reply), zap.Error(err))
	}
}

// handleUpsert accepts a JSON array of entries or an {"documents": [...]} object.
func (c *Consumer) handleUpsert(ctx context.Context, data []byte) (wire.BatchResponse, error) {
	var entries []wire.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		var req wire.UpsertRequest
		if objErr := json.Unmarshal(data, &req); objErr != nil {
			return wire.BatchResponse{}, fmt.Errorf("decode upsert payload: %w", err)
		}
		entries = req.Documents
	}
	if len(entries) == 0 {
		return wire.BatchResponse{}, errUpsertEmpty
	}
	items, err := wire.ToIngestAll(entries)
	if err != nil {
		return wire.BatchResponse{}, err
	}
	return wire.FromBatch(c.ingester.Upsert(ctx, items), wire.ItemCode), nil
}

func (c *Consumer) handleRetract(ctx context.Context, data []byte) (wire.BatchResponse, error) {
	var req wire.RetractRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return wire.BatchResponse{}, fmt.Errorf("decode retract payload: %w", err)
	}
	if len(req.IDs) == 0 {
		return wire.BatchResponse{}, errRetractEmpty
	}
	return wire.FromBatch(c.ingester.Retract(ctx, req.IDs), wire.ItemCode), nil
}
