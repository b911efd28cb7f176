// Package outbox publishes events written to the transactional outbox.
package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-kart/internal/domain/order"
)

// Publisher is the subset of kafka.Writer the relay uses.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Config tunes a Relay.
type Config struct {
	Interval time.Duration
	Batch    int
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.Batch <= 0 {
		c.Batch = 100
	}
}

// NewWriter returns a kafka.Writer that keys partitions by message key, so
// events of one user stay ordered.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Relay moves pending outbox events to a Publisher. Delivery is at least
// once: an event is marked published only after the broker acknowledged it.
type Relay struct {
	events     order.Outbox
	pub        Publisher
	cfg        Config
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewRelay creates a Relay.
func NewRelay(events order.Outbox, pub Publisher, cfg Config, tp trace.TracerProvider) *Relay {
	cfg.setDefaults()
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	return &Relay{
		events:     events,
		pub:        pub,
		cfg:        cfg,
		tracer:     tp.Tracer("loyalty-kart/outbox"),
		propagator: propagation.TraceContext{},
	}
}

// Run flushes on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				lg.Warn("Outbox flush failed", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Debug("Outbox flushed", zap.Int("events", n))
			}
		}
	}
}

// Flush publishes one batch of pending events and returns how many were
// published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "outbox.Flush")
	defer span.End()

	pending, err := r.events.Pending(ctx, r.cfg.Batch)
	if err != nil {
		return 0, errors.Wrap(err, "load pending events")
	}
	if len(pending) == 0 {
		return 0, nil
	}
	span.SetAttributes(attribute.Int("outbox.events", len(pending)))

	msgs := make([]kafka.Message, len(pending))
	ids := make([]string, len(pending))
	for i, e := range pending {
		msgs[i] = r.message(ctx, e)
		ids[i] = e.ID
	}
	if err := r.pub.WriteMessages(ctx, msgs...); err != nil {
		return 0, errors.Wrap(err, "publish events")
	}
	if err := r.events.MarkPublished(ctx, ids, time.Now().UTC()); err != nil {
		return 0, errors.Wrap(err, "mark published")
	}
	return len(pending), nil
}

func (r *Relay) message(ctx context.Context, e order.Event) kafka.Message {
	headers := headerCarrier{
		{Key: "event-id", Value: []byte(e.ID)},
		{Key: "event-type", Value: []byte(e.Type)},
		{Key: "aggregate-id", Value: []byte(e.AggregateID)},
	}
	r.propagator.Inject(ctx, &headers)
	return kafka.Message{
		Key:     []byte(e.Key),
		Value:   e.Payload,
		Headers: headers,
		Time:    e.CreatedAt,
	}
}

// headerCarrier adapts Kafka headers to propagation.TextMapCarrier.
type headerCarrier []kafka.Header

func (h *headerCarrier) Get(key string) string {
	for _, v := range *h {
		if v.Key == key {
			return string(v.Value)
		}
	}
	return ""
}

func (h *headerCarrier) Set(key, value string) {
	for i, v := range *h {
		if v.Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

func (h *headerCarrier) Keys() []string {
	keys := make([]string, len(*h))
	for i, v := range *h {
		keys[i] = v.Key
	}
	return keys
}
