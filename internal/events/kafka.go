package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/apimplane/apim/internal/kafka"
	"github.com/apimplane/apim/internal/metrics"
)

// HeaderType is the record header carrying the event type.
const HeaderType = "event-type"

// DefaultSendTimeout bounds the delivery of one published event.
const DefaultSendTimeout = 10 * time.Second

// KafkaPublisher sends events to the events topic keyed by API id.
type KafkaPublisher struct {
	producer *kafka.Producer
	metrics  metrics.Recorder
	logger   *slog.Logger
	timeout  time.Duration
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a KafkaPublisher.
func NewKafkaPublisher(producer *kafka.Producer, recorder metrics.Recorder, logger *slog.Logger) *KafkaPublisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		producer: producer,
		metrics:  recorder,
		logger:   logger.With("component", "event_publisher"),
		timeout:  DefaultSendTimeout,
	}
}

// Publish hands the event to the producer and returns without waiting for
// the broker. The send outlives the caller's context but is bounded by the
// publisher timeout. Delivery failures are logged and counted.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := event.Encode()
	if err != nil {
		p.metrics.IncEventPublished("dropped")
		return fmt.Errorf("encode event: %w", err)
	}

	record := &kgo.Record{
		Key:     []byte(event.Key()),
		Value:   payload,
		Headers: []kgo.RecordHeader{{Key: HeaderType, Value: []byte(event.Type)}},
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	p.producer.SendAsync(sendCtx, record, func(_ *kgo.Record, err error) {
		cancel()
		if err != nil {
			p.metrics.IncEventPublished("failed")
			p.logger.Warn("event delivery failed", "type", event.Type, "api_id", event.ApiID, "error", err)
			return
		}
		p.metrics.IncEventPublished("success")
	})
	return nil
}

// Handler reacts to a consumed event.
type Handler func(ctx context.Context, event Event) error

// Listener consumes the events topic and hands every event to its handlers.
type Listener struct {
	consumer *kafka.ReactiveConsumer
	handlers []Handler
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewListener creates a Listener.
func NewListener(consumer *kafka.ReactiveConsumer, recorder metrics.Recorder, logger *slog.Logger, handlers ...Handler) *Listener {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		consumer: consumer,
		handlers: handlers,
		metrics:  recorder,
		logger:   logger.With("component", "event_listener"),
	}
}

// Run consumes until ctx is done or the consumer is closed. A handler error
// is logged and does not stop the other handlers. In a group, each record is
// committed once handled, undecodable ones included.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("event listener started", "topics", l.consumer.Subscription())
	for record := range l.consumer.Records(ctx) {
		l.handle(ctx, record)
		if err := l.consumer.Commit(ctx, record); err != nil {
			l.logger.Warn("commit failed", "topic", record.Topic, "partition", record.Partition, "offset", record.Offset, "error", err)
		}
	}
	l.logger.Info("event listener stopped")
	return nil
}

func (l *Listener) handle(ctx context.Context, record *kgo.Record) {
	event, err := Decode(record.Value)
	if err != nil {
		l.metrics.IncEventConsumed("dropped")
		l.logger.Warn("undecodable event", "topic", record.Topic, "offset", record.Offset, "error", err)
		return
	}

	status := "success"
	for _, h := range l.handlers {
		if err := h(ctx, event); err != nil {
			status = "failed"
			l.logger.Warn("event handler failed", "type", event.Type, "api_id", event.ApiID, "error", err)
		}
	}
	l.metrics.IncEventConsumed(status)
}
