// Package events carries domain events between management nodes over Kafka.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event is a domain event. ApiID is the partitioning key so every event of
// one API is observed in order.
type Event struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	EnvironmentID string            `json:"environmentId"`
	ApiID         string            `json:"apiId"`
	ReferenceID   string            `json:"referenceId,omitempty"`
	Actor         string            `json:"actor,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
	OccurredAt    time.Time         `json:"occurredAt"`
}

// Key returns the partitioning key of the event.
func (e Event) Key() string {
	return e.ApiID
}

// Encode serializes the event payload.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an event payload.
func Decode(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher drops every event. It is used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event Event) error { return nil }

// LocalPublisher runs in-process handlers on every event, then forwards it
// to next. Handler errors are logged and never fail the publish.
type LocalPublisher struct {
	next     Publisher
	handlers []Handler
	logger   *slog.Logger
}

// NewLocalPublisher creates a LocalPublisher. A nil next drops the event
// once the handlers ran.
func NewLocalPublisher(next Publisher, logger *slog.Logger, handlers ...Handler) *LocalPublisher {
	if next == nil {
		next = NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalPublisher{next: next, handlers: handlers, logger: logger.With("component", "local_publisher")}
}

func (p *LocalPublisher) Publish(ctx context.Context, event Event) error {
	for _, h := range p.handlers {
		if err := h(ctx, event); err != nil {
			p.logger.Warn("local event handler failed", "type", event.Type, "api_id", event.ApiID, "error", err)
		}
	}
	return p.next.Publish(ctx, event)
}

// RecordingPublisher keeps published events in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *RecordingPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (p *RecordingPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Types returns the type of every recorded event in order.
func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}
