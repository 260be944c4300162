package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/apimplane/apim/internal/events"
	"github.com/apimplane/apim/internal/metrics"
)

// DefaultQueueSize is the number of notifications buffered before drops.
const DefaultQueueSize = 256

var (
	// ErrQueueFull is returned when a notification cannot be buffered.
	ErrQueueFull = errors.New("notification queue is full")
	// ErrInvalidURL is returned for a webhook URL that is not absolute http(s).
	ErrInvalidURL = errors.New("webhook url must be an absolute http or https url")
)

// Config holds the webhook settings.
type Config struct {
	URL         string
	Secret      string
	MaxAttempts int
	QueueSize   int
}

type delivery struct {
	id    string
	event events.Event
}

// permanentError stops the retries of a delivery.
type permanentError struct{ status int }

func (e *permanentError) Error() string { return fmt.Sprintf("HTTP %d", e.status) }

// Notifier posts signed events to a webhook from a background worker.
type Notifier struct {
	target      string
	secret      string
	maxAttempts int
	client      *http.Client
	queue       chan delivery
	metrics     metrics.Recorder
	logger      *slog.Logger

	backoff func(attempt int) time.Duration
}

// New creates a Notifier. Run must be started for deliveries to happen.
func New(cfg Config, recorder metrics.Recorder, logger *slog.Logger) (*Notifier, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		target:      cfg.URL,
		secret:      cfg.Secret,
		maxAttempts: cfg.MaxAttempts,
		client:      NewHTTPClient(),
		queue:       make(chan delivery, cfg.QueueSize),
		metrics:     recorder,
		logger:      logger.With("component", "notifier", "target_host", u.Host),
		backoff:     NextRetryDelay,
	}, nil
}

// Notify queues an event for delivery. It never blocks.
func (n *Notifier) Notify(_ context.Context, event events.Event) error {
	select {
	case n.queue <- delivery{id: ulid.Make().String(), event: event}:
		return nil
	default:
		n.metrics.IncNotificationDelivered("dropped")
		return ErrQueueFull
	}
}

// Run delivers queued events until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	n.logger.Info("notifier started")
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("notifier stopping", "pending", len(n.queue))
			return nil
		case d := <-n.queue:
			n.deliver(ctx, d)
		}
	}
}

// deliver sends one event, retrying transient failures with backoff.
func (n *Notifier) deliver(ctx context.Context, d delivery) {
	payload, err := d.event.Encode()
	if err != nil {
		n.metrics.IncNotificationDelivered("dropped")
		n.logger.Error("cannot encode notification", "delivery_id", d.id, "error", err)
		return
	}

	for attempt := 1; ; attempt++ {
		err := n.send(ctx, d, payload)
		if err == nil {
			n.metrics.IncNotificationDelivered("success")
			return
		}

		var perm *permanentError
		exhausted := attempt >= n.maxAttempts || errors.As(err, &perm)
		n.logger.Warn("notification delivery failed",
			"delivery_id", d.id,
			"event_type", d.event.Type,
			"attempt", attempt,
			"exhausted", exhausted,
			"error", err,
		)
		if exhausted {
			n.metrics.IncNotificationDelivered("exhausted")
			return
		}
		n.metrics.IncNotificationDelivered("failed")

		timer := time.NewTimer(n.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (n *Notifier) send(ctx context.Context, d delivery, payload []byte) error {
	timestamp := time.Now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	signedHeaders(req,
		GenerateSignature(n.secret, timestamp, payload),
		strconv.FormatInt(timestamp, 10),
		d.id,
		d.event.Type,
	)

	start := time.Now()
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		n.logger.Debug("notification delivered",
			"delivery_id", d.id,
			"http_status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	default:
		return &permanentError{status: resp.StatusCode}
	}
}
