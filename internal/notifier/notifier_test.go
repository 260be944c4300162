package notifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apimplane/apim/internal/events"
	"github.com/apimplane/apim/internal/metrics"
)

const testSecret = "notify-secret"

func newTestNotifier(t *testing.T, url string, maxAttempts int) (*Notifier, *metrics.InMemoryRecorder) {
	t.Helper()
	rec := metrics.NewInMemory()
	n, err := New(Config{URL: url, Secret: testSecret, MaxAttempts: maxAttempts, QueueSize: 1}, rec, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	n.backoff = func(int) time.Duration { return 0 }
	return n, rec
}

func testEvent() events.Event {
	return events.Event{
		ID:            "evt-1",
		Type:          "PLAN_PUBLISHED",
		EnvironmentID: "DEFAULT",
		ApiID:         "api-1",
		OccurredAt:    time.Now().UTC(),
	}
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "not a url", "http://"} {
		if _, err := New(Config{URL: raw}, nil, nil); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("New(%q) error = %v, want ErrInvalidURL", raw, err)
		}
	}
}

func TestNotifier_DeliverSignsPayload(t *testing.T) {
	type captured struct {
		header http.Header
		body   []byte
	}
	calls := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls <- captured{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, rec := newTestNotifier(t, srv.URL, 3)
	n.deliver(context.Background(), delivery{id: "d-1", event: testEvent()})

	var c captured
	select {
	case c = <-calls:
	default:
		t.Fatal("webhook was not called")
	}
	got, body := c, c.body
	if got.header.Get(HeaderDeliveryID) != "d-1" {
		t.Errorf("delivery id = %q", got.header.Get(HeaderDeliveryID))
	}
	if got.header.Get(HeaderEvent) != "PLAN_PUBLISHED" {
		t.Errorf("event header = %q", got.header.Get(HeaderEvent))
	}
	ts, err := strconv.ParseInt(got.header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		t.Fatalf("timestamp header: %v", err)
	}
	if err := ValidateSignature(testSecret, got.header.Get(HeaderSignature), ts, body, DefaultReplayWindow); err != nil {
		t.Errorf("signature does not validate: %v", err)
	}

	decoded, err := events.Decode(body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.ApiID != "api-1" {
		t.Errorf("decoded api id = %q", decoded.ApiID)
	}
	if rec.Snapshot().Notifications["success"] != 1 {
		t.Errorf("notifications = %v", rec.Snapshot().Notifications)
	}
}

func TestNotifier_DeliverRetries(t *testing.T) {
	tests := []struct {
		name        string
		statuses    []int
		maxAttempts int
		wantCalls   int32
		want        map[string]uint64
	}{
		{
			name:        "transient then success",
			statuses:    []int{http.StatusBadGateway, http.StatusOK},
			maxAttempts: 3,
			wantCalls:   2,
			want:        map[string]uint64{"failed": 1, "success": 1},
		},
		{
			name:        "rate limited is retried",
			statuses:    []int{http.StatusTooManyRequests, http.StatusAccepted},
			maxAttempts: 3,
			wantCalls:   2,
			want:        map[string]uint64{"failed": 1, "success": 1},
		},
		{
			name:        "client error is permanent",
			statuses:    []int{http.StatusBadRequest},
			maxAttempts: 3,
			wantCalls:   1,
			want:        map[string]uint64{"exhausted": 1},
		},
		{
			name:        "attempts exhausted",
			statuses:    []int{http.StatusServiceUnavailable},
			maxAttempts: 3,
			wantCalls:   3,
			want:        map[string]uint64{"failed": 2, "exhausted": 1},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				i := int(atomic.AddInt32(&calls, 1)) - 1
				if i >= len(tt.statuses) {
					i = len(tt.statuses) - 1
				}
				w.WriteHeader(tt.statuses[i])
			}))
			defer srv.Close()

			n, rec := newTestNotifier(t, srv.URL, tt.maxAttempts)
			n.deliver(context.Background(), delivery{id: "d-1", event: testEvent()})

			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			got := rec.Snapshot().Notifications
			for status, count := range tt.want {
				if got[status] != count {
					t.Errorf("notifications[%s] = %d, want %d (all: %v)", status, got[status], count, got)
				}
			}
		})
	}
}

func TestNotifier_NotifyDropsWhenQueueFull(t *testing.T) {
	n, rec := newTestNotifier(t, "http://127.0.0.1:1", 1)

	if err := n.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("first Notify() error = %v", err)
	}
	if err := n.Notify(context.Background(), testEvent()); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second Notify() error = %v, want ErrQueueFull", err)
	}
	if rec.Snapshot().Notifications["dropped"] != 1 {
		t.Errorf("notifications = %v", rec.Snapshot().Notifications)
	}
}

func TestNotifier_RunDeliversQueuedEvents(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get(HeaderEvent)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, _ := newTestNotifier(t, srv.URL, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	if err := n.Notify(ctx, testEvent()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	select {
	case typ := <-received:
		if typ != "PLAN_PUBLISHED" {
			t.Errorf("event header = %q", typ)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("notification was not delivered")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
