package kafka

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseBrokers(t *testing.T) {
	got := ParseBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Errorf("ParseBrokers = %v", got)
	}
	if ParseBrokers("") != nil {
		t.Error("empty list should give no brokers")
	}
}

func TestNewClient_RequiresBrokers(t *testing.T) {
	if _, err := NewClient(Config{}, discard()); !errors.Is(err, ErrNoBrokers) {
		t.Errorf("expected ErrNoBrokers, got %v", err)
	}
}

func TestReactiveConsumer_RecordsStream(t *testing.T) {
	client := newFakeClient()
	c := WrapConsumer(client, discard())

	r1 := &kgo.Record{Topic: "events", Value: []byte("1")}
	r2 := &kgo.Record{Topic: "events", Value: []byte("2")}
	r3 := &kgo.Record{Topic: "events", Value: []byte("3")}
	client.polls <- fetchOf("events", 0, r1, r2)
	client.polls <- errFetchOf("events", 1, errors.New("leader not available"))
	client.polls <- fetchOf("events", 1, r3)
	close(client.polls)

	var got []string
	for r := range c.Records(context.Background()) {
		got = append(got, string(r.Value))
	}
	if strings.Join(got, ",") != "1,2,3" {
		t.Errorf("records = %v, want 1,2,3", got)
	}
}

func TestReactiveConsumer_RecordsStopsOnCancel(t *testing.T) {
	client := newFakeClient()
	c := WrapConsumer(client, discard())

	ctx, cancel := context.WithCancel(context.Background())
	stream := c.Records(ctx)
	cancel()

	select {
	case _, ok := <-stream:
		if ok {
			t.Error("no record expected after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("stream was not closed after cancel")
	}
}

func TestReactiveConsumer_Poll(t *testing.T) {
	client := newFakeClient()
	c := WrapConsumer(client, discard())

	records, err := c.Poll(context.Background(), 10*time.Millisecond)
	if err != nil || len(records) != 0 {
		t.Errorf("timeout poll = %v, %v; want no records and no error", records, err)
	}

	client.polls <- fetchOf("events", 0, &kgo.Record{Value: []byte("x")})
	records, err = c.Poll(context.Background(), time.Second)
	if err != nil || len(records) != 1 {
		t.Errorf("poll = %v, %v", records, err)
	}

	client.polls <- errFetchOf("events", 0, kerr.UnknownTopicOrPartition)
	if _, err := c.Poll(context.Background(), time.Second); !errors.Is(err, kerr.UnknownTopicOrPartition) {
		t.Errorf("expected fetch error, got %v", err)
	}

	close(client.polls)
	if _, err := c.Poll(context.Background(), time.Second); !errors.Is(err, kgo.ErrClientClosed) {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}

func TestReactiveConsumer_Delegates(t *testing.T) {
	client := newFakeClient()
	c := WrapConsumer(client, discard())
	ctx := context.Background()

	c.Subscribe("b", "a", "a")
	c.Unsubscribe("b")
	if got := c.Subscription(); len(got) != 1 || got[0] != "a" {
		t.Errorf("subscription = %v", got)
	}
	if len(client.purged) != 1 || client.purged[0] != "b" {
		t.Errorf("purged = %v", client.purged)
	}

	r := &kgo.Record{Topic: "a"}
	if err := c.Commit(ctx); err != nil {
		t.Fatalf("empty commit: %v", err)
	}
	if err := c.Commit(ctx, r); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := c.CommitAll(ctx); err != nil {
		t.Fatalf("commit all: %v", err)
	}
	if len(client.committed) != 1 || client.commitAll != 1 {
		t.Errorf("committed = %d records, %d commit-all", len(client.committed), client.commitAll)
	}

	c.Pause(TopicPartitions{"a": {0, 1}})
	if paused := c.Paused(); len(paused["a"]) != 2 {
		t.Errorf("paused = %v", paused)
	}
	c.Resume(TopicPartitions{"a": {0, 1}})
	if paused := c.Paused(); len(paused) != 0 {
		t.Errorf("paused after resume = %v", paused)
	}

	c.Close()
	c.Close()
	if client.closed != 1 {
		t.Errorf("client closed %d times, want 1", client.closed)
	}
}

func TestReactiveConsumer_WithoutGroupNeverCommits(t *testing.T) {
	c, err := NewReactiveConsumer(Config{
		Brokers: []string{"127.0.0.1:1"},
		Topics:  []string{"events"},
	}, discard())
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Commit(ctx, &kgo.Record{Topic: "events", Offset: 4}); err != nil {
		t.Errorf("commit outside a group: %v", err)
	}
	if err := c.CommitAll(ctx); err != nil {
		t.Errorf("commit all outside a group: %v", err)
	}
}

func TestReactiveConsumer_Assignment(t *testing.T) {
	c := WrapConsumer(newFakeClient(), discard())

	c.assigned(map[string][]int32{"events": {2, 0}})
	c.assigned(map[string][]int32{"events": {1, 0}})
	got := c.Assignment()
	if len(got["events"]) != 3 || got["events"][0] != 0 || got["events"][2] != 2 {
		t.Errorf("assignment = %v", got)
	}

	c.revoked(map[string][]int32{"events": {0, 1, 2}})
	if got := c.Assignment(); len(got) != 0 {
		t.Errorf("assignment after revoke = %v", got)
	}
}

func TestProducer(t *testing.T) {
	client := newFakeClient()
	p := NewProducer(client, "events")
	ctx := context.Background()

	if err := p.Send(ctx, &kgo.Record{Value: []byte("a")}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := p.Send(ctx, &kgo.Record{Topic: "other", Value: []byte("b")}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if client.produced[0].Topic != "events" || client.produced[1].Topic != "other" {
		t.Errorf("topics = %s, %s", client.produced[0].Topic, client.produced[1].Topic)
	}

	client.produceErr = kerr.NotLeaderForPartition
	if err := p.Send(ctx, &kgo.Record{}); !errors.Is(err, kerr.NotLeaderForPartition) {
		t.Errorf("expected produce error, got %v", err)
	}

	var asyncErr error
	p.SendAsync(ctx, &kgo.Record{}, func(_ *kgo.Record, err error) { asyncErr = err })
	if !errors.Is(asyncErr, kerr.NotLeaderForPartition) {
		t.Errorf("async error = %v", asyncErr)
	}
	p.SendAsync(ctx, &kgo.Record{}, nil)
}

type fakeAdmin struct {
	responses kadm.CreateTopicResponses
	err       error
	got       []string
}

func (f *fakeAdmin) CreateTopics(_ context.Context, _ int32, _ int16, _ map[string]*string, topics ...string) (kadm.CreateTopicResponses, error) {
	f.got = topics
	return f.responses, f.err
}

func TestEnsureTopics(t *testing.T) {
	ctx := context.Background()

	admin := &fakeAdmin{responses: kadm.CreateTopicResponses{
		"new":      {Topic: "new"},
		"existing": {Topic: "existing", Err: kerr.TopicAlreadyExists},
	}}
	if err := EnsureTopics(ctx, admin, TopicSpec{}, "new", "existing"); err != nil {
		t.Errorf("EnsureTopics: %v", err)
	}

	admin.responses["denied"] = kadm.CreateTopicResponse{Topic: "denied", Err: kerr.TopicAuthorizationFailed}
	err := EnsureTopics(ctx, admin, TopicSpec{Partitions: 3, ReplicationFactor: 1}, "new", "denied", "lost")
	if !errors.Is(err, kerr.TopicAuthorizationFailed) {
		t.Errorf("expected authorization error, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "lost: no response") {
		t.Errorf("missing response should be reported, got %v", err)
	}

	if err := EnsureTopics(ctx, admin, TopicSpec{}); err != nil || len(admin.got) != 3 {
		t.Error("no topics should not call the admin")
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), kgo.LogLevelInfo)

	if l.Level() != kgo.LogLevelInfo {
		t.Errorf("level = %v", l.Level())
	}
	l.Log(kgo.LogLevelWarn, "metadata refresh failed", "broker", "kafka-1")
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "broker=kafka-1") || !strings.Contains(out, "component=kafka") {
		t.Errorf("unexpected log line %q", out)
	}
}
