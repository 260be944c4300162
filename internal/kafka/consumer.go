package kafka

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// TopicPartitions maps topics to partition numbers.
type TopicPartitions map[string][]int32

// ReactiveConsumer exposes a consumer as a stream of records. Every method
// delegates to the wrapped client.
type ReactiveConsumer struct {
	client Client
	logger *slog.Logger

	grouped bool

	mu         sync.Mutex
	topics     []string
	assignment TopicPartitions
	closeOnce  sync.Once
}

// NewReactiveConsumer builds a client from cfg and wraps it. Partition
// assignment is tracked through the group rebalance hooks. A consumer
// without a group reads only records produced after it started and never
// commits.
func NewReactiveConsumer(cfg Config, logger *slog.Logger) (*ReactiveConsumer, error) {
	c := newConsumer(nil, logger)
	c.grouped = cfg.Group != ""
	opts := []kgo.Opt{
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			c.assigned(assigned)
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			c.revoked(revoked)
		}),
		kgo.OnPartitionsLost(func(_ context.Context, _ *kgo.Client, lost map[string][]int32) {
			c.revoked(lost)
		}),
	}
	if !c.grouped {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	}
	client, err := NewClient(cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	c.client = client
	c.topics = append(c.topics, cfg.Topics...)
	return c, nil
}

// WrapConsumer wraps an existing client that consumes in a group.
func WrapConsumer(client Client, logger *slog.Logger) *ReactiveConsumer {
	c := newConsumer(client, logger)
	c.grouped = true
	return c
}

func newConsumer(client Client, logger *slog.Logger) *ReactiveConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReactiveConsumer{
		client:     client,
		logger:     logger.With("component", "kafka_consumer"),
		assignment: make(TopicPartitions),
	}
}

// Subscribe adds topics to consume.
func (c *ReactiveConsumer) Subscribe(topics ...string) {
	c.mu.Lock()
	for _, t := range topics {
		if !slices.Contains(c.topics, t) {
			c.topics = append(c.topics, t)
		}
	}
	c.mu.Unlock()
	c.client.AddConsumeTopics(topics...)
}

// Unsubscribe stops consuming topics and forgets them.
func (c *ReactiveConsumer) Unsubscribe(topics ...string) {
	c.mu.Lock()
	c.topics = slices.DeleteFunc(c.topics, func(t string) bool {
		return slices.Contains(topics, t)
	})
	for _, t := range topics {
		delete(c.assignment, t)
	}
	c.mu.Unlock()
	c.client.PurgeTopicsFromClient(topics...)
}

// Subscription returns the subscribed topics, sorted.
func (c *ReactiveConsumer) Subscription() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	topics := slices.Clone(c.topics)
	sort.Strings(topics)
	return topics
}

// Records streams fetched records until ctx is done or the client closes.
// Fetch errors are logged and the stream goes on. The channel is closed
// when the stream ends.
func (c *ReactiveConsumer) Records(ctx context.Context) <-chan *kgo.Record {
	out := make(chan *kgo.Record)
	go func() {
		defer close(out)
		for {
			fetches := c.client.PollFetches(ctx)
			if fetches.IsClientClosed() || ctx.Err() != nil {
				return
			}
			c.logFetchErrors(fetches)

			iter := fetches.RecordIter()
			for !iter.Done() {
				select {
				case out <- iter.Next():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Poll waits up to timeout for records. An elapsed timeout returns no
// records and no error.
func (c *ReactiveConsumer) Poll(ctx context.Context, timeout time.Duration) ([]*kgo.Record, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetches := c.client.PollFetches(pollCtx)
	if fetches.IsClientClosed() {
		return nil, kgo.ErrClientClosed
	}
	records := fetches.Records()

	var firstErr error
	fetches.EachError(func(topic string, partition int32, err error) {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return
		}
		if firstErr == nil {
			firstErr = err
		}
	})
	return records, firstErr
}

// Commit commits the offsets of records. It does nothing outside a group.
func (c *ReactiveConsumer) Commit(ctx context.Context, records ...*kgo.Record) error {
	if !c.grouped || len(records) == 0 {
		return nil
	}
	return c.client.CommitRecords(ctx, records...)
}

// CommitAll commits every offset polled so far.
func (c *ReactiveConsumer) CommitAll(ctx context.Context) error {
	if !c.grouped {
		return nil
	}
	return c.client.CommitUncommittedOffsets(ctx)
}

// Pause stops fetching the given partitions.
func (c *ReactiveConsumer) Pause(partitions TopicPartitions) {
	c.client.PauseFetchPartitions(partitions)
}

// Resume restarts fetching the given partitions.
func (c *ReactiveConsumer) Resume(partitions TopicPartitions) {
	c.client.ResumeFetchPartitions(partitions)
}

// Paused returns the paused partitions.
func (c *ReactiveConsumer) Paused() TopicPartitions {
	return c.client.PauseFetchPartitions(nil)
}

// Assignment returns the partitions currently assigned by the group.
func (c *ReactiveConsumer) Assignment() TopicPartitions {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(TopicPartitions, len(c.assignment))
	for t, ps := range c.assignment {
		out[t] = slices.Clone(ps)
	}
	return out
}

// Ping checks broker connectivity.
func (c *ReactiveConsumer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

// Close leaves the group and closes the client. It is safe to call twice.
func (c *ReactiveConsumer) Close() {
	c.closeOnce.Do(c.client.Close)
}

func (c *ReactiveConsumer) assigned(partitions map[string][]int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for t, ps := range partitions {
		merged := append(c.assignment[t], ps...)
		slices.Sort(merged)
		c.assignment[t] = slices.Compact(merged)
	}
	c.logger.Info("partitions assigned", "partitions", partitions)
}

func (c *ReactiveConsumer) revoked(partitions map[string][]int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for t, ps := range partitions {
		ps := ps
		kept := slices.DeleteFunc(c.assignment[t], func(p int32) bool {
			return slices.Contains(ps, p)
		})
		if len(kept) == 0 {
			delete(c.assignment, t)
		} else {
			c.assignment[t] = kept
		}
	}
	c.logger.Info("partitions revoked", "partitions", partitions)
}

func (c *ReactiveConsumer) logFetchErrors(fetches kgo.Fetches) {
	fetches.EachError(func(topic string, partition int32, err error) {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Warn("fetch error", "topic", topic, "partition", partition, "error", err)
	})
}
