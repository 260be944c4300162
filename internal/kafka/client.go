// Package kafka wraps a franz-go client behind a small reactive API.
//
// The wrappers only delegate: group membership, fetching, offsets and
// retries stay with the client.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Client is the part of *kgo.Client the wrappers delegate to.
type Client interface {
	AddConsumeTopics(topics ...string)
	PurgeTopicsFromClient(topics ...string)
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	CommitUncommittedOffsets(ctx context.Context) error
	PauseFetchPartitions(topicPartitions map[string][]int32) map[string][]int32
	ResumeFetchPartitions(topicPartitions map[string][]int32)
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Ping(ctx context.Context) error
	Close()
}

var _ Client = (*kgo.Client)(nil)

// ErrNoBrokers is returned when a client is built without seed brokers.
var ErrNoBrokers = errors.New("no kafka brokers configured")

// Config holds connection settings.
type Config struct {
	Brokers  []string
	ClientID string
	// Group enables consumer-group consumption with manual commits.
	// Without a group, partitions are consumed directly from the log end.
	Group  string
	Topics []string
	// DeliveryTimeout fails produced records not acknowledged in time.
	// Zero means DefaultDeliveryTimeout.
	DeliveryTimeout time.Duration
}

// DefaultDeliveryTimeout bounds how long a produced record may be retried.
const DefaultDeliveryTimeout = 30 * time.Second

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(list string) []string {
	var brokers []string
	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewClient builds a franz-go client. extra options are appended last.
func NewClient(cfg Config, logger *slog.Logger, extra ...kgo.Opt) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	deliveryTimeout := cfg.DeliveryTimeout
	if deliveryTimeout <= 0 {
		deliveryTimeout = DefaultDeliveryTimeout
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RecordDeliveryTimeout(deliveryTimeout),
		kgo.WithLogger(NewLogger(logger, kgo.LogLevelWarn)),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.Group != "" {
		opts = append(opts,
			kgo.ConsumerGroup(cfg.Group),
			kgo.DisableAutoCommit(),
			kgo.Balancers(kgo.CooperativeStickyBalancer()),
		)
	}
	if len(cfg.Topics) > 0 {
		opts = append(opts, kgo.ConsumeTopics(cfg.Topics...))
	}
	opts = append(opts, extra...)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}
