package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
)

// TopicCreator creates topics. *kadm.Client implements it.
type TopicCreator interface {
	CreateTopics(ctx context.Context, partitions int32, replicationFactor int16, configs map[string]*string, topics ...string) (kadm.CreateTopicResponses, error)
}

var _ TopicCreator = (*kadm.Client)(nil)

// TopicSpec describes the topics to bootstrap.
type TopicSpec struct {
	Partitions        int32
	ReplicationFactor int16
	Configs           map[string]*string
}

// EnsureTopics creates the topics that do not exist yet.
func EnsureTopics(ctx context.Context, admin TopicCreator, spec TopicSpec, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	if spec.Partitions <= 0 {
		spec.Partitions = -1
	}
	if spec.ReplicationFactor <= 0 {
		spec.ReplicationFactor = -1
	}

	responses, err := admin.CreateTopics(ctx, spec.Partitions, spec.ReplicationFactor, spec.Configs, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}

	var errs []error
	for _, topic := range topics {
		res, ok := responses[topic]
		if !ok {
			errs = append(errs, fmt.Errorf("topic %s: no response", topic))
			continue
		}
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			errs = append(errs, fmt.Errorf("topic %s: %w", topic, res.Err))
		}
	}
	return errors.Join(errs...)
}
