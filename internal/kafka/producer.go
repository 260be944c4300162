package kafka

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer sends records to a default topic.
type Producer struct {
	client Client
	topic  string
}

// NewProducer creates a Producer. Records without a topic go to topic.
func NewProducer(client Client, topic string) *Producer {
	return &Producer{client: client, topic: topic}
}

// Send produces a record and waits for the broker acknowledgement.
func (p *Producer) Send(ctx context.Context, record *kgo.Record) error {
	p.route(record)
	return p.client.ProduceSync(ctx, record).FirstErr()
}

// SendAsync produces a record and calls done once it is acknowledged or
// failed. done may be nil.
func (p *Producer) SendAsync(ctx context.Context, record *kgo.Record, done func(*kgo.Record, error)) {
	p.route(record)
	if done == nil {
		done = func(*kgo.Record, error) {}
	}
	p.client.Produce(ctx, record, done)
}

func (p *Producer) route(record *kgo.Record) {
	if record.Topic == "" {
		record.Topic = p.topic
	}
}
