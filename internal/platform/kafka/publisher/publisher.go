// Package publisher wraps franz-go production for downstream event topics.
package publisher

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher produces records synchronously. Callers decide whether a publish
// failure matters; the push path treats it as fire-and-forget.
type Publisher struct {
	client *kgo.Client
}

// New creates a publisher for the given brokers.
func New(brokers []string) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return &Publisher{client: client}, nil
}

// Publish produces one record and waits for the broker ack.
func (p *Publisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and shuts down the underlying client.
func (p *Publisher) Close() {
	p.client.Close()
}
