package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher fans audit entries out to the compliance stream. Implementations
// must be safe for concurrent use; failures are logged, never propagated to
// the mutation path.
type Publisher interface {
	Publish(ctx context.Context, entry *Entry) error
	Close()
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *Entry) error { return nil }
func (NoopPublisher) Close()                                {}

// KafkaPublisher produces audit entries to a Kafka topic, keyed by resource
// ID so one record's events stay ordered within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewKafkaPublisher connects to the given brokers (comma-separated).
func NewKafkaPublisher(brokers, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(brokers, ",")...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, logger: logger}, nil
}

// Publish produces the entry asynchronously. Broker delivery failures are
// logged by the produce promise, not returned on the write path.
func (p *KafkaPublisher) Publish(ctx context.Context, entry *Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(entry.ResourceID.String()),
		Value: payload,
	}
	p.client.Produce(ctx, record, p.onDelivery)
	return nil
}

func (p *KafkaPublisher) onDelivery(record *kgo.Record, err error) {
	if err != nil {
		p.logger.Error("audit publish failed", "error", err, "key", string(record.Key))
	}
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
