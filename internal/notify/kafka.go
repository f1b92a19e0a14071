package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"netbuy-ranker/internal/domain"
)

// DefaultTopic is the Kafka topic snapshots are written to.
const DefaultTopic = "ranking-snapshots"

// KafkaOptions configures a KafkaPublisher.
type KafkaOptions struct {
	Brokers []string
	Topic   string // default DefaultTopic
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes snapshots as JSON, keyed by token address so that one token's
// snapshots stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher. Connections are made lazily on first write.
func NewKafkaPublisher(opts KafkaOptions) (*KafkaPublisher, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	topic := opts.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}}, nil
}

// PublishSnapshot writes snap to the topic.
func (p *KafkaPublisher) PublishSnapshot(ctx context.Context, snap *domain.RankingSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(snap.TokenAddress),
		Value: data,
		Time:  snap.LastUpdated,
	}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)
