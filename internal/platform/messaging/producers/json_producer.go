package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/resident-trust-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

// JSONProducer publishes JSON encoded values to a single topic. Writes are
// synchronous so callers know the broker accepted the message.
type JSONProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewJSONProducer creates a producer for topic and ensures the topic exists
func NewJSONProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig, topic string) (*JSONProducer, error) {
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is not configured")
	}

	if err := ensureTopic(ctx, cfg, topic, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure topic %s exists: %w", topic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // same key, same partition
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.MaxWait,
	}

	return &JSONProducer{
		logger: logger,
		writer: writer,
		topic:  topic,
	}, nil
}

func (p *JSONProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for %s: %w", p.topic, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published message",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *JSONProducer) Close() error {
	p.logger.Info("Closing Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
