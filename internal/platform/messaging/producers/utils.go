package producers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/resident-trust-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

const (
	topicProbeAttempts = 5
	topicProbeDelay    = 2 * time.Second
)

// ensureTopic creates topic on the cluster controller unless it already has
// partitions. Brokers that are still starting get a few attempts before we
// fall back to creating the topic.
func ensureTopic(ctx context.Context, cfg *config.KafkaConfig, topic string, log *slog.Logger) error {
	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers)
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()

	var partitions []kafka.Partition
	for attempt := 1; attempt <= topicProbeAttempts; attempt++ {
		partitions, err = conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			log.Debug("Kafka topic exists", "topic", topic, "partitions", len(partitions))
			return nil
		}
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			break
		}
		log.Warn("Failed to read topic partitions", "topic", topic, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(topicProbeDelay):
		}
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find kafka controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	topicConfig := kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     max(cfg.NumPartitions, 1),
		ReplicationFactor: max(cfg.ReplicationFactor, 1),
	}
	if err := controllerConn.CreateTopics(topicConfig); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	log.Info("Created Kafka topic", "topic", topic, "partitions", topicConfig.NumPartitions)
	return nil
}
