package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sneakly/catalog/pkg/common/config"
	"github.com/sneakly/catalog/pkg/common/logger"
	"github.com/sneakly/catalog/pkg/common/models"
)

type Producer struct {
	writer *kafka.Writer
}

// NewProducer returns nil when no topic is configured; a nil producer is a
// no-op so the pipeline runs without Kafka.
func NewProducer(topic string) *Producer {
	cfg := config.Load()
	if topic == "" || len(cfg.KafkaBrokers) == 0 {
		logger.Log.Info("kafka publishing disabled, no topic configured")
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{writer: writer}
}

// PublishRunEvent emits a run lifecycle event keyed by run id. A nil producer
// is a no-op so the pipeline works without Kafka configured.
func (p *Producer) PublishRunEvent(ctx context.Context, event models.RunEvent) error {
	if p == nil {
		return nil
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.RunID),
		Value: eventBytes,
		Headers: []kafka.Header{
			{Key: "source-domain", Value: []byte(event.SourceDomain)},
			{Key: "run-status", Value: []byte(event.Status)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"run_id": event.RunID,
			"status": event.Status,
		}).Error("Failed to publish run event")
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"run_id": event.RunID,
		"status": event.Status,
		"topic":  p.writer.Topic,
	}).Info("Run event published")

	return nil
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
