package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/entities"
)

// NewSyncProducer creates a sarama sync producer for backup events
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers specified")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Retry.Backoff = 500 * time.Millisecond
	saramaConfig.Producer.Timeout = 10 * time.Second
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	saramaConfig.Version = sarama.V2_6_0_0
	saramaConfig.ClientID = "line-backup-bot"

	producer, err := sarama.NewSyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return producer, nil
}

// BackupPublisher sends backup outcome events to Kafka keyed by conversation
type BackupPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewBackupPublisher wraps an existing producer
func NewBackupPublisher(producer sarama.SyncProducer, topic string, logger zerolog.Logger) *BackupPublisher {
	return &BackupPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// PublishBackup sends one event and waits for the broker ack
func (p *BackupPublisher) PublishBackup(ctx context.Context, event *entities.BackupEvent) error {
	if event == nil {
		return fmt.Errorf("backup event is nil")
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled before sending: %w", ctx.Err())
	default:
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal backup event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(event.Conversation),
		Value:     sarama.ByteEncoder(value),
		Timestamp: event.OccurredAt,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send backup event: %w", err)
	}

	p.logger.Debug().
		Str("event_id", event.EventID).
		Str("outcome", event.Outcome).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Backup event sent to Kafka")

	return nil
}

// Close closes the underlying producer
func (p *BackupPublisher) Close() error {
	return p.producer.Close()
}

// NoopPublisher drops events when Kafka is not configured
type NoopPublisher struct{}

// PublishBackup does nothing
func (NoopPublisher) PublishBackup(context.Context, *entities.BackupEvent) error {
	return nil
}
