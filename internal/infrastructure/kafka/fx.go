package kafka

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Benedict-CS/line-backup-bot/config"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/deps"
)

// Module provides the backup event publisher for fx DI
var Module = fx.Module("kafka",
	fx.Provide(NewPublisherFx),
)

// NewPublisherFx returns a Kafka publisher when brokers are configured, otherwise a no-op
func NewPublisherFx(
	lc fx.Lifecycle,
	kafkaCfg *config.KafkaConfig,
	logger zerolog.Logger,
) (deps.EventPublisher, error) {
	log := logger.With().Str("component", "kafka-publisher").Logger()

	if len(kafkaCfg.Brokers) == 0 {
		log.Info().Msg("KAFKA_BROKERS not set, backup events are not published")
		return NoopPublisher{}, nil
	}

	producer, err := NewSyncProducer(kafkaCfg.Brokers)
	if err != nil {
		return nil, err
	}

	publisher := NewBackupPublisher(producer, kafkaCfg.Topic, log)

	log.Info().
		Strs("brokers", kafkaCfg.Brokers).
		Str("topic", kafkaCfg.Topic).
		Msg("Kafka publisher initialized")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})

	return publisher, nil
}
