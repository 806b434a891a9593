package kafka

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/douyin-gateway/config"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/metrics"
)

// Module provides the credential event publisher for fx DI
var Module = fx.Module("kafka",
	fx.Provide(NewCredentialPublisherFx),
)

// NewCredentialPublisherFx creates a Kafka publisher, or a no-op one when KAFKA_BROKERS is empty
func NewCredentialPublisherFx(
	lc fx.Lifecycle,
	kafkaCfg *config.KafkaConfig,
	mt *metrics.Metrics,
	logger zerolog.Logger,
) (deps.CredentialPublisher, error) {
	logger = logger.With().Str("component", "credential-producer").Logger()

	if len(kafkaCfg.Brokers) == 0 {
		logger.Info().Msg("KAFKA_BROKERS not set, credential events disabled")
		return NoopPublisher{logger: logger}, nil
	}

	producer, err := NewCredentialProducer(kafkaCfg, mt, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return producer.Close()
		},
	})

	return producer, nil
}
