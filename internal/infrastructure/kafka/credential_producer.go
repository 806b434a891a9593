package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/Conte777/douyin-gateway/config"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/metrics"
)

// CredentialProducer announces harvested credentials on Kafka
type CredentialProducer struct {
	producer sarama.SyncProducer
	topic    string
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

var _ deps.CredentialPublisher = (*CredentialProducer)(nil)

// NewCredentialProducer creates a new Kafka producer for credential events
func NewCredentialProducer(cfg *config.KafkaConfig, mt *metrics.Metrics, logger zerolog.Logger) (*CredentialProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no kafka brokers specified")
	}
	if cfg.TopicCredentialUpdated == "" {
		return nil, errors.New("kafka topic is required")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Retry.Backoff = 500 * time.Millisecond
	saramaConfig.Producer.Timeout = 10 * time.Second
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Version = sarama.V2_6_0_0
	saramaConfig.ClientID = "auth-service-credential-producer"

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create credential Kafka producer")
		return nil, err
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.TopicCredentialUpdated).
		Msg("Credential Kafka producer initialized")

	return newCredentialProducer(producer, cfg.TopicCredentialUpdated, mt, logger), nil
}

func newCredentialProducer(producer sarama.SyncProducer, topic string, mt *metrics.Metrics, logger zerolog.Logger) *CredentialProducer {
	return &CredentialProducer{
		producer: producer,
		topic:    topic,
		metrics:  mt,
		logger:   logger,
	}
}

// PublishCredentialUpdated sends an auth.credential.updated event keyed by session token
func (p *CredentialProducer) PublishCredentialUpdated(ctx context.Context, event *entities.CredentialEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to marshal credential event")
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.Token),
		Value: sarama.ByteEncoder(bytes),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.metrics.RecordKafkaError()
		p.logger.Error().Err(err).
			Str("topic", p.topic).
			Msg("failed to send credential event")
		return err
	}

	p.metrics.RecordKafkaMessage()
	p.logger.Info().
		Str("topic", p.topic).
		Str("type", event.Type).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Credential event sent")

	return nil
}

// Close closes the Kafka producer
func (p *CredentialProducer) Close() error {
	if p.producer == nil {
		return nil
	}

	if err := p.producer.Close(); err != nil {
		p.logger.Error().Err(err).Msg("failed to close credential producer")
		return err
	}

	p.logger.Info().Msg("Credential producer closed")
	return nil
}

// NoopPublisher drops events when no brokers are configured
type NoopPublisher struct {
	logger zerolog.Logger
}

var _ deps.CredentialPublisher = NoopPublisher{}

// PublishCredentialUpdated logs the event and discards it
func (p NoopPublisher) PublishCredentialUpdated(ctx context.Context, event *entities.CredentialEvent) error {
	p.logger.Debug().Str("type", event.Type).Msg("Kafka disabled, credential event dropped")
	return nil
}
