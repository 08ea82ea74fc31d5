// Package kafka publishes run telemetry: one message per listing and one
// per run for the user telemetry row.
package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
)

// Config configures a Publisher
type Config struct {
	Brokers       []string
	ListingsTopic string
	UsersTopic    string
	// Retries is the producer retry budget (0 = sarama default)
	Retries int
}

// Publisher sends telemetry through a synchronous producer.
type Publisher struct {
	producer sarama.SyncProducer
	config   Config
	logger   *zap.Logger
}

// New connects a producer to config.Brokers.
func New(config Config, logger *zap.Logger) (*Publisher, error) {
	if len(config.Brokers) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "kafka: brokers are required")
	}
	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig(config))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "kafka: create producer")
	}
	return NewWithProducer(producer, config, logger), nil
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(producer sarama.SyncProducer, config Config, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		producer: producer,
		config:   config,
		logger:   logger.With(zap.String("destination", "kafka")),
	}
}

func saramaConfig(config Config) *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = "thor"
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true
	c.Producer.Compression = sarama.CompressionSnappy
	c.Producer.Timeout = 10 * time.Second
	if config.Retries > 0 {
		c.Producer.Retry.Max = config.Retries
	}
	return c
}

// Name identifies the destination in logs.
func (p *Publisher) Name() string { return "kafka" }

// Messages builds the messages for result: each task telemetry row keyed
// site:id, then the user telemetry keyed site:account. A topic left empty
// disables its messages.
func (p *Publisher) Messages(result *models.Result) ([]*sarama.ProducerMessage, error) {
	var msgs []*sarama.ProducerMessage

	if p.config.ListingsTopic != "" {
		for _, row := range result.TaskTelemetry {
			value, err := json.Marshal(row)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeInternal, "kafka: encode listing")
			}
			msgs = append(msgs, &sarama.ProducerMessage{
				Topic: p.config.ListingsTopic,
				Key:   sarama.StringEncoder(result.Site + ":" + row.ID()),
				Value: sarama.ByteEncoder(value),
			})
		}
	}

	if p.config.UsersTopic != "" {
		value, err := json.Marshal(result.UserTelemetry)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "kafka: encode user telemetry")
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.config.UsersTopic,
			Key:   sarama.StringEncoder(result.Site + ":" + result.UserTelemetry.AccountID),
			Value: sarama.ByteEncoder(value),
		})
	}
	return msgs, nil
}

// Write publishes result's telemetry.
func (p *Publisher) Write(ctx context.Context, result *models.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msgs, err := p.Messages(result)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		return errors.Wrap(err, errors.ErrorTypeRequest, "kafka: send telemetry").
			WithDetail("messages", len(msgs))
	}
	p.logger.Info("telemetry published", zap.String("site", result.Site), zap.Int("messages", len(msgs)))
	return nil
}

// Close closes the producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
