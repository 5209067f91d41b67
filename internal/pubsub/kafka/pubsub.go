package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/couponengine/internal/config"
	"github.com/flexprice/couponengine/internal/kafka"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/pubsub"
)

type PubSub struct {
	producer *kafka.Producer
	logger   *logger.Logger
}

// NewPubSub creates a new kafka-based publisher
func NewPubSub(
	cfg *config.Configuration,
	logger *logger.Logger,
) (pubsub.PubSub, error) {
	producer, err := kafka.NewProducer(cfg)
	if err != nil {
		return nil, err
	}

	return &PubSub{
		producer: producer,
		logger:   logger,
	}, nil
}

func (p *PubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	return p.producer.Publish(topic, msg)
}

func (p *PubSub) Close() error {
	if err := p.producer.Close(); err != nil {
		p.logger.Errorw("failed to close kafka producer", "error", err)
		return err
	}
	return nil
}
