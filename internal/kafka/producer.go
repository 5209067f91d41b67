package kafka

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/couponengine/internal/config"
)

type Producer struct {
	publisher message.Publisher
}

func NewProducer(cfg *config.Configuration) (*Producer, error) {
	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               cfg.Kafka.Brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: GetSaramaConfig(cfg),
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return nil, err
	}

	return &Producer{publisher: publisher}, nil
}

func (p *Producer) Publish(topic string, msg *message.Message) error {
	if msg.UUID == "" {
		msg.UUID = watermill.NewUUID()
	}
	return p.publisher.Publish(topic, msg)
}

func (p *Producer) Close() error {
	return p.publisher.Close()
}
