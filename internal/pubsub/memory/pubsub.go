package memory

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/flexprice/couponengine/internal/config"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/pubsub"
)

// PubSub publishes ledger events in process using watermill's gochannel.
// Subscribe lets in-process readers observe published events.
type PubSub struct {
	pubsub *gochannel.GoChannel
	config *config.EventConfig
	logger *logger.Logger
}

var _ pubsub.PubSub = (*PubSub)(nil)

// NewPubSub creates a new memory-based pubsub
func NewPubSub(
	cfg *config.Configuration,
	logger *logger.Logger,
) *PubSub {
	goChannel := gochannel.NewGoChannel(
		gochannel.Config{
			// Keep messages published before the first subscriber
			Persistent:                     true,
			BlockPublishUntilSubscriberAck: false,
			OutputChannelBuffer:            100,
		},
		watermill.NewStdLogger(false, false),
	)

	return &PubSub{
		pubsub: goChannel,
		config: &cfg.Event,
		logger: logger,
	}
}

func (p *PubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	return p.pubsub.Publish(topic, msg)
}

func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.pubsub.Subscribe(ctx, topic)
}

func (p *PubSub) Close() error {
	return p.pubsub.Close()
}
