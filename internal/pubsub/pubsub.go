package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// PubSub publishes ledger event messages to a topic. Ledger events are consumed
// by downstream systems, never by this service.
type PubSub interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
	Close() error
}
