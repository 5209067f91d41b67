package testutil

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/couponengine/internal/pubsub"
)

// InMemoryPubSub keeps published messages per topic
type InMemoryPubSub struct {
	messages map[string][]*message.Message
	mu       sync.RWMutex
}

var _ pubsub.PubSub = (*InMemoryPubSub)(nil)

func NewInMemoryPubSub() *InMemoryPubSub {
	return &InMemoryPubSub{
		messages: make(map[string][]*message.Message),
	}
}

func (ps *InMemoryPubSub) Publish(_ context.Context, topic string, msg *message.Message) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.messages[topic] = append(ps.messages[topic], msg)
	return nil
}

func (ps *InMemoryPubSub) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.messages = make(map[string][]*message.Message)
	return nil
}

// GetMessages returns all messages published to a topic
func (ps *InMemoryPubSub) GetMessages(topic string) []*message.Message {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return append([]*message.Message(nil), ps.messages[topic]...)
}
