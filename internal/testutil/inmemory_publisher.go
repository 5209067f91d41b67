package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/couponengine/internal/publisher"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/samber/lo"
)

// InMemoryEventPublisher records published ledger events for assertions
type InMemoryEventPublisher struct {
	mu     sync.RWMutex
	events []*types.LedgerEvent
	closed bool
}

var _ publisher.EventPublisher = (*InMemoryEventPublisher)(nil)

func NewInMemoryEventPublisher() *InMemoryEventPublisher {
	return &InMemoryEventPublisher{
		events: make([]*types.LedgerEvent, 0),
	}
}

// Publish implements publisher.EventPublisher
func (p *InMemoryEventPublisher) Publish(_ context.Context, event *types.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *InMemoryEventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// GetEvents returns all published events
func (p *InMemoryEventPublisher) GetEvents() []*types.LedgerEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	events := make([]*types.LedgerEvent, len(p.events))
	copy(events, p.events)
	return events
}

// EventsNamed returns the published events with the given name
func (p *InMemoryEventPublisher) EventsNamed(name types.EventName) []*types.LedgerEvent {
	return lo.Filter(p.GetEvents(), func(e *types.LedgerEvent, _ int) bool {
		return e.EventName == name
	})
}

// Clear removes all published events
func (p *InMemoryEventPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = make([]*types.LedgerEvent, 0)
}
