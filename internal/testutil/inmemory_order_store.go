package testutil

import (
	"context"

	"github.com/flexprice/couponengine/internal/domain/order"
	ierr "github.com/flexprice/couponengine/internal/errors"
)

// InMemoryOrderStore implements order.Repository
type InMemoryOrderStore struct {
	*InMemoryStore[*order.Snapshot]
}

var _ order.Repository = (*InMemoryOrderStore)(nil)

func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{
		InMemoryStore: NewInMemoryStore[*order.Snapshot](),
	}
}

// AddOrder seeds an order snapshot
func (s *InMemoryOrderStore) AddOrder(ctx context.Context, o *order.Snapshot) error {
	return s.InMemoryStore.Create(ctx, o.ID, o)
}

// RemoveOrder simulates an order purged by the order subsystem
func (s *InMemoryOrderStore) RemoveOrder(ctx context.Context, id string) error {
	return s.InMemoryStore.Delete(ctx, id)
}

func (s *InMemoryOrderStore) GetOrderSnapshot(ctx context.Context, orderID string) (*order.Snapshot, error) {
	o, err := s.InMemoryStore.Get(ctx, orderID)
	if err != nil || !CheckTenantFilter(ctx, o.TenantID) {
		return nil, ierr.NewError("order not found").
			WithHintf("Order %s not found", orderID).
			WithReportableDetail("order_id", orderID).
			Mark(ierr.ErrOrderNotFound)
	}
	copied := *o
	return &copied, nil
}
