package order

import "context"

// Repository is the order subsystem read interface consumed by the engine.
// GetOrderSnapshot fails with ierr.ErrOrderNotFound.
type Repository interface {
	GetOrderSnapshot(ctx context.Context, orderID string) (*Snapshot, error)
}
