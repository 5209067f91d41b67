package reconciliation

import (
	"context"
	"time"
)

// Repository persists reconciliation runs and their pending adjustments
type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	CreateAdjustment(ctx context.Context, adj *Adjustment) error
	// ListPendingEngineers returns every engineer with unposted adjustments, any run
	ListPendingEngineers(ctx context.Context) ([]EngineerKey, error)
	// ListUnposted returns the unposted adjustments of the engineer in the tenant of ctx
	ListUnposted(ctx context.Context, engineerID string) ([]*Adjustment, error)
	MarkPosted(ctx context.Context, adjustmentIDs []string, transactionID string) error
}

// LockRepository provides the maintenance lock guarding reconciliation
type LockRepository interface {
	// TryAcquire takes the named lock for holder. A lock whose expiry has passed is taken
	// over. It returns false without error when another holder owns the lock.
	TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, holder string) error
}
