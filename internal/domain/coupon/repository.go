package coupon

import (
	"context"
	"time"
)

// ListFilter pages through coupons that earn commission, across all tenants
type ListFilter struct {
	Limit  int
	Offset int
}

// Repository defines the interface for coupon data access
type Repository interface {
	Create(ctx context.Context, coupon *Coupon) error
	Get(ctx context.Context, id string) (*Coupon, error)
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	// Delete soft deletes the coupon by setting deleted_at
	Delete(ctx context.Context, id string) error
	// ListWithCommission returns non deleted coupons with an engineer, a commission
	// rate and at least one use, ordered by id. It ignores the tenant in ctx.
	ListWithCommission(ctx context.Context, filter *ListFilter) ([]*Coupon, error)
	IncrementStats(ctx context.Context, id string, delta StatsDelta) error

	// TryReserveUsage atomically consumes one use of the coupon for reservation.UserID
	// and inserts the reservation as a usage entry. It returns ErrCouponUserLimitReached
	// when the per user limit is hit, ErrCouponExhausted when the global cap is hit and
	// ErrReservationRace when another reservation for the same order won.
	TryReserveUsage(ctx context.Context, reservation *UsageRecord) error
	GetUsageByOrder(ctx context.Context, couponID, orderID string) (*UsageRecord, error)
	ListUsage(ctx context.Context, couponID string) ([]*UsageRecord, error)
	// RecordUsage completes a reserved usage entry with the discount and commission of
	// the order. It returns false when the entry was already completed.
	RecordUsage(ctx context.Context, usageID string, discountAmount, commissionAmount int64, at time.Time) (bool, error)
	// UpdateUsageCommission rewrites the commission of an entry and stamps the reconciliation run
	UpdateUsageCommission(ctx context.Context, usageID string, commissionAmount int64, runID string, at time.Time) error
	// RefreshCommissionTotal sets total_commission_earned to the sum of the usage history
	RefreshCommissionTotal(ctx context.Context, couponID string) (int64, error)
}
