package coupon

import (
	"time"
)

// UsageRecord is one entry of a coupon's usage history. It is created by a
// reservation and completed with the discount and commission of the order.
type UsageRecord struct {
	ID               string     `db:"id" json:"id"`
	TenantID         string     `db:"tenant_id" json:"tenant_id"`
	CouponID         string     `db:"coupon_id" json:"coupon_id"`
	CouponCode       string     `db:"coupon_code" json:"coupon_code"`
	OrderID          string     `db:"order_id" json:"order_id"`
	UserID           string     `db:"user_id" json:"user_id"`
	ReservationToken string     `db:"reservation_token" json:"reservation_token"`
	DiscountAmount   int64      `db:"discount_amount" json:"discount_amount"`
	CommissionAmount int64      `db:"commission_amount" json:"commission_amount"`
	UsedAt           time.Time  `db:"used_at" json:"used_at"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ReconciledRunID  *string    `db:"reconciled_run_id" json:"reconciled_run_id,omitempty"`
	ReconciledAt     *time.Time `db:"reconciled_at" json:"reconciled_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// IsCompleted reports whether the discount and commission of the order were recorded
func (u *UsageRecord) IsCompleted() bool {
	return u.CompletedAt != nil
}

// SumCommission totals the commission of a usage history
func SumCommission(records []*UsageRecord) int64 {
	var total int64
	for _, r := range records {
		total += r.CommissionAmount
	}
	return total
}

// CountForUser returns how many entries of records belong to userID
func CountForUser(records []*UsageRecord, userID string) int64 {
	var n int64
	for _, r := range records {
		if r.UserID == userID {
			n++
		}
	}
	return n
}
