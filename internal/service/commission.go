package service

import (
	"github.com/flexprice/couponengine/internal/domain/coupon"
	"github.com/flexprice/couponengine/internal/domain/order"
	"github.com/flexprice/couponengine/internal/types"
)

// CommissionCalculator derives the commission owed to the engineer of a coupon
type CommissionCalculator interface {
	// Compute returns the commission for the order, always based on the order
	// subtotal and never on the discount granted
	Compute(c *coupon.Coupon, o *order.Snapshot) int64
	ComputeForSubtotal(c *coupon.Coupon, subtotal int64) int64
}

type commissionCalculator struct{}

func NewCommissionCalculator() CommissionCalculator {
	return &commissionCalculator{}
}

func (commissionCalculator) Compute(c *coupon.Coupon, o *order.Snapshot) int64 {
	if o == nil {
		return 0
	}
	return commissionCalculator{}.ComputeForSubtotal(c, o.Subtotal)
}

func (commissionCalculator) ComputeForSubtotal(c *coupon.Coupon, subtotal int64) int64 {
	if c == nil || !c.HasCommission() || subtotal <= 0 {
		return 0
	}
	return types.PercentOf(subtotal, c.CommissionRate.Decimal)
}
