package types

import (
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/samber/lo"
)

// CouponType represents how a coupon computes its discount
type CouponType string

const (
	CouponTypePercentage   CouponType = "percentage"
	CouponTypeFixedAmount  CouponType = "fixed_amount"
	CouponTypeFreeShipping CouponType = "free_shipping"
	CouponTypeBuyXGetY     CouponType = "buy_x_get_y"
	// CouponTypeFirstOrder behaves as a percentage or fixed amount coupon that is
	// only redeemable on a user's first order
	CouponTypeFirstOrder CouponType = "first_order"
)

func (t CouponType) Validate() error {
	allowedValues := []string{
		string(CouponTypePercentage),
		string(CouponTypeFixedAmount),
		string(CouponTypeFreeShipping),
		string(CouponTypeBuyXGetY),
		string(CouponTypeFirstOrder),
	}
	if !lo.Contains(allowedValues, string(t)) {
		return ierr.NewError("invalid coupon type").
			WithHint("Invalid coupon type").
			WithReportableDetails(map[string]any{
				"allowed": allowedValues,
				"type":    t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CouponStatus is the lifecycle state of a coupon
type CouponStatus string

const (
	CouponStatusActive    CouponStatus = "active"
	CouponStatusInactive  CouponStatus = "inactive"
	CouponStatusExpired   CouponStatus = "expired"
	CouponStatusExhausted CouponStatus = "exhausted"
)

func (s CouponStatus) Validate() error {
	allowedValues := []string{
		string(CouponStatusActive),
		string(CouponStatusInactive),
		string(CouponStatusExpired),
		string(CouponStatusExhausted),
	}
	if !lo.Contains(allowedValues, string(s)) {
		return ierr.NewError("invalid coupon status").
			WithHint("Invalid coupon status").
			WithReportableDetails(map[string]any{
				"allowed": allowedValues,
				"status":  s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CouponScope selects which line items of an order a coupon applies to
type CouponScope string

const (
	CouponScopeEntireOrder        CouponScope = "entire_order"
	CouponScopeSpecificProducts   CouponScope = "specific_products"
	CouponScopeSpecificCategories CouponScope = "specific_categories"
	CouponScopeSpecificBrands     CouponScope = "specific_brands"
	CouponScopeCheapestItem       CouponScope = "cheapest_item"
	CouponScopeMostExpensiveItem  CouponScope = "most_expensive_item"
)

func (s CouponScope) Validate() error {
	allowedValues := []string{
		string(CouponScopeEntireOrder),
		string(CouponScopeSpecificProducts),
		string(CouponScopeSpecificCategories),
		string(CouponScopeSpecificBrands),
		string(CouponScopeCheapestItem),
		string(CouponScopeMostExpensiveItem),
	}
	if !lo.Contains(allowedValues, string(s)) {
		return ierr.NewError("invalid coupon scope").
			WithHint("Invalid applies_to value").
			WithReportableDetails(map[string]any{
				"allowed":    allowedValues,
				"applies_to": s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
