package service

import (
	"time"

	"github.com/flexprice/couponengine/internal/domain/coupon"
	"github.com/flexprice/couponengine/internal/domain/order"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/types"
)

// UserContext carries what the evaluator needs to know about the ordering user
type UserContext struct {
	UserID           string
	AccountType      string
	AccountCreatedAt *time.Time
	IsFirstOrder     bool
	// PriorUses is the number of usage history entries of the coupon for this user
	PriorUses int64
	// NewUserThreshold is the account age under which the user counts as new
	NewUserThreshold time.Duration
}

// EligibilityResult is the answer to "can this coupon be used on this order"
type EligibilityResult struct {
	Eligible bool                      `json:"eligible"`
	Reason   types.IneligibilityReason `json:"reason,omitempty"`
	Discount DiscountResult            `json:"discount"`
}

// Err converts an ineligible result into the matching typed error
func (r EligibilityResult) Err(c *coupon.Coupon) error {
	if r.Eligible {
		return nil
	}

	var sentinel error
	switch {
	case r.Reason.IsInactive():
		sentinel = ierr.ErrCouponInactive
	case r.Reason == types.IneligibilityExhausted:
		sentinel = ierr.ErrCouponExhausted
	case r.Reason == types.IneligibilityOneTimeUse, r.Reason == types.IneligibilityUserLimitReached:
		sentinel = ierr.ErrCouponUserLimitReached
	default:
		sentinel = ierr.ErrCouponNotEligible
	}

	return ierr.NewError("coupon not eligible").
		WithHintf("Coupon %s cannot be applied to this order", c.Code).
		WithReportableDetails(map[string]any{
			"coupon_code": c.Code,
			"reason":      r.Reason,
		}).
		Mark(sentinel)
}

// EligibilityEvaluator checks every non monetary condition of a coupon and
// computes the discount for eligible orders. It never writes anything.
type EligibilityEvaluator interface {
	Evaluate(c *coupon.Coupon, o *order.Snapshot, uc UserContext) EligibilityResult
}

type eligibilityEvaluator struct {
	applicator DiscountApplicator
	now        func() time.Time
}

// NewEligibilityEvaluator returns an evaluator delegating discounts to applicator
func NewEligibilityEvaluator(applicator DiscountApplicator) EligibilityEvaluator {
	return &eligibilityEvaluator{
		applicator: applicator,
		now:        time.Now,
	}
}

// NewEligibilityEvaluatorWithClock is NewEligibilityEvaluator with a fixed clock
func NewEligibilityEvaluatorWithClock(applicator DiscountApplicator, now func() time.Time) EligibilityEvaluator {
	return &eligibilityEvaluator{
		applicator: applicator,
		now:        now,
	}
}

func (e *eligibilityEvaluator) Evaluate(c *coupon.Coupon, o *order.Snapshot, uc UserContext) EligibilityResult {
	if reason := e.check(c, o, uc); reason != "" {
		return EligibilityResult{Reason: reason}
	}

	discount := e.applicator.Apply(c, o)
	if !discount.HasScope() {
		return EligibilityResult{Reason: types.IneligibilityNoApplicableItems, Discount: discount}
	}
	return EligibilityResult{Eligible: true, Discount: discount}
}

// check runs the conditions in order and returns the first failing reason
func (e *eligibilityEvaluator) check(c *coupon.Coupon, o *order.Snapshot, uc UserContext) types.IneligibilityReason {
	now := e.now()

	if c.IsDeleted() {
		return types.IneligibilityDeleted
	}
	switch c.Status {
	case types.CouponStatusActive:
	case types.CouponStatusExpired:
		return types.IneligibilityExpired
	case types.CouponStatusExhausted:
		return types.IneligibilityExhausted
	default:
		return types.IneligibilityInactive
	}

	if c.StartDate != nil && now.Before(*c.StartDate) {
		return types.IneligibilityNotStarted
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return types.IneligibilityExpired
	}

	if o.Subtotal < c.MinOrderAmount {
		return types.IneligibilityMinOrderAmount
	}

	if c.Currency != "" && !types.IsMatchingCurrency(c.Currency, o.Currency) {
		return types.IneligibilityCurrencyMismatch
	}

	if (c.FirstOrderOnly || c.Type == types.CouponTypeFirstOrder) && !uc.IsFirstOrder {
		return types.IneligibilityNotFirstOrder
	}

	if c.NewUsersOnly {
		if uc.AccountCreatedAt == nil || now.Sub(*uc.AccountCreatedAt) >= uc.NewUserThreshold {
			return types.IneligibilityNotNewUser
		}
	}

	if len(c.AllowedAccountTypes) > 0 && !c.AllowedAccountTypes.Contains(uc.AccountType) {
		return types.IneligibilityAccountType
	}
	if len(c.AllowedUserIDs) > 0 && !c.AllowedUserIDs.Contains(uc.UserID) {
		return types.IneligibilityUserNotAllowed
	}

	if c.OneTimeUse && uc.PriorUses > 0 {
		return types.IneligibilityOneTimeUse
	}
	if c.MaxUsesPerUser != nil && uc.PriorUses >= *c.MaxUsesPerUser {
		return types.IneligibilityUserLimitReached
	}

	// soft check, the reservation enforces the cap atomically
	if c.MaxTotalUses != nil && c.CurrentUses >= *c.MaxTotalUses {
		return types.IneligibilityExhausted
	}

	return ""
}
