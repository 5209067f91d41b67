package types

// IneligibilityReason is the reason code returned when a coupon cannot be used for an order
type IneligibilityReason string

const (
	IneligibilityInactive          IneligibilityReason = "coupon_inactive"
	IneligibilityDeleted           IneligibilityReason = "coupon_deleted"
	IneligibilityNotStarted        IneligibilityReason = "coupon_not_started"
	IneligibilityExpired           IneligibilityReason = "coupon_expired"
	IneligibilityMinOrderAmount    IneligibilityReason = "min_order_amount_not_met"
	IneligibilityCurrencyMismatch  IneligibilityReason = "currency_mismatch"
	IneligibilityNotFirstOrder     IneligibilityReason = "not_first_order"
	IneligibilityNotNewUser        IneligibilityReason = "not_new_user"
	IneligibilityAccountType       IneligibilityReason = "account_type_not_allowed"
	IneligibilityUserNotAllowed    IneligibilityReason = "user_not_allowed"
	IneligibilityOneTimeUse        IneligibilityReason = "one_time_use_consumed"
	IneligibilityUserLimitReached  IneligibilityReason = "user_limit_reached"
	IneligibilityExhausted         IneligibilityReason = "coupon_exhausted"
	IneligibilityNoApplicableItems IneligibilityReason = "no_applicable_items"
)

func (r IneligibilityReason) String() string {
	return string(r)
}

// IsInactive reports whether the reason means the coupon itself is unusable,
// as opposed to the order or user not meeting a condition
func (r IneligibilityReason) IsInactive() bool {
	switch r {
	case IneligibilityInactive, IneligibilityDeleted, IneligibilityNotStarted, IneligibilityExpired:
		return true
	}
	return false
}
