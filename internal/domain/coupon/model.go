package coupon

import (
	"context"
	"time"

	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/shopspring/decimal"
)

// Coupon represents a discount coupon with its usage ledger aggregates
type Coupon struct {
	ID     string             `db:"id" json:"id"`
	Code   string             `db:"code" json:"code"`
	Type   types.CouponType   `db:"coupon_type" json:"type"`
	Status types.CouponStatus `db:"coupon_status" json:"status"`

	AppliesTo          types.CouponScope   `db:"applies_to" json:"applies_to"`
	DiscountPercentage decimal.NullDecimal `db:"discount_percentage" json:"discount_percentage"`
	DiscountAmount     int64               `db:"discount_amount" json:"discount_amount"`
	MaxDiscountAmount  *int64              `db:"max_discount_amount" json:"max_discount_amount"`
	MinOrderAmount     int64               `db:"min_order_amount" json:"min_order_amount"`
	Currency           string              `db:"currency" json:"currency"`

	StartDate           *time.Time       `db:"start_date" json:"start_date"`
	EndDate             *time.Time       `db:"end_date" json:"end_date"`
	FirstOrderOnly      bool             `db:"first_order_only" json:"first_order_only"`
	NewUsersOnly        bool             `db:"new_users_only" json:"new_users_only"`
	AllowedAccountTypes types.StringList `db:"allowed_account_types" json:"allowed_account_types"`
	AllowedUserIDs      types.StringList `db:"allowed_user_ids" json:"allowed_user_ids"`

	// Scope targets for specific_products, specific_categories and specific_brands
	ProductIDs  types.StringList `db:"product_ids" json:"product_ids"`
	CategoryIDs types.StringList `db:"category_ids" json:"category_ids"`
	BrandIDs    types.StringList `db:"brand_ids" json:"brand_ids"`

	ExcludedProductIDs  types.StringList `db:"excluded_product_ids" json:"excluded_product_ids"`
	ExcludedCategoryIDs types.StringList `db:"excluded_category_ids" json:"excluded_category_ids"`
	ExcludedBrandIDs    types.StringList `db:"excluded_brand_ids" json:"excluded_brand_ids"`
	ExcludeSaleItems    bool             `db:"exclude_sale_items" json:"exclude_sale_items"`

	MaxTotalUses   *int64 `db:"max_total_uses" json:"max_total_uses"`
	CurrentUses    int64  `db:"current_uses" json:"current_uses"`
	MaxUsesPerUser *int64 `db:"max_uses_per_user" json:"max_uses_per_user"`
	OneTimeUse     bool   `db:"one_time_use" json:"one_time_use"`

	BuyQuantity int64 `db:"buy_quantity" json:"buy_quantity"`
	GetQuantity int64 `db:"get_quantity" json:"get_quantity"`

	EngineerID            string              `db:"engineer_id" json:"engineer_id"`
	CommissionRate        decimal.NullDecimal `db:"commission_rate" json:"commission_rate"`
	TotalCommissionEarned int64               `db:"total_commission_earned" json:"total_commission_earned"`

	Stats `json:"stats"`

	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	types.BaseModel
}

// Stats are the coupon counters shown on the admin dashboard
type Stats struct {
	Views            int64 `db:"stat_views" json:"views"`
	Applies          int64 `db:"stat_applies" json:"applies"`
	SuccessfulOrders int64 `db:"stat_successful_orders" json:"successful_orders"`
	FailedAttempts   int64 `db:"stat_failed_attempts" json:"failed_attempts"`
	TotalRevenue     int64 `db:"stat_total_revenue" json:"total_revenue"`
	TotalDiscount    int64 `db:"stat_total_discount" json:"total_discount"`
}

// StatsDelta is added to Stats atomically by the repository
type StatsDelta struct {
	Views            int64
	Applies          int64
	SuccessfulOrders int64
	FailedAttempts   int64
	TotalRevenue     int64
	TotalDiscount    int64
}

// New returns a coupon stamped with the tenant and audit fields of ctx
func New(ctx context.Context) *Coupon {
	return &Coupon{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COUPON),
		Status:    types.CouponStatusActive,
		AppliesTo: types.CouponScopeEntireOrder,
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
}

func (c *Coupon) IsDeleted() bool {
	return c.DeletedAt != nil
}

// IsUnlimited reports whether the coupon has no global usage cap
func (c *Coupon) IsUnlimited() bool {
	return c.MaxTotalUses == nil
}

// PerUserLimit returns the number of uses allowed per user, nil when unlimited.
// One time use coupons allow a single use regardless of MaxUsesPerUser.
func (c *Coupon) PerUserLimit() *int64 {
	if c.OneTimeUse {
		one := int64(1)
		return &one
	}
	return c.MaxUsesPerUser
}

// HasCommission reports whether uses of the coupon earn an engineer commission
func (c *Coupon) HasCommission() bool {
	return c.EngineerID != "" && c.CommissionRate.Valid && c.CommissionRate.Decimal.IsPositive()
}

// PercentageOff returns the configured percentage or zero
func (c *Coupon) PercentageOff() decimal.Decimal {
	if !c.DiscountPercentage.Valid {
		return decimal.Zero
	}
	return c.DiscountPercentage.Decimal
}

// Validate checks the configuration invariants of a coupon before it is persisted
func (c *Coupon) Validate() error {
	if c.Code == "" {
		return ierr.NewError("coupon code is required").
			WithHint("Coupon code is required").
			Mark(ierr.ErrValidation)
	}
	if err := c.Type.Validate(); err != nil {
		return err
	}
	if err := c.Status.Validate(); err != nil {
		return err
	}
	if err := c.AppliesTo.Validate(); err != nil {
		return err
	}

	switch c.Type {
	case types.CouponTypePercentage:
		if !c.PercentageOff().IsPositive() {
			return ierr.NewError("percentage coupon requires discount_percentage").
				WithHint("Percentage coupons need a discount percentage above zero").
				Mark(ierr.ErrValidation)
		}
	case types.CouponTypeFixedAmount:
		if c.DiscountAmount <= 0 {
			return ierr.NewError("fixed amount coupon requires discount_amount").
				WithHint("Fixed amount coupons need a discount amount above zero").
				Mark(ierr.ErrValidation)
		}
	case types.CouponTypeBuyXGetY:
		if c.BuyQuantity <= 0 || c.GetQuantity <= 0 {
			return ierr.NewError("buy_x_get_y coupon requires buy and get quantities").
				WithHint("Buy X get Y coupons need buy_quantity and get_quantity above zero").
				WithReportableDetails(map[string]any{
					"buy_quantity": c.BuyQuantity,
					"get_quantity": c.GetQuantity,
				}).
				Mark(ierr.ErrValidation)
		}
	case types.CouponTypeFirstOrder:
		if !c.PercentageOff().IsPositive() && c.DiscountAmount <= 0 {
			return ierr.NewError("first order coupon requires a percentage or an amount").
				WithHint("First order coupons need a discount percentage or a discount amount").
				Mark(ierr.ErrValidation)
		}
	}

	if c.PercentageOff().GreaterThan(decimal.NewFromInt(100)) || c.PercentageOff().IsNegative() {
		return ierr.NewError("discount_percentage out of range").
			WithHint("Discount percentage must be between 0 and 100").
			Mark(ierr.ErrValidation)
	}
	if c.DiscountAmount < 0 || c.MinOrderAmount < 0 || (c.MaxDiscountAmount != nil && *c.MaxDiscountAmount < 0) {
		return ierr.NewError("negative monetary configuration").
			WithHint("Discount amounts must not be negative").
			Mark(ierr.ErrValidation)
	}
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return ierr.NewError("end_date before start_date").
			WithHint("End date must be after start date").
			Mark(ierr.ErrValidation)
	}
	if c.MaxTotalUses != nil && *c.MaxTotalUses < 1 {
		return ierr.NewError("max_total_uses must be positive").
			WithHint("Max total uses must be at least 1, leave it empty for unlimited").
			Mark(ierr.ErrValidation)
	}
	if c.MaxUsesPerUser != nil && *c.MaxUsesPerUser < 1 {
		return ierr.NewError("max_uses_per_user must be positive").
			WithHint("Max uses per user must be at least 1, leave it empty for unlimited").
			Mark(ierr.ErrValidation)
	}
	if c.CommissionRate.Valid {
		if c.CommissionRate.Decimal.IsNegative() || c.CommissionRate.Decimal.GreaterThan(decimal.NewFromInt(100)) {
			return ierr.NewError("commission_rate out of range").
				WithHint("Commission rate must be between 0 and 100").
				Mark(ierr.ErrValidation)
		}
		if c.EngineerID == "" {
			return ierr.NewError("commission_rate without engineer").
				WithHint("A commission rate needs an engineer to attribute it to").
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}
