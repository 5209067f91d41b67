package dto

import (
	"context"
	"time"

	"github.com/flexprice/couponengine/internal/domain/coupon"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/flexprice/couponengine/internal/validator"
	"github.com/shopspring/decimal"
)

// CreateCouponRequest represents the request to create a new coupon
type CreateCouponRequest struct {
	Code               string              `json:"code" validate:"required,max=64"`
	Type               types.CouponType    `json:"type" validate:"required"`
	AppliesTo          types.CouponScope   `json:"applies_to,omitempty"`
	DiscountPercentage decimal.NullDecimal `json:"discount_percentage,omitempty"`
	DiscountAmount     int64               `json:"discount_amount,omitempty" validate:"gte=0"`
	MaxDiscountAmount  *int64              `json:"max_discount_amount,omitempty" validate:"omitempty,gte=0"`
	MinOrderAmount     int64               `json:"min_order_amount,omitempty" validate:"gte=0"`
	Currency           string              `json:"currency,omitempty" validate:"omitempty,len=3"`

	StartDate           *time.Time `json:"start_date,omitempty"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	FirstOrderOnly      bool       `json:"first_order_only,omitempty"`
	NewUsersOnly        bool       `json:"new_users_only,omitempty"`
	AllowedAccountTypes []string   `json:"allowed_account_types,omitempty"`
	AllowedUserIDs      []string   `json:"allowed_user_ids,omitempty"`

	ProductIDs          []string `json:"product_ids,omitempty"`
	CategoryIDs         []string `json:"category_ids,omitempty"`
	BrandIDs            []string `json:"brand_ids,omitempty"`
	ExcludedProductIDs  []string `json:"excluded_product_ids,omitempty"`
	ExcludedCategoryIDs []string `json:"excluded_category_ids,omitempty"`
	ExcludedBrandIDs    []string `json:"excluded_brand_ids,omitempty"`
	ExcludeSaleItems    bool     `json:"exclude_sale_items,omitempty"`

	MaxTotalUses   *int64 `json:"max_total_uses,omitempty" validate:"omitempty,gte=1"`
	MaxUsesPerUser *int64 `json:"max_uses_per_user,omitempty" validate:"omitempty,gte=1"`
	OneTimeUse     bool   `json:"one_time_use,omitempty"`
	BuyQuantity    int64  `json:"buy_quantity,omitempty" validate:"gte=0"`
	GetQuantity    int64  `json:"get_quantity,omitempty" validate:"gte=0"`

	EngineerID     string              `json:"engineer_id,omitempty"`
	CommissionRate decimal.NullDecimal `json:"commission_rate,omitempty"`
}

// Validate validates the CreateCouponRequest
func (r *CreateCouponRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}

	if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(*r.StartDate) {
		return ierr.NewError("end_date must be after start_date").
			WithHint("Please provide valid date range").
			Mark(ierr.ErrValidation)
	}

	if r.CommissionRate.Valid && r.EngineerID == "" {
		return ierr.NewError("engineer_id is required with commission_rate").
			WithHint("Please provide the engineer earning the commission").
			Mark(ierr.ErrValidation)
	}

	return nil
}

// ToCoupon converts the request into a coupon owned by the tenant of ctx
func (r *CreateCouponRequest) ToCoupon(ctx context.Context) *coupon.Coupon {
	c := coupon.New(ctx)
	c.Code = r.Code
	c.Type = r.Type
	if r.AppliesTo != "" {
		c.AppliesTo = r.AppliesTo
	}
	c.DiscountPercentage = r.DiscountPercentage
	c.DiscountAmount = r.DiscountAmount
	c.MaxDiscountAmount = r.MaxDiscountAmount
	c.MinOrderAmount = r.MinOrderAmount
	c.Currency = r.Currency

	c.StartDate = toUTC(r.StartDate)
	c.EndDate = toUTC(r.EndDate)
	c.FirstOrderOnly = r.FirstOrderOnly
	c.NewUsersOnly = r.NewUsersOnly
	c.AllowedAccountTypes = types.StringList(r.AllowedAccountTypes)
	c.AllowedUserIDs = types.StringList(r.AllowedUserIDs)

	c.ProductIDs = types.StringList(r.ProductIDs)
	c.CategoryIDs = types.StringList(r.CategoryIDs)
	c.BrandIDs = types.StringList(r.BrandIDs)
	c.ExcludedProductIDs = types.StringList(r.ExcludedProductIDs)
	c.ExcludedCategoryIDs = types.StringList(r.ExcludedCategoryIDs)
	c.ExcludedBrandIDs = types.StringList(r.ExcludedBrandIDs)
	c.ExcludeSaleItems = r.ExcludeSaleItems

	c.MaxTotalUses = r.MaxTotalUses
	c.MaxUsesPerUser = r.MaxUsesPerUser
	c.OneTimeUse = r.OneTimeUse
	c.BuyQuantity = r.BuyQuantity
	c.GetQuantity = r.GetQuantity

	c.EngineerID = r.EngineerID
	c.CommissionRate = r.CommissionRate
	return c
}

func toUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// CouponResponse represents the response for coupon data
type CouponResponse struct {
	*coupon.Coupon `json:",inline"`
}

// ValidateCouponRequest asks whether a coupon can be used on an order.
// The account fields describe the ordering user and come from the account subsystem.
type ValidateCouponRequest struct {
	Code             string     `json:"code" validate:"required"`
	OrderID          string     `json:"order_id" validate:"required"`
	AccountType      string     `json:"account_type,omitempty"`
	AccountCreatedAt *time.Time `json:"account_created_at,omitempty"`
}

func (r *ValidateCouponRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ValidateCouponResponse is the eligibility preview of a coupon for an order
type ValidateCouponResponse struct {
	Eligible           bool                      `json:"eligible"`
	Reason             types.IneligibilityReason `json:"reason,omitempty"`
	CouponCode         string                    `json:"coupon_code"`
	OrderID            string                    `json:"order_id"`
	DiscountAmount     int64                     `json:"discount_amount"`
	FreeShipping       bool                      `json:"free_shipping"`
	CappedByMax        bool                      `json:"capped_by_max"`
	AppliesToLineItems []string                  `json:"applies_to_line_items"`
	DiscountedUnits    int64                     `json:"discounted_units,omitempty"`
}

// ApplyCouponRequest finalizes the use of a coupon on an order
type ApplyCouponRequest struct {
	Code             string     `json:"code" validate:"required"`
	OrderID          string     `json:"order_id" validate:"required"`
	AccountType      string     `json:"account_type,omitempty"`
	AccountCreatedAt *time.Time `json:"account_created_at,omitempty"`
}

func (r *ApplyCouponRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ApplyCouponResponse is returned by ApplyCoupon. Replayed is set when the
// order had already been finalized with the coupon.
type ApplyCouponResponse struct {
	DiscountAmount   int64               `json:"discount_amount"`
	CommissionAmount int64               `json:"commission_amount"`
	FreeShipping     bool                `json:"free_shipping"`
	UsageRecord      *coupon.UsageRecord `json:"usage_record"`
	Replayed         bool                `json:"replayed"`
}

// UsageHistoryResponse lists the usage history of a coupon
type UsageHistoryResponse struct {
	CouponID              string                `json:"coupon_id"`
	CouponCode            string                `json:"coupon_code"`
	TotalCommissionEarned int64                 `json:"total_commission_earned"`
	Items                 []*coupon.UsageRecord `json:"items"`
}
