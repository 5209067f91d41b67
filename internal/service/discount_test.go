package service

import (
	"testing"

	"github.com/flexprice/couponengine/internal/domain/coupon"
	"github.com/flexprice/couponengine/internal/domain/order"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type DiscountApplicatorSuite struct {
	suite.Suite
	applicator DiscountApplicator
}

func TestDiscountApplicator(t *testing.T) {
	suite.Run(t, new(DiscountApplicatorSuite))
}

func (s *DiscountApplicatorSuite) SetupTest() {
	s.applicator = NewDiscountApplicator()
}

func pct(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func (s *DiscountApplicatorSuite) TestPercentageCap() {
	c := &coupon.Coupon{
		Type:               types.CouponTypePercentage,
		AppliesTo:          types.CouponScopeEntireOrder,
		DiscountPercentage: pct(10),
		MaxDiscountAmount:  lo.ToPtr(int64(50)),
	}

	tests := []struct {
		name     string
		subtotal int64
		amount   int64
		capped   bool
	}{
		{name: "capped", subtotal: 1000, amount: 50, capped: true},
		{name: "under_cap", subtotal: 300, amount: 30, capped: false},
		{name: "at_cap", subtotal: 500, amount: 50, capped: false},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			res := s.applicator.Apply(c, &order.Snapshot{Subtotal: tt.subtotal})
			s.Equal(tt.amount, res.Amount)
			s.Equal(tt.capped, res.CappedByMax)
		})
	}
}

func (s *DiscountApplicatorSuite) TestPercentageRoundsHalfUp() {
	c := &coupon.Coupon{
		Type:               types.CouponTypePercentage,
		AppliesTo:          types.CouponScopeEntireOrder,
		DiscountPercentage: decimal.NewNullDecimal(decimal.RequireFromString("12.5")),
	}
	// 12.5% of 1004 = 125.5
	res := s.applicator.Apply(c, &order.Snapshot{Subtotal: 1004})
	s.Equal(int64(126), res.Amount)

	// 12.5% of 1003 = 125.375
	res = s.applicator.Apply(c, &order.Snapshot{Subtotal: 1003})
	s.Equal(int64(125), res.Amount)
}

func (s *DiscountApplicatorSuite) TestFixedAmountNeverExceedsScope() {
	c := &coupon.Coupon{
		Type:           types.CouponTypeFixedAmount,
		AppliesTo:      types.CouponScopeEntireOrder,
		DiscountAmount: 500,
	}
	s.Equal(int64(500), s.applicator.Apply(c, &order.Snapshot{Subtotal: 2000}).Amount)
	s.Equal(int64(120), s.applicator.Apply(c, &order.Snapshot{Subtotal: 120}).Amount)
}

func (s *DiscountApplicatorSuite) TestFreeShipping() {
	c := &coupon.Coupon{
		Type:      types.CouponTypeFreeShipping,
		AppliesTo: types.CouponScopeEntireOrder,
	}
	res := s.applicator.Apply(c, &order.Snapshot{Subtotal: 1000, Shipping: 499})
	s.True(res.FreeShipping)
	s.Equal(int64(499), res.Amount)

	res = s.applicator.Apply(c, &order.Snapshot{Subtotal: 1000})
	s.True(res.FreeShipping)
	s.Zero(res.Amount)
}

func (s *DiscountApplicatorSuite) TestBuyXGetY() {
	c := &coupon.Coupon{
		Type:        types.CouponTypeBuyXGetY,
		AppliesTo:   types.CouponScopeSpecificProducts,
		ProductIDs:  types.StringList{"sock"},
		BuyQuantity: 2,
		GetQuantity: 1,
	}
	o := &order.Snapshot{
		Subtotal: 7*100 + 1000,
		LineItems: order.LineItems{
			{ProductID: "sock", Quantity: 7, UnitPrice: 100},
			{ProductID: "shoe", Quantity: 1, UnitPrice: 1000},
		},
	}

	res := s.applicator.Apply(c, o)
	s.Equal(int64(3), res.DiscountedUnits)
	s.Equal(int64(300), res.Amount)
	s.Equal([]string{"sock"}, res.AppliesToLineItems)
}

func (s *DiscountApplicatorSuite) TestBuyXGetYTakesCheapestUnits() {
	c := &coupon.Coupon{
		Type:        types.CouponTypeBuyXGetY,
		AppliesTo:   types.CouponScopeSpecificCategories,
		CategoryIDs: types.StringList{"apparel"},
		BuyQuantity: 1,
		GetQuantity: 1,
	}
	o := &order.Snapshot{
		LineItems: order.LineItems{
			{ProductID: "coat", CategoryID: "apparel", Quantity: 1, UnitPrice: 5000},
			{ProductID: "tee", CategoryID: "apparel", Quantity: 2, UnitPrice: 800},
		},
	}
	o.Subtotal = 5000 + 1600

	// 3 units hold one paid and one free unit, the free one is a tee
	res := s.applicator.Apply(c, o)
	s.Equal(int64(1), res.DiscountedUnits)
	s.Equal(int64(800), res.Amount)
}

func (s *DiscountApplicatorSuite) TestBuyXGetYKeepsPaidUnits() {
	tests := []struct {
		name   string
		buy    int64
		get    int64
		qty    int64
		units  int64
		amount int64
	}{
		{name: "buy_1_get_1_single_unit", buy: 1, get: 1, qty: 1, units: 0, amount: 0},
		{name: "buy_1_get_1_two_units", buy: 1, get: 1, qty: 2, units: 1, amount: 100},
		{name: "buy_1_get_1_three_units", buy: 1, get: 1, qty: 3, units: 1, amount: 100},
		{name: "buy_1_get_1_four_units", buy: 1, get: 1, qty: 4, units: 2, amount: 200},
		{name: "buy_2_get_3_two_units", buy: 2, get: 3, qty: 2, units: 0, amount: 0},
		{name: "buy_2_get_3_five_units", buy: 2, get: 3, qty: 5, units: 2, amount: 200},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			c := &coupon.Coupon{
				Type:        types.CouponTypeBuyXGetY,
				AppliesTo:   types.CouponScopeSpecificProducts,
				ProductIDs:  types.StringList{"mug"},
				BuyQuantity: tt.buy,
				GetQuantity: tt.get,
			}
			o := &order.Snapshot{
				Subtotal: tt.qty * 100,
				LineItems: order.LineItems{
					{ProductID: "mug", Quantity: tt.qty, UnitPrice: 100},
				},
			}

			res := s.applicator.Apply(c, o)
			s.Equal(tt.units, res.DiscountedUnits)
			s.Equal(tt.amount, res.Amount)
		})
	}
}

func (s *DiscountApplicatorSuite) TestMaxDiscountOnlyBoundsPercentages() {
	fixed := &coupon.Coupon{
		Type:              types.CouponTypeFixedAmount,
		AppliesTo:         types.CouponScopeEntireOrder,
		DiscountAmount:    500,
		MaxDiscountAmount: lo.ToPtr(int64(100)),
	}
	res := s.applicator.Apply(fixed, &order.Snapshot{Subtotal: 2000})
	s.Equal(int64(500), res.Amount)
	s.False(res.CappedByMax)

	firstOrderFixed := &coupon.Coupon{
		Type:              types.CouponTypeFirstOrder,
		AppliesTo:         types.CouponScopeEntireOrder,
		DiscountAmount:    500,
		MaxDiscountAmount: lo.ToPtr(int64(100)),
	}
	res = s.applicator.Apply(firstOrderFixed, &order.Snapshot{Subtotal: 2000})
	s.Equal(int64(500), res.Amount)
	s.False(res.CappedByMax)

	firstOrderPct := &coupon.Coupon{
		Type:               types.CouponTypeFirstOrder,
		AppliesTo:          types.CouponScopeEntireOrder,
		DiscountPercentage: pct(20),
		MaxDiscountAmount:  lo.ToPtr(int64(100)),
	}
	res = s.applicator.Apply(firstOrderPct, &order.Snapshot{Subtotal: 2000})
	s.Equal(int64(100), res.Amount)
	s.True(res.CappedByMax)

	bxgy := &coupon.Coupon{
		Type:              types.CouponTypeBuyXGetY,
		AppliesTo:         types.CouponScopeSpecificProducts,
		ProductIDs:        types.StringList{"mug"},
		BuyQuantity:       1,
		GetQuantity:       1,
		MaxDiscountAmount: lo.ToPtr(int64(100)),
	}
	res = s.applicator.Apply(bxgy, &order.Snapshot{
		Subtotal:  4 * 300,
		LineItems: order.LineItems{{ProductID: "mug", Quantity: 4, UnitPrice: 300}},
	})
	s.Equal(int64(600), res.Amount)
	s.False(res.CappedByMax)
}

func (s *DiscountApplicatorSuite) TestEntireOrderExclusions() {
	c := &coupon.Coupon{
		Type:               types.CouponTypePercentage,
		AppliesTo:          types.CouponScopeEntireOrder,
		DiscountPercentage: pct(10),
		ExcludeSaleItems:   true,
		ExcludedBrandIDs:   types.StringList{"acme"},
	}
	o := &order.Snapshot{
		Subtotal: 1000 + 400 + 600,
		LineItems: order.LineItems{
			{ProductID: "a", Quantity: 1, UnitPrice: 1000},
			{ProductID: "b", Quantity: 1, UnitPrice: 400, OnSale: true},
			{ProductID: "c", BrandID: "acme", Quantity: 2, UnitPrice: 300},
		},
	}

	res := s.applicator.Apply(c, o)
	s.Equal(int64(1000), res.ScopeSubtotal)
	s.Equal(int64(100), res.Amount)
	s.Equal([]string{"a"}, res.AppliesToLineItems)
}

func (s *DiscountApplicatorSuite) TestItemScopes() {
	o := &order.Snapshot{
		Subtotal: 300 + 2*900 + 150,
		LineItems: order.LineItems{
			{ProductID: "mid", Quantity: 1, UnitPrice: 300},
			{ProductID: "top", Quantity: 2, UnitPrice: 900},
			{ProductID: "low", Quantity: 1, UnitPrice: 150, OnSale: true},
		},
	}

	cheapest := &coupon.Coupon{
		Type:               types.CouponTypePercentage,
		AppliesTo:          types.CouponScopeCheapestItem,
		DiscountPercentage: pct(50),
		ExcludeSaleItems:   true,
	}
	res := s.applicator.Apply(cheapest, o)
	s.Equal(int64(300), res.ScopeSubtotal)
	s.Equal(int64(150), res.Amount)
	s.Equal([]string{"mid"}, res.AppliesToLineItems)

	mostExpensive := &coupon.Coupon{
		Type:           types.CouponTypeFixedAmount,
		AppliesTo:      types.CouponScopeMostExpensiveItem,
		DiscountAmount: 2000,
	}
	res = s.applicator.Apply(mostExpensive, o)
	s.Equal(int64(900), res.ScopeSubtotal)
	s.Equal(int64(900), res.Amount)
}

func (s *DiscountApplicatorSuite) TestNoApplicableItems() {
	c := &coupon.Coupon{
		Type:           types.CouponTypeFixedAmount,
		AppliesTo:      types.CouponScopeSpecificBrands,
		BrandIDs:       types.StringList{"acme"},
		DiscountAmount: 100,
	}
	o := &order.Snapshot{
		Subtotal:  500,
		LineItems: order.LineItems{{ProductID: "a", BrandID: "other", Quantity: 1, UnitPrice: 500}},
	}

	res := s.applicator.Apply(c, o)
	s.False(res.HasScope())
	s.Zero(res.Amount)
}

func (s *DiscountApplicatorSuite) TestFirstOrderVariants() {
	percentage := &coupon.Coupon{
		Type:               types.CouponTypeFirstOrder,
		AppliesTo:          types.CouponScopeEntireOrder,
		DiscountPercentage: pct(20),
	}
	s.Equal(int64(200), s.applicator.Apply(percentage, &order.Snapshot{Subtotal: 1000}).Amount)

	fixed := &coupon.Coupon{
		Type:           types.CouponTypeFirstOrder,
		AppliesTo:      types.CouponScopeEntireOrder,
		DiscountAmount: 250,
	}
	s.Equal(int64(250), s.applicator.Apply(fixed, &order.Snapshot{Subtotal: 1000}).Amount)
}
