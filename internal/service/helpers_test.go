package service

import (
	"github.com/flexprice/couponengine/internal/domain/coupon"
	"github.com/flexprice/couponengine/internal/domain/order"
	"github.com/flexprice/couponengine/internal/testutil"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/shopspring/decimal"
)

func newTestParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetDB(),
		s.GetCache(),
		s.GetSentry(),
		stores.CouponRepo,
		stores.OrderRepo,
		stores.EngineerRepo,
		stores.ReconciliationRepo,
		stores.LockRepo,
		s.GetPublisher(),
	)
}

func commissionRate(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

// commissionCoupon is a 20% coupon paying its engineer 5% of the order subtotal
func commissionCoupon(s *testutil.BaseServiceTestSuite, code string) *coupon.Coupon {
	c := coupon.New(s.GetContext())
	c.Code = code
	c.Type = types.CouponTypePercentage
	c.DiscountPercentage = pct(20)
	c.EngineerID = "eng_1"
	c.CommissionRate = commissionRate("5")
	return s.SeedCoupon(c)
}

func seedOrder(s *testutil.BaseServiceTestSuite, id, userID string, subtotal int64) *order.Snapshot {
	o := &order.Snapshot{
		ID:        id,
		TenantID:  types.GetTenantID(s.GetContext()),
		UserID:    userID,
		Subtotal:  subtotal,
		Total:     subtotal,
		Currency:  "usd",
		CreatedAt: s.GetNow(),
	}
	s.Require().NoError(s.GetStores().OrderRepo.AddOrder(s.GetContext(), o))
	return o
}
