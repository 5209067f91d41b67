package service

import (
	"testing"

	"github.com/flexprice/couponengine/internal/api/dto"
	"github.com/flexprice/couponengine/internal/domain/coupon"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/testutil"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type CouponServiceSuite struct {
	testutil.BaseServiceTestSuite
	service CouponService
}

func TestCouponService(t *testing.T) {
	suite.Run(t, new(CouponServiceSuite))
}

func (s *CouponServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewCouponService(newTestParams(&s.BaseServiceTestSuite))
}

func (s *CouponServiceSuite) TestCreateCoupon() {
	resp, err := s.service.CreateCoupon(s.GetContext(), dto.CreateCouponRequest{
		Code:               "SPRING20",
		Type:               types.CouponTypePercentage,
		DiscountPercentage: pct(20),
		MaxTotalUses:       lo.ToPtr(int64(100)),
		EngineerID:         "eng_1",
		CommissionRate:     commissionRate("5"),
	})
	s.Require().NoError(err)
	s.NotEmpty(resp.ID)
	s.Equal(types.CouponStatusActive, resp.Status)
	s.Equal(types.DefaultTenantID, resp.TenantID)

	byCode, err := s.service.GetCouponByCode(s.GetContext(), "SPRING20")
	s.Require().NoError(err)
	s.Equal(resp.ID, byCode.ID)

	_, err = s.service.CreateCoupon(s.GetContext(), dto.CreateCouponRequest{
		Code:               "SPRING20",
		Type:               types.CouponTypePercentage,
		DiscountPercentage: pct(10),
	})
	s.True(ierr.Is(err, ierr.ErrAlreadyExists))
}

func (s *CouponServiceSuite) TestCreateCouponValidation() {
	tests := []struct {
		name string
		req  dto.CreateCouponRequest
	}{
		{
			name: "missing_code",
			req:  dto.CreateCouponRequest{Type: types.CouponTypePercentage, DiscountPercentage: pct(10)},
		},
		{
			name: "percentage_without_value",
			req:  dto.CreateCouponRequest{Code: "NOPCT", Type: types.CouponTypePercentage},
		},
		{
			name: "commission_without_engineer",
			req: dto.CreateCouponRequest{
				Code:               "NOENG",
				Type:               types.CouponTypePercentage,
				DiscountPercentage: pct(10),
				CommissionRate:     commissionRate("5"),
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.CreateCoupon(s.GetContext(), tt.req)
			s.True(ierr.Is(err, ierr.ErrValidation))
		})
	}
}

func (s *CouponServiceSuite) TestApplyCommissionFromSubtotal() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)

	resp, err := s.service.ApplyCoupon(s.GetContext(), dto.ApplyCouponRequest{Code: "SAVE20", OrderID: "ord_1"})
	s.Require().NoError(err)
	s.False(resp.Replayed)
	s.Equal(int64(200), resp.DiscountAmount)
	// 5% of the subtotal, not of the discount
	s.Equal(int64(50), resp.CommissionAmount)
	s.Require().NotNil(resp.UsageRecord)
	s.True(resp.UsageRecord.IsCompleted())

	stored, err := s.GetStores().CouponRepo.Get(s.GetContext(), c.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), stored.CurrentUses)
	s.Equal(int64(50), stored.TotalCommissionEarned)
	s.Equal(int64(1), stored.Applies)
	s.Equal(int64(1), stored.SuccessfulOrders)
	s.Equal(int64(1000), stored.TotalRevenue)
	s.Equal(int64(200), stored.TotalDiscount)

	profile, err := s.GetStores().EngineerRepo.GetProfile(s.GetContext(), "eng_1")
	s.Require().NoError(err)
	s.Equal(int64(50), profile.WalletBalance)

	events := s.GetPublisher().EventsNamed(types.EventCouponApplied)
	s.Len(events, 1)
}

func (s *CouponServiceSuite) TestApplyIsIdempotent() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)
	req := dto.ApplyCouponRequest{Code: "SAVE20", OrderID: "ord_1"}

	first, err := s.service.ApplyCoupon(s.GetContext(), req)
	s.Require().NoError(err)

	second, err := s.service.ApplyCoupon(s.GetContext(), req)
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.Equal(first.UsageRecord.ID, second.UsageRecord.ID)
	s.Equal(first.CommissionAmount, second.CommissionAmount)

	stored, err := s.GetStores().CouponRepo.Get(s.GetContext(), c.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), stored.CurrentUses)
	s.Equal(int64(1), stored.Applies)

	txns, err := s.GetStores().EngineerRepo.ListTransactions(s.GetContext(), "eng_1")
	s.Require().NoError(err)
	s.Len(txns, 1)
	s.Len(s.GetPublisher().GetEvents(), 1)
}

func (s *CouponServiceSuite) TestApplyResumesIncompleteReservation() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)

	// a reservation whose apply was interrupted before completion
	_, err := NewUsageLimitEnforcer(newTestParams(&s.BaseServiceTestSuite)).Reserve(s.GetContext(), c.ID, "usr_1", "ord_1")
	s.Require().NoError(err)

	resp, err := s.service.ApplyCoupon(s.GetContext(), dto.ApplyCouponRequest{Code: "SAVE20", OrderID: "ord_1"})
	s.Require().NoError(err)
	s.False(resp.Replayed)
	s.Equal(int64(50), resp.CommissionAmount)

	stored, err := s.GetStores().CouponRepo.Get(s.GetContext(), c.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), stored.CurrentUses)
	s.Equal(int64(50), stored.TotalCommissionEarned)
}

func (s *CouponServiceSuite) TestCommissionTotalMatchesUsageHistory() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")
	subtotals := map[string]int64{"ord_1": 1000, "ord_2": 1010, "ord_3": 440}
	for id, subtotal := range subtotals {
		seedOrder(&s.BaseServiceTestSuite, id, "usr_"+id, subtotal)
		_, err := s.service.ApplyCoupon(s.GetContext(), dto.ApplyCouponRequest{Code: "SAVE20", OrderID: id})
		s.Require().NoError(err)
	}

	history, err := s.service.ListUsageHistory(s.GetContext(), c.ID)
	s.Require().NoError(err)
	s.Len(history.Items, 3)
	s.Equal(coupon.SumCommission(history.Items), history.TotalCommissionEarned)
	// 50 + 51 + 22
	s.Equal(int64(123), history.TotalCommissionEarned)

	profile, err := s.GetStores().EngineerRepo.GetProfile(s.GetContext(), "eng_1")
	s.Require().NoError(err)
	s.Equal(history.TotalCommissionEarned, profile.WalletBalance)
}

func (s *CouponServiceSuite) TestApplyWithoutCommission() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "NOCOMM")
	c.EngineerID = ""
	c.CommissionRate = commissionRate("0")
	s.Require().NoError(s.GetStores().CouponRepo.Update(s.GetContext(), c.ID, c))
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)

	resp, err := s.service.ApplyCoupon(s.GetContext(), dto.ApplyCouponRequest{Code: "NOCOMM", OrderID: "ord_1"})
	s.Require().NoError(err)
	s.Equal(int64(200), resp.DiscountAmount)
	s.Zero(resp.CommissionAmount)

	_, err = s.GetStores().EngineerRepo.GetProfile(s.GetContext(), "eng_1")
	s.True(ierr.IsNotFound(err))
}

func (s *CouponServiceSuite) TestApplyNotEligible() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "BIGSPEND")
	c.MinOrderAmount = 5000
	s.Require().NoError(s.GetStores().CouponRepo.Update(s.GetContext(), c.ID, c))
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)

	_, err := s.service.ApplyCoupon(s.GetContext(), dto.ApplyCouponRequest{Code: "BIGSPEND", OrderID: "ord_1"})
	s.True(ierr.Is(err, ierr.ErrCouponNotEligible))

	stored, err := s.GetStores().CouponRepo.Get(s.GetContext(), c.ID)
	s.Require().NoError(err)
	s.Zero(stored.CurrentUses)
}

func (s *CouponServiceSuite) TestApplyUnknownCodeAndOrder() {
	commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")

	_, err := s.service.ApplyCoupon(s.GetContext(), dto.ApplyCouponRequest{Code: "MISSING", OrderID: "ord_1"})
	s.True(ierr.Is(err, ierr.ErrCouponNotFound))

	_, err = s.service.ApplyCoupon(s.GetContext(), dto.ApplyCouponRequest{Code: "SAVE20", OrderID: "ord_missing"})
	s.True(ierr.Is(err, ierr.ErrOrderNotFound))
}

func (s *CouponServiceSuite) TestValidateWritesNothing() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)

	resp, err := s.service.ValidateCoupon(s.GetContext(), dto.ValidateCouponRequest{Code: "SAVE20", OrderID: "ord_1"})
	s.Require().NoError(err)
	s.True(resp.Eligible)
	s.Equal(int64(200), resp.DiscountAmount)

	stored, err := s.GetStores().CouponRepo.Get(s.GetContext(), c.ID)
	s.Require().NoError(err)
	s.Zero(stored.CurrentUses)
	s.Zero(stored.Applies)

	usages, err := s.GetStores().CouponRepo.ListUsage(s.GetContext(), c.ID)
	s.Require().NoError(err)
	s.Empty(usages)
	s.Empty(s.GetPublisher().GetEvents())
}

func (s *CouponServiceSuite) TestValidateReportsReason() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "GOLD")
	c.AllowedAccountTypes = types.StringList{"gold"}
	s.Require().NoError(s.GetStores().CouponRepo.Update(s.GetContext(), c.ID, c))
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)

	resp, err := s.service.ValidateCoupon(s.GetContext(), dto.ValidateCouponRequest{
		Code:        "GOLD",
		OrderID:     "ord_1",
		AccountType: "basic",
	})
	s.Require().NoError(err)
	s.False(resp.Eligible)
	s.Equal(types.IneligibilityAccountType, resp.Reason)
	s.Zero(resp.DiscountAmount)
}

func (s *CouponServiceSuite) TestDeleteCoupon() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "GONE")
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)

	// warm the code cache
	_, err := s.service.GetCouponByCode(s.GetContext(), "GONE")
	s.Require().NoError(err)

	s.Require().NoError(s.service.DeleteCoupon(s.GetContext(), c.ID))

	resp, err := s.service.ValidateCoupon(s.GetContext(), dto.ValidateCouponRequest{Code: "GONE", OrderID: "ord_1"})
	s.Require().NoError(err)
	s.False(resp.Eligible)
	s.Equal(types.IneligibilityDeleted, resp.Reason)
}
