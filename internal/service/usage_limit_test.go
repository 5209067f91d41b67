package service

import (
	"fmt"
	"sync/atomic"
	"testing"

	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/testutil"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/suite"
)

type UsageLimitEnforcerSuite struct {
	testutil.BaseServiceTestSuite
	enforcer UsageLimitEnforcer
}

func TestUsageLimitEnforcer(t *testing.T) {
	suite.Run(t, new(UsageLimitEnforcerSuite))
}

func (s *UsageLimitEnforcerSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.enforcer = NewUsageLimitEnforcer(newTestParams(&s.BaseServiceTestSuite))
}

func (s *UsageLimitEnforcerSuite) TestConcurrentReservationsRespectGlobalCap() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "LIMITED")
	c.MaxTotalUses = lo.ToPtr(int64(5))
	s.Require().NoError(s.GetStores().CouponRepo.Update(s.GetContext(), c.ID, c))

	const attempts = 20
	var succeeded, exhausted, other atomic.Int64

	var wg conc.WaitGroup
	for i := 0; i < attempts; i++ {
		i := i
		wg.Go(func() {
			_, err := s.enforcer.Reserve(s.GetContext(), c.ID, fmt.Sprintf("usr_%d", i), fmt.Sprintf("ord_%d", i))
			switch {
			case err == nil:
				succeeded.Add(1)
			case ierr.Is(err, ierr.ErrCouponExhausted):
				exhausted.Add(1)
			default:
				other.Add(1)
			}
		})
	}
	wg.Wait()

	s.Equal(int64(5), succeeded.Load())
	s.Equal(int64(attempts-5), exhausted.Load())
	s.Zero(other.Load())

	stored, err := s.GetStores().CouponRepo.Get(s.GetContext(), c.ID)
	s.Require().NoError(err)
	s.Equal(int64(5), stored.CurrentUses)
	s.Equal(types.CouponStatusExhausted, stored.Status)
	s.Equal(int64(attempts-5), stored.FailedAttempts)

	usages, err := s.GetStores().CouponRepo.ListUsage(s.GetContext(), c.ID)
	s.Require().NoError(err)
	s.Len(usages, 5)
}

func (s *UsageLimitEnforcerSuite) TestOneTimeUse() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "ONCE")
	c.OneTimeUse = true
	c.MaxUsesPerUser = lo.ToPtr(int64(3))
	s.Require().NoError(s.GetStores().CouponRepo.Update(s.GetContext(), c.ID, c))

	_, err := s.enforcer.Reserve(s.GetContext(), c.ID, "usr_1", "ord_1")
	s.Require().NoError(err)

	_, err = s.enforcer.Reserve(s.GetContext(), c.ID, "usr_1", "ord_2")
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrCouponUserLimitReached))
	s.True(ierr.IsReservationRejected(err))

	// other users are unaffected
	_, err = s.enforcer.Reserve(s.GetContext(), c.ID, "usr_2", "ord_3")
	s.NoError(err)
}

func (s *UsageLimitEnforcerSuite) TestPerUserLimit() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "TWICE")
	c.MaxUsesPerUser = lo.ToPtr(int64(2))
	s.Require().NoError(s.GetStores().CouponRepo.Update(s.GetContext(), c.ID, c))

	for _, orderID := range []string{"ord_1", "ord_2"} {
		_, err := s.enforcer.Reserve(s.GetContext(), c.ID, "usr_1", orderID)
		s.Require().NoError(err)
	}

	_, err := s.enforcer.Reserve(s.GetContext(), c.ID, "usr_1", "ord_3")
	s.True(ierr.Is(err, ierr.ErrCouponUserLimitReached))
}

func (s *UsageLimitEnforcerSuite) TestReplaySameOrder() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "REPLAY")

	first, err := s.enforcer.Reserve(s.GetContext(), c.ID, "usr_1", "ord_1")
	s.Require().NoError(err)
	s.False(first.Replayed)
	s.Equal("REPLAY", first.Usage.CouponCode)

	second, err := s.enforcer.Reserve(s.GetContext(), c.ID, "usr_1", "ord_1")
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.Equal(first.Usage.ID, second.Usage.ID)
	s.Equal(first.Token, second.Token)

	stored, err := s.GetStores().CouponRepo.Get(s.GetContext(), c.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), stored.CurrentUses)
}

func (s *UsageLimitEnforcerSuite) TestReplayByAnotherUser() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "OWNED")

	_, err := s.enforcer.Reserve(s.GetContext(), c.ID, "usr_1", "ord_1")
	s.Require().NoError(err)

	_, err = s.enforcer.Reserve(s.GetContext(), c.ID, "usr_2", "ord_1")
	s.True(ierr.Is(err, ierr.ErrValidation))
}

func (s *UsageLimitEnforcerSuite) TestMissingArguments() {
	_, err := s.enforcer.Reserve(s.GetContext(), "", "usr_1", "ord_1")
	s.True(ierr.Is(err, ierr.ErrValidation))
}
