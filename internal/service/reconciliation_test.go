package service

import (
	"bytes"
	"testing"
	"time"

	"github.com/flexprice/couponengine/internal/domain/coupon"
	"github.com/flexprice/couponengine/internal/domain/reconciliation"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/testutil"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/stretchr/testify/suite"
)

type ReconciliationServiceSuite struct {
	testutil.BaseServiceTestSuite
	params  ServiceParams
	service ReconciliationService
}

func TestReconciliationService(t *testing.T) {
	suite.Run(t, new(ReconciliationServiceSuite))
}

func (s *ReconciliationServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = newTestParams(&s.BaseServiceTestSuite)
	s.service = NewReconciliationService(s.params)
}

// seedHistoricalUse records a completed use whose commission was computed by the
// old formula and credits it to the engineer wallet
func (s *ReconciliationServiceSuite) seedHistoricalUse(c *coupon.Coupon, orderID, userID string, commission int64) *coupon.UsageRecord {
	ctx := s.GetContext()
	reservation, err := NewUsageLimitEnforcer(s.params).Reserve(ctx, c.ID, userID, orderID)
	s.Require().NoError(err)

	recorded, err := s.GetStores().CouponRepo.RecordUsage(ctx, reservation.Usage.ID, 200, commission, time.Now().UTC())
	s.Require().NoError(err)
	s.Require().True(recorded)

	_, err = s.GetStores().CouponRepo.RefreshCommissionTotal(ctx, c.ID)
	s.Require().NoError(err)

	_, err = NewWalletLedger(s.params).Post(ctx, c.EngineerID, LedgerEntry{
		TransactionID: s.params.Idempotency.OrderCommissionTxID(reservation.Token),
		Type:          types.TransactionTypeCommission,
		Amount:        commission,
		OrderID:       orderID,
		CouponCode:    c.Code,
	})
	s.Require().NoError(err)
	return reservation.Usage
}

func (s *ReconciliationServiceSuite) walletBalance(engineerID string) int64 {
	profile, err := s.GetStores().EngineerRepo.GetProfile(s.GetContext(), engineerID)
	s.Require().NoError(err)
	return profile.WalletBalance
}

func (s *ReconciliationServiceSuite) TestCorrectsUnderpaidCommission() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)
	usage := s.seedHistoricalUse(c, "ord_1", "usr_1", 10)
	s.Equal(int64(10), s.walletBalance("eng_1"))

	report, err := s.service.Run(s.GetContext(), ReconciliationOptions{})
	s.Require().NoError(err)
	s.Equal(types.ReconciliationRunStatusCompleted, report.Run.Status)
	s.Equal(int64(1), report.Run.EntriesCorrected)
	s.Equal(int64(1), report.Run.EngineersPosted)
	s.Equal(int64(40), report.Run.TotalDelta)
	s.False(report.HasFailures())

	s.Require().Len(report.Rows, 1)
	s.Equal(int64(10), report.Rows[0].OldCommission)
	s.Equal(int64(50), report.Rows[0].NewCommission)
	s.Equal(int64(40), report.Rows[0].Delta)

	s.Require().Len(report.Engineers, 1)
	s.True(report.Engineers[0].Posted)
	s.Equal(int64(50), report.Engineers[0].Balance)

	stored, err := s.GetStores().CouponRepo.GetUsageByOrder(s.GetContext(), c.ID, "ord_1")
	s.Require().NoError(err)
	s.Equal(usage.ID, stored.ID)
	s.Equal(int64(50), stored.CommissionAmount)
	s.Require().NotNil(stored.ReconciledRunID)
	s.Equal(report.Run.ID, *stored.ReconciledRunID)

	updated, err := s.GetStores().CouponRepo.Get(s.GetContext(), c.ID)
	s.Require().NoError(err)
	s.Equal(int64(50), updated.TotalCommissionEarned)
	s.Equal(int64(50), s.walletBalance("eng_1"))

	run, err := s.GetStores().ReconciliationRepo.GetRun(s.GetContext(), report.Run.ID)
	s.Require().NoError(err)
	s.Equal(types.ReconciliationRunStatusCompleted, run.Status)
	s.NotNil(run.FinishedAt)

	s.Len(s.GetPublisher().EventsNamed(types.EventCommissionAdjusted), 1)
}

func (s *ReconciliationServiceSuite) TestRerunProducesNoDeltas() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)
	s.seedHistoricalUse(c, "ord_1", "usr_1", 10)

	_, err := s.service.Run(s.GetContext(), ReconciliationOptions{})
	s.Require().NoError(err)

	report, err := s.service.Run(s.GetContext(), ReconciliationOptions{})
	s.Require().NoError(err)
	s.Equal(types.ReconciliationRunStatusCompleted, report.Run.Status)
	s.Equal(int64(1), report.Run.EntriesScanned)
	s.Zero(report.Run.EntriesCorrected)
	s.Zero(report.Run.TotalDelta)
	s.Empty(report.Rows)
	s.Empty(report.Engineers)

	s.Equal(int64(50), s.walletBalance("eng_1"))
	txns, err := s.GetStores().EngineerRepo.ListTransactions(s.GetContext(), "eng_1")
	s.Require().NoError(err)
	s.Len(txns, 2)
}

func (s *ReconciliationServiceSuite) TestAggregatesPerEngineer() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)
	seedOrder(&s.BaseServiceTestSuite, "ord_2", "usr_2", 400)
	s.seedHistoricalUse(c, "ord_1", "usr_1", 10)
	// overpaid: 5% of 400 is 20
	s.seedHistoricalUse(c, "ord_2", "usr_2", 30)

	report, err := s.service.Run(s.GetContext(), ReconciliationOptions{})
	s.Require().NoError(err)
	s.Equal(int64(2), report.Run.EntriesCorrected)
	s.Require().Len(report.Engineers, 1)
	s.Equal(2, report.Engineers[0].Entries)
	s.Equal(int64(30), report.Engineers[0].Delta)

	txns, err := s.GetStores().EngineerRepo.ListTransactions(s.GetContext(), "eng_1")
	s.Require().NoError(err)
	s.Len(txns, 3)
	s.Equal(int64(70), s.walletBalance("eng_1"))
}

func (s *ReconciliationServiceSuite) TestSkipsMissingOrder() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)
	seedOrder(&s.BaseServiceTestSuite, "ord_2", "usr_2", 1000)
	s.seedHistoricalUse(c, "ord_1", "usr_1", 10)
	s.seedHistoricalUse(c, "ord_2", "usr_2", 10)
	s.Require().NoError(s.GetStores().OrderRepo.RemoveOrder(s.GetContext(), "ord_2"))

	report, err := s.service.Run(s.GetContext(), ReconciliationOptions{})
	s.Require().NoError(err)
	s.Equal(int64(2), report.Run.EntriesScanned)
	s.Equal(int64(1), report.Run.EntriesCorrected)
	s.Equal(int64(1), report.Run.EntriesSkipped)

	skipped, err := s.GetStores().CouponRepo.GetUsageByOrder(s.GetContext(), c.ID, "ord_2")
	s.Require().NoError(err)
	s.Equal(int64(10), skipped.CommissionAmount)

	var reasons []string
	for _, row := range report.Rows {
		if row.Skipped() {
			reasons = append(reasons, row.SkipReason)
		}
	}
	s.Equal([]string{SkipOrderNotFound}, reasons)
	s.Equal(int64(60), s.walletBalance("eng_1"))
}

func (s *ReconciliationServiceSuite) TestSkipsIncompleteReservations() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)
	_, err := NewUsageLimitEnforcer(s.params).Reserve(s.GetContext(), c.ID, "usr_1", "ord_1")
	s.Require().NoError(err)

	report, err := s.service.Run(s.GetContext(), ReconciliationOptions{})
	s.Require().NoError(err)
	s.Equal(int64(1), report.Run.CouponsScanned)
	s.Zero(report.Run.EntriesScanned)
	s.Empty(report.Engineers)
}

func (s *ReconciliationServiceSuite) TestEpsilonToleratesRoundingDrift() {
	s.GetConfig().Engine.ReconcileEpsilon = 1
	defer func() { s.GetConfig().Engine.ReconcileEpsilon = 0 }()

	c := commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)
	s.seedHistoricalUse(c, "ord_1", "usr_1", 49)

	report, err := s.service.Run(s.GetContext(), ReconciliationOptions{})
	s.Require().NoError(err)
	s.Zero(report.Run.EntriesCorrected)
	s.Equal(int64(49), s.walletBalance("eng_1"))
}

func (s *ReconciliationServiceSuite) TestDryRunWritesNothing() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)
	s.seedHistoricalUse(c, "ord_1", "usr_1", 10)

	report, err := s.service.Run(s.GetContext(), ReconciliationOptions{DryRun: true})
	s.Require().NoError(err)
	s.Equal(types.ReconciliationRunStatusDryRun, report.Run.Status)
	s.Equal(int64(1), report.Run.EntriesCorrected)
	s.Require().Len(report.Engineers, 1)
	s.False(report.Engineers[0].Posted)
	s.Equal(int64(40), report.Engineers[0].Delta)

	stored, err := s.GetStores().CouponRepo.GetUsageByOrder(s.GetContext(), c.ID, "ord_1")
	s.Require().NoError(err)
	s.Equal(int64(10), stored.CommissionAmount)
	s.Equal(int64(10), s.walletBalance("eng_1"))
	s.Empty(s.GetStores().ReconciliationRepo.Adjustments(s.GetContext()))

	_, err = s.GetStores().ReconciliationRepo.GetRun(s.GetContext(), report.Run.ID)
	s.True(ierr.IsNotFound(err))
}

func (s *ReconciliationServiceSuite) TestPostsAdjustmentsLeftByEarlierRun() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)
	usage := s.seedHistoricalUse(c, "ord_1", "usr_1", 10)

	// an earlier run corrected the entry but crashed before posting
	s.Require().NoError(s.GetStores().CouponRepo.UpdateUsageCommission(s.GetContext(), usage.ID, 50, "run_crashed", time.Now().UTC()))
	s.Require().NoError(s.GetStores().ReconciliationRepo.CreateAdjustment(s.GetContext(), adjustmentFor(c, usage, "run_crashed", 10, 50)))

	report, err := s.service.Run(s.GetContext(), ReconciliationOptions{})
	s.Require().NoError(err)
	s.Zero(report.Run.EntriesCorrected)
	s.Require().Len(report.Engineers, 1)
	s.True(report.Engineers[0].Posted)
	s.Equal(int64(40), report.Engineers[0].Delta)
	s.Equal(int64(50), s.walletBalance("eng_1"))
}

func (s *ReconciliationServiceSuite) TestLockHeldByAnotherRun() {
	acquired, err := s.GetStores().LockRepo.TryAcquire(s.GetContext(), types.ReconciliationLockName, "other", time.Hour)
	s.Require().NoError(err)
	s.Require().True(acquired)

	_, err = s.service.Run(s.GetContext(), ReconciliationOptions{})
	s.True(ierr.Is(err, ierr.ErrInvalidOperation))

	// dry runs do not need the lock
	_, err = s.service.Run(s.GetContext(), ReconciliationOptions{DryRun: true})
	s.NoError(err)
}

func (s *ReconciliationServiceSuite) TestListRuns() {
	for i := 0; i < 2; i++ {
		_, err := s.service.Run(s.GetContext(), ReconciliationOptions{})
		s.Require().NoError(err)
	}

	resp, err := s.service.ListRuns(s.GetContext(), 0)
	s.Require().NoError(err)
	s.Len(resp.Items, 2)
}

func (s *ReconciliationServiceSuite) TestRenderReport() {
	c := commissionCoupon(&s.BaseServiceTestSuite, "SAVE20")
	seedOrder(&s.BaseServiceTestSuite, "ord_1", "usr_1", 1000)
	s.seedHistoricalUse(c, "ord_1", "usr_1", 10)

	report, err := s.service.Run(s.GetContext(), ReconciliationOptions{})
	s.Require().NoError(err)

	var buf bytes.Buffer
	s.Require().NoError(report.Render(&buf))
	out := buf.String()
	s.Contains(out, report.Run.ID)
	s.Contains(out, "SAVE20")
	s.Contains(out, "+40")
	s.Contains(out, "posted")
}

func adjustmentFor(c *coupon.Coupon, u *coupon.UsageRecord, runID string, oldCommission, newCommission int64) *reconciliation.Adjustment {
	return &reconciliation.Adjustment{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COMMISSION_ADJ),
		RunID:         runID,
		TenantID:      c.TenantID,
		CouponID:      c.ID,
		CouponCode:    c.Code,
		UsageID:       u.ID,
		OrderID:       u.OrderID,
		EngineerID:    c.EngineerID,
		OldCommission: oldCommission,
		NewCommission: newCommission,
		Delta:         newCommission - oldCommission,
		CreatedAt:     time.Now().UTC(),
	}
}
