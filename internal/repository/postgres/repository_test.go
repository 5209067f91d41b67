package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flexprice/couponengine/internal/domain/coupon"
	"github.com/flexprice/couponengine/internal/domain/engineer"
	"github.com/flexprice/couponengine/internal/domain/order"
	"github.com/flexprice/couponengine/internal/domain/reconciliation"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/postgres"
	"github.com/flexprice/couponengine/internal/testutil"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/suite"
)

type RepositorySuite struct {
	suite.Suite
	ctx            context.Context
	db             *postgres.DB
	coupons        coupon.Repository
	orders         order.Repository
	engineers      engineer.Repository
	reconciliation reconciliation.Repository
	locks          reconciliation.LockRepository
}

func TestRepositories(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	log := logger.NewNoopLogger()

	conn, err := sqlx.Connect(postgres.DriverSQLite, ":memory:")
	s.Require().NoError(err)
	conn.SetMaxOpenConns(1)

	s.db = postgres.NewFromSQLX(conn, log)
	s.Require().NoError(postgres.Migrate(s.db))

	s.ctx = testutil.SetupContext()
	s.coupons = NewCouponRepository(s.db, log)
	s.orders = NewOrderRepository(s.db, log)
	s.engineers = NewEngineerRepository(s.db, log)
	s.reconciliation = NewReconciliationRepository(s.db, log)
	s.locks = NewLockRepository(s.db, log)
}

func (s *RepositorySuite) TearDownTest() {
	s.db.Close()
}

func (s *RepositorySuite) newCoupon(code string) *coupon.Coupon {
	c := coupon.New(s.ctx)
	c.Code = code
	c.Type = types.CouponTypePercentage
	c.DiscountPercentage = decimal.NewNullDecimal(decimal.NewFromInt(20))
	c.AllowedAccountTypes = types.StringList{"gold", "platinum"}
	c.EngineerID = "eng_1"
	c.CommissionRate = decimal.NewNullDecimal(decimal.RequireFromString("2.5"))
	s.Require().NoError(s.coupons.Create(s.ctx, c))
	return c
}

func (s *RepositorySuite) newUsage(c *coupon.Coupon, userID, orderID string) *coupon.UsageRecord {
	now := time.Now().UTC()
	return &coupon.UsageRecord{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COUPON_USAGE),
		TenantID:         c.TenantID,
		CouponID:         c.ID,
		OrderID:          orderID,
		UserID:           userID,
		ReservationToken: "token_" + orderID,
		UsedAt:           now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (s *RepositorySuite) reserve(u *coupon.UsageRecord) error {
	return s.db.WithTx(s.ctx, func(txCtx context.Context) error {
		return s.coupons.TryReserveUsage(txCtx, u)
	})
}

func (s *RepositorySuite) TestCouponRoundTrip() {
	c := s.newCoupon("SAVE20")

	got, err := s.coupons.Get(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal("SAVE20", got.Code)
	s.True(got.DiscountPercentage.Decimal.Equal(decimal.NewFromInt(20)))
	s.True(got.CommissionRate.Decimal.Equal(decimal.RequireFromString("2.5")))
	s.Equal(types.StringList{"gold", "platinum"}, got.AllowedAccountTypes)
	s.Nil(got.MaxTotalUses)

	byCode, err := s.coupons.GetByCode(s.ctx, "SAVE20")
	s.Require().NoError(err)
	s.Equal(c.ID, byCode.ID)

	dup := coupon.New(s.ctx)
	dup.Code = "SAVE20"
	dup.Type = types.CouponTypeFreeShipping
	s.True(ierr.Is(s.coupons.Create(s.ctx, dup), ierr.ErrAlreadyExists))

	_, err = s.coupons.Get(types.SetTenantID(s.ctx, "other_tenant"), c.ID)
	s.True(ierr.Is(err, ierr.ErrCouponNotFound))
}

func (s *RepositorySuite) TestSoftDelete() {
	c := s.newCoupon("GONE")
	s.Require().NoError(s.coupons.Delete(s.ctx, c.ID))

	got, err := s.coupons.Get(s.ctx, c.ID)
	s.Require().NoError(err)
	s.True(got.IsDeleted())

	s.True(ierr.Is(s.coupons.Delete(s.ctx, c.ID), ierr.ErrCouponNotFound))
}

func (s *RepositorySuite) TestReserveEnforcesGlobalCap() {
	c := s.newCoupon("LIMITED")
	_, err := s.db.ExecContext(s.ctx, `UPDATE coupons SET max_total_uses = 3 WHERE id = ?`, c.ID)
	s.Require().NoError(err)

	var succeeded, exhausted atomic.Int64
	var wg conc.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Go(func() {
			err := s.reserve(s.newUsage(c, fmt.Sprintf("usr_%d", i), fmt.Sprintf("ord_%d", i)))
			if err == nil {
				succeeded.Add(1)
			} else if ierr.Is(err, ierr.ErrCouponExhausted) {
				exhausted.Add(1)
			}
		})
	}
	wg.Wait()

	s.Equal(int64(3), succeeded.Load())
	s.Equal(int64(7), exhausted.Load())

	got, err := s.coupons.Get(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(int64(3), got.CurrentUses)
	s.Equal(types.CouponStatusExhausted, got.Status)

	usages, err := s.coupons.ListUsage(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Len(usages, 3)
	s.Equal("LIMITED", usages[0].CouponCode)
}

func (s *RepositorySuite) TestReservePerUserLimitAndRace() {
	c := s.newCoupon("ONCE")
	_, err := s.db.ExecContext(s.ctx, `UPDATE coupons SET one_time_use = ? WHERE id = ?`, true, c.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.reserve(s.newUsage(c, "usr_1", "ord_1")))

	err = s.reserve(s.newUsage(c, "usr_1", "ord_2"))
	s.True(ierr.Is(err, ierr.ErrCouponUserLimitReached))

	err = s.reserve(s.newUsage(c, "usr_2", "ord_1"))
	s.True(ierr.Is(err, ierr.ErrReservationRace))

	// rejected reservations roll back completely
	got, err := s.coupons.Get(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), got.CurrentUses)
	usages, err := s.coupons.ListUsage(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Len(usages, 1)
}

func (s *RepositorySuite) TestRecordUsageOnce() {
	c := s.newCoupon("SAVE20")
	u := s.newUsage(c, "usr_1", "ord_1")
	s.Require().NoError(s.reserve(u))

	now := time.Now().UTC()
	recorded, err := s.coupons.RecordUsage(s.ctx, u.ID, 200, 25, now)
	s.Require().NoError(err)
	s.True(recorded)

	recorded, err = s.coupons.RecordUsage(s.ctx, u.ID, 999, 999, now)
	s.Require().NoError(err)
	s.False(recorded)

	got, err := s.coupons.GetUsageByOrder(s.ctx, c.ID, "ord_1")
	s.Require().NoError(err)
	s.True(got.IsCompleted())
	s.Equal(int64(25), got.CommissionAmount)

	s.Require().NoError(s.coupons.UpdateUsageCommission(s.ctx, u.ID, 40, "run_1", now))
	total, err := s.coupons.RefreshCommissionTotal(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(int64(40), total)

	s.Require().NoError(s.coupons.IncrementStats(s.ctx, c.ID, coupon.StatsDelta{Applies: 1, TotalRevenue: 1000}))
	stored, err := s.coupons.Get(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(int64(40), stored.TotalCommissionEarned)
	s.Equal(int64(1), stored.Applies)
	s.Equal(int64(1000), stored.TotalRevenue)

	_, err = s.coupons.GetUsageByOrder(s.ctx, c.ID, "ord_missing")
	s.True(ierr.IsNotFound(err))
}

func (s *RepositorySuite) TestListWithCommission() {
	used := s.newCoupon("USED")
	s.newCoupon("UNUSED")
	s.Require().NoError(s.reserve(s.newUsage(used, "usr_1", "ord_1")))

	// other tenants are scanned too
	otherCtx := types.SetTenantID(s.ctx, "tenant_2")
	other := coupon.New(otherCtx)
	other.Code = "OTHER"
	other.Type = types.CouponTypeFixedAmount
	other.DiscountAmount = 100
	other.EngineerID = "eng_2"
	other.CommissionRate = decimal.NewNullDecimal(decimal.NewFromInt(5))
	s.Require().NoError(s.coupons.Create(otherCtx, other))
	s.Require().NoError(s.db.WithTx(otherCtx, func(txCtx context.Context) error {
		u := s.newUsage(other, "usr_9", "ord_9")
		return s.coupons.TryReserveUsage(txCtx, u)
	}))

	coupons, err := s.coupons.ListWithCommission(s.ctx, &coupon.ListFilter{Limit: 10})
	s.Require().NoError(err)
	codes := lo.Map(coupons, func(c *coupon.Coupon, _ int) string { return c.Code })
	s.ElementsMatch([]string{"USED", "OTHER"}, codes)

	page, err := s.coupons.ListWithCommission(s.ctx, &coupon.ListFilter{Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Len(page, 1)
}

func (s *RepositorySuite) TestOrderSnapshot() {
	_, err := s.db.ExecContext(s.ctx, `
		INSERT INTO order_snapshots (id, tenant_id, user_id, subtotal, total, currency, is_first_order, line_items, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"ord_1", types.DefaultTenantID, "usr_1", 1000, 1100, "usd", true,
		`[{"product_id":"p1","quantity":2,"unit_price":500}]`, time.Now().UTC())
	s.Require().NoError(err)

	o, err := s.orders.GetOrderSnapshot(s.ctx, "ord_1")
	s.Require().NoError(err)
	s.Equal(int64(1000), o.Subtotal)
	s.True(o.IsFirstOrder)
	s.Require().Len(o.LineItems, 1)
	s.Equal(int64(1000), o.LineItems[0].Amount())

	_, err = s.orders.GetOrderSnapshot(s.ctx, "ord_missing")
	s.True(ierr.Is(err, ierr.ErrOrderNotFound))
}

func (s *RepositorySuite) TestEngineerLedger() {
	_, err := s.engineers.GetProfile(s.ctx, "eng_1")
	s.True(ierr.IsNotFound(err))

	p, err := s.engineers.LockProfile(s.ctx, "eng_1")
	s.Require().NoError(err)
	s.Equal(int64(1), p.Version)

	p, err = s.engineers.LockProfile(s.ctx, "eng_1")
	s.Require().NoError(err)
	s.Equal(int64(2), p.Version)

	txn := &engineer.Transaction{
		ID:           "txn_1",
		TenantID:     types.DefaultTenantID,
		EngineerID:   "eng_1",
		Sequence:     p.Version,
		Type:         types.TransactionTypeCommission,
		Amount:       50,
		BalanceAfter: 50,
		CreatedAt:    time.Now().UTC(),
	}
	s.Require().NoError(s.engineers.CreateTransaction(s.ctx, txn))
	s.True(ierr.Is(s.engineers.CreateTransaction(s.ctx, txn), ierr.ErrAlreadyExists))
	s.Require().NoError(s.engineers.UpdateBalance(s.ctx, "eng_1", 50))

	got, err := s.engineers.GetTransaction(s.ctx, "txn_1")
	s.Require().NoError(err)
	s.Equal(int64(50), got.Amount)

	txns, err := s.engineers.ListTransactions(s.ctx, "eng_1")
	s.Require().NoError(err)
	s.Len(txns, 1)

	p, err = s.engineers.GetProfile(s.ctx, "eng_1")
	s.Require().NoError(err)
	s.Equal(int64(50), p.WalletBalance)
}

func (s *RepositorySuite) TestAdjustmentsLifecycle() {
	run := &reconciliation.Run{
		ID:        "run_1",
		Status:    types.ReconciliationRunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.reconciliation.CreateRun(s.ctx, run))

	for i, tenant := range []string{types.DefaultTenantID, types.DefaultTenantID, "tenant_2"} {
		s.Require().NoError(s.reconciliation.CreateAdjustment(s.ctx, &reconciliation.Adjustment{
			ID:            fmt.Sprintf("adj_%d", i),
			RunID:         run.ID,
			TenantID:      tenant,
			CouponID:      "coupon_1",
			CouponCode:    "SAVE20",
			UsageID:       fmt.Sprintf("usage_%d", i),
			OrderID:       fmt.Sprintf("ord_%d", i),
			EngineerID:    "eng_1",
			OldCommission: 10,
			NewCommission: 50,
			Delta:         40,
			CreatedAt:     time.Now().UTC(),
		}))
	}

	keys, err := s.reconciliation.ListPendingEngineers(s.ctx)
	s.Require().NoError(err)
	s.Len(keys, 2)

	pending, err := s.reconciliation.ListUnposted(s.ctx, "eng_1")
	s.Require().NoError(err)
	s.Len(pending, 2)

	ids := lo.Map(pending, func(a *reconciliation.Adjustment, _ int) string { return a.ID })
	s.Require().NoError(s.reconciliation.MarkPosted(s.ctx, ids, "txn_recon"))
	s.True(ierr.Is(s.reconciliation.MarkPosted(s.ctx, ids, "txn_again"), ierr.ErrVersionConflict))

	pending, err = s.reconciliation.ListUnposted(s.ctx, "eng_1")
	s.Require().NoError(err)
	s.Empty(pending)

	keys, err = s.reconciliation.ListPendingEngineers(s.ctx)
	s.Require().NoError(err)
	s.Equal([]reconciliation.EngineerKey{{TenantID: "tenant_2", EngineerID: "eng_1"}}, keys)

	now := time.Now().UTC()
	run.Status = types.ReconciliationRunStatusCompleted
	run.EntriesCorrected = 3
	run.FinishedAt = &now
	s.Require().NoError(s.reconciliation.UpdateRun(s.ctx, run))

	got, err := s.reconciliation.GetRun(s.ctx, run.ID)
	s.Require().NoError(err)
	s.Equal(types.ReconciliationRunStatusCompleted, got.Status)
	s.Equal(int64(3), got.EntriesCorrected)
	s.NotNil(got.FinishedAt)

	runs, err := s.reconciliation.ListRuns(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(runs, 1)
}

func (s *RepositorySuite) TestLock() {
	acquired, err := s.locks.TryAcquire(s.ctx, "maintenance", "run_a", time.Hour)
	s.Require().NoError(err)
	s.True(acquired)

	acquired, err = s.locks.TryAcquire(s.ctx, "maintenance", "run_b", time.Hour)
	s.Require().NoError(err)
	s.False(acquired)

	s.Require().NoError(s.locks.Release(s.ctx, "maintenance", "run_a"))
	acquired, err = s.locks.TryAcquire(s.ctx, "maintenance", "run_b", -time.Minute)
	s.Require().NoError(err)
	s.True(acquired)

	// run_b's lease already expired
	acquired, err = s.locks.TryAcquire(s.ctx, "maintenance", "run_c", time.Hour)
	s.Require().NoError(err)
	s.True(acquired)
}
