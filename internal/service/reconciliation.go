package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flexprice/couponengine/internal/api/dto"
	"github.com/flexprice/couponengine/internal/domain/coupon"
	"github.com/flexprice/couponengine/internal/domain/order"
	"github.com/flexprice/couponengine/internal/domain/reconciliation"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
)

const (
	defaultReconcilePageSize    = 100
	defaultReconcileConcurrency = 8
	defaultReconcileLockTTL     = 30 * time.Minute
)

// Skip reasons of report rows
const (
	SkipOrderNotFound = "order_not_found"
	SkipLookupFailed  = "order_lookup_failed"
	SkipWriteFailed   = "write_failed"
)

// ReconciliationOptions controls a reconciliation run
type ReconciliationOptions struct {
	// DryRun computes the report without writing anything
	DryRun bool
}

// ReconciliationService recomputes historical commissions from order subtotals
// and posts the per engineer corrections to the wallet ledger
type ReconciliationService interface {
	Run(ctx context.Context, opts ReconciliationOptions) (*ReconciliationReport, error)
	ListRuns(ctx context.Context, limit int) (*dto.ListReconciliationRunsResponse, error)
}

type reconciliationService struct {
	ServiceParams
	calculator CommissionCalculator
	ledger     WalletLedger
}

func NewReconciliationService(params ServiceParams) ReconciliationService {
	return &reconciliationService{
		ServiceParams: params,
		calculator:    NewCommissionCalculator(),
		ledger:        NewWalletLedger(params),
	}
}

func (s *reconciliationService) Run(ctx context.Context, opts ReconciliationOptions) (*ReconciliationReport, error) {
	run := &reconciliation.Run{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_RECONCILIATION_RUN),
		Status:    types.ReconciliationRunStatusRunning,
		DryRun:    opts.DryRun,
		StartedAt: time.Now().UTC(),
	}
	report := &ReconciliationReport{Run: run}

	span, ctx := s.Sentry.StartTransaction(ctx, "reconciliation.run")
	if span != nil {
		defer span.Finish()
	}

	if !opts.DryRun {
		acquired, err := s.LockRepo.TryAcquire(ctx, types.ReconciliationLockName, run.ID, s.lockTTL())
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, ierr.NewError("reconciliation already running").
				WithHint("Another reconciliation run holds the maintenance lock").
				WithReportableDetail("lock", types.ReconciliationLockName).
				Mark(ierr.ErrInvalidOperation)
		}
		defer func() {
			if err := s.LockRepo.Release(context.WithoutCancel(ctx), types.ReconciliationLockName, run.ID); err != nil {
				s.Logger.Errorw("failed to release reconciliation lock", "run_id", run.ID, "error", err)
			}
		}()

		if err := s.ReconciliationRepo.CreateRun(ctx, run); err != nil {
			return nil, err
		}
	}

	s.Logger.Infow("starting commission reconciliation", "run_id", run.ID, "dry_run", opts.DryRun)

	if err := s.scan(ctx, report); err != nil {
		return report, s.finish(ctx, report, err)
	}

	if opts.DryRun {
		report.Engineers = report.pendingFromRows()
	} else if err := s.post(ctx, report); err != nil {
		return report, s.finish(ctx, report, err)
	}

	return report, s.finish(ctx, report, nil)
}

// scan pages through every coupon earning commission and corrects its usage entries
func (s *reconciliationService) scan(ctx context.Context, report *ReconciliationReport) error {
	limit := lo.Ternary(s.Config.Engine.ReconcilePageSize > 0, s.Config.Engine.ReconcilePageSize, defaultReconcilePageSize)

	for offset := 0; ; offset += limit {
		coupons, err := s.CouponRepo.ListWithCommission(ctx, &coupon.ListFilter{Limit: limit, Offset: offset})
		if err != nil {
			return err
		}

		for _, c := range coupons {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.reconcileCoupon(types.SetTenantID(ctx, c.TenantID), report, c); err != nil {
				return err
			}
		}

		if len(coupons) < limit {
			return nil
		}
	}
}

type snapshotResult struct {
	usageID string
	order   *order.Snapshot
	err     error
}

func (s *reconciliationService) reconcileCoupon(ctx context.Context, report *ReconciliationReport, c *coupon.Coupon) error {
	run := report.Run
	run.CouponsScanned++

	usages, err := s.CouponRepo.ListUsage(ctx, c.ID)
	if err != nil {
		return err
	}
	// incomplete reservations get their commission when the apply is resumed
	usages = lo.Filter(usages, func(u *coupon.UsageRecord, _ int) bool { return u.IsCompleted() })

	snapshots := s.prefetchOrders(ctx, usages)
	epsilon := s.Config.Engine.ReconcileEpsilon

	for _, u := range usages {
		run.EntriesScanned++
		row := ReconciliationRow{
			TenantID:      c.TenantID,
			EngineerID:    c.EngineerID,
			CouponID:      c.ID,
			CouponCode:    c.Code,
			OrderID:       u.OrderID,
			OldCommission: u.CommissionAmount,
		}

		res := snapshots[u.ID]
		if res.err != nil {
			run.EntriesSkipped++
			row.SkipReason = SkipLookupFailed
			if ierr.IsNotFound(res.err) {
				row.SkipReason = SkipOrderNotFound
				s.Logger.Warnw("order not found, skipping usage entry",
					"run_id", run.ID,
					"coupon_id", c.ID,
					"order_id", u.OrderID,
				)
			} else {
				s.Logger.Errorw("failed to load order, skipping usage entry",
					"run_id", run.ID,
					"coupon_id", c.ID,
					"order_id", u.OrderID,
					"error", res.err,
				)
			}
			report.Rows = append(report.Rows, row)
			continue
		}

		row.NewCommission = s.calculator.ComputeForSubtotal(c, res.order.Subtotal)
		row.Delta = row.NewCommission - row.OldCommission
		if types.AbsInt64(row.Delta) <= epsilon {
			continue
		}

		if !run.DryRun {
			if err := s.correctEntry(ctx, run, c, u, row); err != nil {
				run.EntriesSkipped++
				row.SkipReason = SkipWriteFailed
				s.Logger.Errorw("failed to correct usage entry",
					"run_id", run.ID,
					"coupon_id", c.ID,
					"order_id", u.OrderID,
					"error", err,
				)
				s.Sentry.CaptureExceptionWithTags(err, map[string]string{"run_id": run.ID, "coupon_id": c.ID})
				report.Rows = append(report.Rows, row)
				continue
			}
		}

		run.EntriesCorrected++
		report.Rows = append(report.Rows, row)
		s.Logger.Debugw("corrected usage entry commission",
			"run_id", run.ID,
			"coupon_id", c.ID,
			"order_id", u.OrderID,
			"old_commission", row.OldCommission,
			"new_commission", row.NewCommission,
		)
	}
	return nil
}

// prefetchOrders loads the order snapshots of a coupon's usage entries with bounded concurrency
func (s *reconciliationService) prefetchOrders(ctx context.Context, usages []*coupon.UsageRecord) map[string]snapshotResult {
	workers := lo.Ternary(s.Config.Engine.ReconcileConcurrency > 0, s.Config.Engine.ReconcileConcurrency, defaultReconcileConcurrency)

	p := pool.NewWithResults[snapshotResult]().WithMaxGoroutines(workers)
	for _, u := range usages {
		u := u
		p.Go(func() snapshotResult {
			o, err := s.OrderRepo.GetOrderSnapshot(ctx, u.OrderID)
			return snapshotResult{usageID: u.ID, order: o, err: err}
		})
	}

	return lo.KeyBy(p.Wait(), func(r snapshotResult) string { return r.usageID })
}

// correctEntry rewrites the usage entry and records the pending ledger adjustment atomically
func (s *reconciliationService) correctEntry(ctx context.Context, run *reconciliation.Run, c *coupon.Coupon, u *coupon.UsageRecord, row ReconciliationRow) error {
	return s.DB.WithTx(ctx, func(txCtx context.Context) error {
		now := time.Now().UTC()
		if err := s.CouponRepo.UpdateUsageCommission(txCtx, u.ID, row.NewCommission, run.ID, now); err != nil {
			return err
		}

		err := s.ReconciliationRepo.CreateAdjustment(txCtx, &reconciliation.Adjustment{
			ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COMMISSION_ADJ),
			RunID:         run.ID,
			TenantID:      c.TenantID,
			CouponID:      c.ID,
			CouponCode:    c.Code,
			UsageID:       u.ID,
			OrderID:       u.OrderID,
			EngineerID:    c.EngineerID,
			OldCommission: row.OldCommission,
			NewCommission: row.NewCommission,
			Delta:         row.Delta,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}

		_, err = s.CouponRepo.RefreshCommissionTotal(txCtx, c.ID)
		return err
	})
}

// post lands every engineer's pending adjustments as one ledger transaction. Pending
// adjustments left by an earlier failed run are included.
func (s *reconciliationService) post(ctx context.Context, report *ReconciliationReport) error {
	run := report.Run

	keys, err := s.ReconciliationRepo.ListPendingEngineers(ctx)
	if err != nil {
		return err
	}

	for _, key := range keys {
		summary := s.postEngineer(types.SetTenantID(ctx, key.TenantID), run, key)
		if summary.Err != nil {
			run.EngineersFailed++
		} else if summary.Posted {
			run.EngineersPosted++
			run.TotalDelta += summary.Delta
		}
		report.Engineers = append(report.Engineers, summary)
	}
	return nil
}

func (s *reconciliationService) postEngineer(ctx context.Context, run *reconciliation.Run, key reconciliation.EngineerKey) EngineerSummary {
	summary := EngineerSummary{
		TenantID:      key.TenantID,
		EngineerID:    key.EngineerID,
		TransactionID: s.Idempotency.ReconciliationTxID(run.ID, key.EngineerID),
	}

	operation := func() error {
		return s.DB.WithTx(ctx, func(txCtx context.Context) error {
			adjustments, err := s.ReconciliationRepo.ListUnposted(txCtx, key.EngineerID)
			if err != nil {
				return err
			}
			summary.Entries = len(adjustments)
			summary.Delta = lo.SumBy(adjustments, func(a *reconciliation.Adjustment) int64 { return a.Delta })
			summary.Posted = false
			if len(adjustments) == 0 {
				return nil
			}

			// corrections that cancel out are settled without a ledger entry
			if summary.Delta != 0 {
				balance, err := s.ledger.Post(txCtx, key.EngineerID, LedgerEntry{
					TransactionID: summary.TransactionID,
					Type:          types.TransactionTypeForDelta(summary.Delta),
					Amount:        summary.Delta,
					ReferenceID:   run.ID,
					Description:   "commission reconciliation " + run.ID,
				})
				if err != nil && !ierr.IsAlreadyExists(err) {
					if ierr.IsValidation(err) {
						return backoff.Permanent(err)
					}
					return err
				}
				summary.Balance = balance
				summary.Posted = true
			}

			ids := lo.Map(adjustments, func(a *reconciliation.Adjustment, _ int) string { return a.ID })
			return s.ReconciliationRepo.MarkPosted(txCtx, ids, summary.TransactionID)
		})
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.Config.Engine.ReconcileMaxRetries),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		s.Logger.Warnw("retrying engineer ledger post",
			"run_id", run.ID,
			"engineer_id", key.EngineerID,
			"wait", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		summary.Err = err
		summary.Posted = false
		s.Logger.Errorw("failed to post engineer commission adjustment",
			"run_id", run.ID,
			"tenant_id", key.TenantID,
			"engineer_id", key.EngineerID,
			"delta", summary.Delta,
			"error", err,
		)
		s.Sentry.CaptureExceptionWithTags(err, map[string]string{
			"run_id":      run.ID,
			"tenant_id":   key.TenantID,
			"engineer_id": key.EngineerID,
		})
		return summary
	}

	if summary.Posted {
		s.publishAdjusted(ctx, run, summary)
	}
	return summary
}

func (s *reconciliationService) publishAdjusted(ctx context.Context, run *reconciliation.Run, summary EngineerSummary) {
	event, err := types.NewLedgerEvent(types.EventCommissionAdjusted, summary.TenantID, types.CommissionAdjustedPayload{
		RunID:         run.ID,
		EngineerID:    summary.EngineerID,
		TransactionID: summary.TransactionID,
		Delta:         summary.Delta,
		Entries:       summary.Entries,
		WalletBalance: summary.Balance,
	})
	if err == nil {
		err = s.EventPublisher.Publish(ctx, event)
	}
	if err != nil {
		s.Logger.Errorw("failed to publish commission adjusted event",
			"run_id", run.ID,
			"engineer_id", summary.EngineerID,
			"error", err,
		)
	}
}

// finish settles the run status and persists it
func (s *reconciliationService) finish(ctx context.Context, report *ReconciliationReport, runErr error) error {
	run := report.Run
	now := time.Now().UTC()
	run.FinishedAt = &now

	switch {
	case runErr != nil:
		run.Status = types.ReconciliationRunStatusFailed
		run.ErrorMessage = runErr.Error()
	case run.DryRun:
		run.Status = types.ReconciliationRunStatusDryRun
	case run.EngineersFailed > 0:
		run.Status = types.ReconciliationRunStatusPartial
	default:
		run.Status = types.ReconciliationRunStatusCompleted
	}

	s.Logger.Infow("finished commission reconciliation",
		"run_id", run.ID,
		"status", run.Status,
		"coupons_scanned", run.CouponsScanned,
		"entries_scanned", run.EntriesScanned,
		"entries_corrected", run.EntriesCorrected,
		"entries_skipped", run.EntriesSkipped,
		"engineers_posted", run.EngineersPosted,
		"engineers_failed", run.EngineersFailed,
		"total_delta", run.TotalDelta,
	)

	if run.DryRun {
		return runErr
	}
	if err := s.ReconciliationRepo.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		s.Logger.Errorw("failed to persist reconciliation run", "run_id", run.ID, "error", err)
		if runErr == nil {
			return err
		}
	}
	return runErr
}

func (s *reconciliationService) lockTTL() time.Duration {
	if s.Config.Engine.ReconcileLockTTL > 0 {
		return s.Config.Engine.ReconcileLockTTL
	}
	return defaultReconcileLockTTL
}

func (s *reconciliationService) ListRuns(ctx context.Context, limit int) (*dto.ListReconciliationRunsResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	runs, err := s.ReconciliationRepo.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	return &dto.ListReconciliationRunsResponse{Items: runs}, nil
}
