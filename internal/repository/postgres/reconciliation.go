package postgres

import (
	"context"

	"github.com/flexprice/couponengine/internal/domain/reconciliation"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/postgres"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/jmoiron/sqlx"
)

type reconciliationRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewReconciliationRepository(db *postgres.DB, logger *logger.Logger) reconciliation.Repository {
	return &reconciliationRepository{
		db:     db,
		logger: logger,
	}
}

func (r *reconciliationRepository) CreateRun(ctx context.Context, run *reconciliation.Run) error {
	query := `
		INSERT INTO reconciliation_runs (
			id, run_status, dry_run, coupons_scanned, entries_scanned, entries_corrected,
			entries_skipped, engineers_posted, engineers_failed, total_delta, error_message,
			started_at, finished_at
		) VALUES (
			:id, :run_status, :dry_run, :coupons_scanned, :entries_scanned, :entries_corrected,
			:entries_skipped, :engineers_posted, :engineers_failed, :total_delta, :error_message,
			:started_at, :finished_at
		)`

	if _, err := sqlx.NamedExecContext(ctx, r.db.GetQuerier(ctx), query, run); err != nil {
		return dbError(err, "Failed to create reconciliation run")
	}
	return nil
}

func (r *reconciliationRepository) UpdateRun(ctx context.Context, run *reconciliation.Run) error {
	query := `
		UPDATE reconciliation_runs SET
			run_status = :run_status,
			coupons_scanned = :coupons_scanned,
			entries_scanned = :entries_scanned,
			entries_corrected = :entries_corrected,
			entries_skipped = :entries_skipped,
			engineers_posted = :engineers_posted,
			engineers_failed = :engineers_failed,
			total_delta = :total_delta,
			error_message = :error_message,
			finished_at = :finished_at
		WHERE id = :id`

	result, err := sqlx.NamedExecContext(ctx, r.db.GetQuerier(ctx), query, run)
	if err != nil {
		return dbError(err, "Failed to update reconciliation run")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return runNotFound(run.ID)
	}
	return nil
}

func runNotFound(id string) error {
	return ierr.NewError("reconciliation run not found").
		WithHintf("Reconciliation run %s not found", id).
		Mark(ierr.ErrNotFound)
}

func (r *reconciliationRepository) GetRun(ctx context.Context, id string) (*reconciliation.Run, error) {
	q := r.db.GetQuerier(ctx)
	query := q.Rebind(`SELECT * FROM reconciliation_runs WHERE id = ?`)

	var run reconciliation.Run
	if err := sqlx.GetContext(ctx, q, &run, query, id); err != nil {
		if isNoRows(err) {
			return nil, runNotFound(id)
		}
		return nil, dbError(err, "Failed to get reconciliation run")
	}
	return &run, nil
}

func (r *reconciliationRepository) ListRuns(ctx context.Context, limit int) ([]*reconciliation.Run, error) {
	q := r.db.GetQuerier(ctx)
	query := q.Rebind(`SELECT * FROM reconciliation_runs ORDER BY started_at DESC, id DESC LIMIT ?`)

	runs := make([]*reconciliation.Run, 0)
	if err := sqlx.SelectContext(ctx, q, &runs, query, limit); err != nil {
		return nil, dbError(err, "Failed to list reconciliation runs")
	}
	return runs, nil
}

func (r *reconciliationRepository) CreateAdjustment(ctx context.Context, adj *reconciliation.Adjustment) error {
	query := `
		INSERT INTO commission_adjustments (
			id, run_id, tenant_id, coupon_id, coupon_code, usage_id, order_id, engineer_id,
			old_commission, new_commission, delta, posted_transaction_id, created_at
		) VALUES (
			:id, :run_id, :tenant_id, :coupon_id, :coupon_code, :usage_id, :order_id, :engineer_id,
			:old_commission, :new_commission, :delta, :posted_transaction_id, :created_at
		)`

	if _, err := sqlx.NamedExecContext(ctx, r.db.GetQuerier(ctx), query, adj); err != nil {
		return dbError(err, "Failed to record commission adjustment")
	}
	return nil
}

func (r *reconciliationRepository) ListPendingEngineers(ctx context.Context) ([]reconciliation.EngineerKey, error) {
	q := r.db.GetQuerier(ctx)
	query := `
		SELECT DISTINCT tenant_id, engineer_id FROM commission_adjustments
		WHERE posted_transaction_id IS NULL
		ORDER BY tenant_id, engineer_id`

	keys := make([]reconciliation.EngineerKey, 0)
	if err := sqlx.SelectContext(ctx, q, &keys, query); err != nil {
		return nil, dbError(err, "Failed to list pending engineers")
	}
	return keys, nil
}

func (r *reconciliationRepository) ListUnposted(ctx context.Context, engineerID string) ([]*reconciliation.Adjustment, error) {
	q := r.db.GetQuerier(ctx)
	query := q.Rebind(`
		SELECT * FROM commission_adjustments
		WHERE tenant_id = ? AND engineer_id = ? AND posted_transaction_id IS NULL
		ORDER BY created_at, id`)

	adjs := make([]*reconciliation.Adjustment, 0)
	if err := sqlx.SelectContext(ctx, q, &adjs, query, types.GetTenantID(ctx), engineerID); err != nil {
		return nil, dbError(err, "Failed to list unposted adjustments")
	}
	return adjs, nil
}

func (r *reconciliationRepository) MarkPosted(ctx context.Context, adjustmentIDs []string, transactionID string) error {
	if len(adjustmentIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		UPDATE commission_adjustments SET posted_transaction_id = ?
		WHERE posted_transaction_id IS NULL AND id IN (?)`, transactionID, adjustmentIDs)
	if err != nil {
		return dbError(err, "Failed to build adjustment update")
	}

	q := r.db.GetQuerier(ctx)
	result, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return dbError(err, "Failed to mark adjustments posted")
	}
	if rows, err := result.RowsAffected(); err == nil && rows != int64(len(adjustmentIDs)) {
		return ierr.NewError("adjustments changed while posting").
			WithHint("Some adjustments were already posted by another run").
			WithReportableDetail("transaction_id", transactionID).
			Mark(ierr.ErrVersionConflict)
	}
	return nil
}
