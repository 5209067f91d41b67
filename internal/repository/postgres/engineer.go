package postgres

import (
	"context"
	"time"

	"github.com/flexprice/couponengine/internal/domain/engineer"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/postgres"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/jmoiron/sqlx"
)

type engineerRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewEngineerRepository creates a new instance of engineer wallet repository
func NewEngineerRepository(db *postgres.DB, logger *logger.Logger) engineer.Repository {
	return &engineerRepository{
		db:     db,
		logger: logger,
	}
}

func profileNotFound(engineerID string) error {
	return ierr.NewError("engineer profile not found").
		WithHintf("Engineer %s has no wallet", engineerID).
		WithReportableDetail("engineer_id", engineerID).
		Mark(ierr.ErrNotFound)
}

// LockProfile upserts the profile with a version bump. On postgres the upsert takes
// the row lock, so concurrent postings for the engineer queue behind the caller's tx.
func (r *engineerRepository) LockProfile(ctx context.Context, engineerID string) (*engineer.Profile, error) {
	q := r.db.GetQuerier(ctx)
	now := time.Now().UTC()

	upsert := q.Rebind(`
		INSERT INTO engineer_profiles (tenant_id, user_id, wallet_balance, version, created_at, updated_at)
		VALUES (?, ?, 0, 1, ?, ?)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			version = engineer_profiles.version + 1,
			updated_at = excluded.updated_at`)
	if _, err := q.ExecContext(ctx, upsert, types.GetTenantID(ctx), engineerID, now, now); err != nil {
		return nil, dbError(err, "Failed to lock engineer profile")
	}

	return r.GetProfile(ctx, engineerID)
}

func (r *engineerRepository) GetProfile(ctx context.Context, engineerID string) (*engineer.Profile, error) {
	q := r.db.GetQuerier(ctx)
	query := q.Rebind(`SELECT * FROM engineer_profiles WHERE tenant_id = ? AND user_id = ?`)

	var p engineer.Profile
	if err := sqlx.GetContext(ctx, q, &p, query, types.GetTenantID(ctx), engineerID); err != nil {
		if isNoRows(err) {
			return nil, profileNotFound(engineerID)
		}
		return nil, dbError(err, "Failed to get engineer profile")
	}
	return &p, nil
}

func (r *engineerRepository) UpdateBalance(ctx context.Context, engineerID string, balance int64) error {
	query := `
		UPDATE engineer_profiles
		SET wallet_balance = :wallet_balance, updated_at = :updated_at
		WHERE tenant_id = :tenant_id AND user_id = :user_id`

	params := map[string]interface{}{
		"tenant_id":      types.GetTenantID(ctx),
		"user_id":        engineerID,
		"wallet_balance": balance,
		"updated_at":     time.Now().UTC(),
	}

	result, err := sqlx.NamedExecContext(ctx, r.db.GetQuerier(ctx), query, params)
	if err != nil {
		return dbError(err, "Failed to update wallet balance")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return profileNotFound(engineerID)
	}
	return nil
}

func (r *engineerRepository) GetTransaction(ctx context.Context, id string) (*engineer.Transaction, error) {
	q := r.db.GetQuerier(ctx)
	query := q.Rebind(`SELECT * FROM engineer_transactions WHERE id = ? AND tenant_id = ?`)

	var t engineer.Transaction
	if err := sqlx.GetContext(ctx, q, &t, query, id, types.GetTenantID(ctx)); err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("transaction not found").
				WithHintf("Transaction %s not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, dbError(err, "Failed to get wallet transaction")
	}
	return &t, nil
}

func (r *engineerRepository) CreateTransaction(ctx context.Context, txn *engineer.Transaction) error {
	query := `
		INSERT INTO engineer_transactions (
			id, tenant_id, engineer_id, sequence, transaction_type, amount, balance_after,
			order_id, coupon_code, reference_id, description, created_at
		) VALUES (
			:id, :tenant_id, :engineer_id, :sequence, :transaction_type, :amount, :balance_after,
			:order_id, :coupon_code, :reference_id, :description, :created_at
		)`

	if _, err := sqlx.NamedExecContext(ctx, r.db.GetQuerier(ctx), query, txn); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHintf("Transaction %s was already posted", txn.ID).
				WithReportableDetail("transaction_id", txn.ID).
				Mark(ierr.ErrAlreadyExists)
		}
		return dbError(err, "Failed to create wallet transaction")
	}
	return nil
}

func (r *engineerRepository) ListTransactions(ctx context.Context, engineerID string) ([]*engineer.Transaction, error) {
	q := r.db.GetQuerier(ctx)
	query := q.Rebind(`
		SELECT * FROM engineer_transactions
		WHERE tenant_id = ? AND engineer_id = ?
		ORDER BY sequence`)

	txns := make([]*engineer.Transaction, 0)
	if err := sqlx.SelectContext(ctx, q, &txns, query, types.GetTenantID(ctx), engineerID); err != nil {
		return nil, dbError(err, "Failed to list wallet transactions")
	}
	return txns, nil
}
