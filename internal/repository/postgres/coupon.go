package postgres

import (
	"context"
	"time"

	"github.com/flexprice/couponengine/internal/domain/coupon"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/postgres"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/jmoiron/sqlx"
)

type couponRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewCouponRepository creates a new instance of coupon repository
func NewCouponRepository(db *postgres.DB, logger *logger.Logger) coupon.Repository {
	return &couponRepository{
		db:     db,
		logger: logger,
	}
}

func couponNotFound(key string) error {
	return ierr.NewError("coupon not found").
		WithHintf("Coupon %s not found", key).
		WithReportableDetail("coupon", key).
		Mark(ierr.ErrCouponNotFound)
}

func (r *couponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	query := `
		INSERT INTO coupons (
			id, tenant_id, code, coupon_type, coupon_status, applies_to,
			discount_percentage, discount_amount, max_discount_amount, min_order_amount, currency,
			start_date, end_date, first_order_only, new_users_only, allowed_account_types, allowed_user_ids,
			product_ids, category_ids, brand_ids,
			excluded_product_ids, excluded_category_ids, excluded_brand_ids, exclude_sale_items,
			max_total_uses, current_uses, max_uses_per_user, one_time_use, buy_quantity, get_quantity,
			engineer_id, commission_rate, total_commission_earned,
			created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :tenant_id, :code, :coupon_type, :coupon_status, :applies_to,
			:discount_percentage, :discount_amount, :max_discount_amount, :min_order_amount, :currency,
			:start_date, :end_date, :first_order_only, :new_users_only, :allowed_account_types, :allowed_user_ids,
			:product_ids, :category_ids, :brand_ids,
			:excluded_product_ids, :excluded_category_ids, :excluded_brand_ids, :exclude_sale_items,
			:max_total_uses, :current_uses, :max_uses_per_user, :one_time_use, :buy_quantity, :get_quantity,
			:engineer_id, :commission_rate, :total_commission_earned,
			:created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("creating coupon",
		"coupon_id", c.ID,
		"code", c.Code,
		"tenant_id", c.TenantID,
	)

	if _, err := sqlx.NamedExecContext(ctx, r.db.GetQuerier(ctx), query, c); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHintf("A coupon with code %s already exists", c.Code).
				WithReportableDetail("code", c.Code).
				Mark(ierr.ErrAlreadyExists)
		}
		return dbError(err, "Failed to create coupon")
	}
	return nil
}

func (r *couponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	q := r.db.GetQuerier(ctx)
	query := q.Rebind(`SELECT * FROM coupons WHERE id = ? AND tenant_id = ?`)

	var c coupon.Coupon
	if err := sqlx.GetContext(ctx, q, &c, query, id, types.GetTenantID(ctx)); err != nil {
		if isNoRows(err) {
			return nil, couponNotFound(id)
		}
		return nil, dbError(err, "Failed to get coupon")
	}
	return &c, nil
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	q := r.db.GetQuerier(ctx)
	query := q.Rebind(`SELECT * FROM coupons WHERE code = ? AND tenant_id = ?`)

	var c coupon.Coupon
	if err := sqlx.GetContext(ctx, q, &c, query, code, types.GetTenantID(ctx)); err != nil {
		if isNoRows(err) {
			return nil, couponNotFound(code)
		}
		return nil, dbError(err, "Failed to get coupon")
	}
	return &c, nil
}

func (r *couponRepository) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE coupons
		SET deleted_at = :now, updated_at = :now, updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id AND deleted_at IS NULL`

	params := map[string]interface{}{
		"id":         id,
		"tenant_id":  types.GetTenantID(ctx),
		"updated_by": types.GetUserID(ctx),
		"now":        time.Now().UTC(),
	}

	result, err := sqlx.NamedExecContext(ctx, r.db.GetQuerier(ctx), query, params)
	if err != nil {
		return dbError(err, "Failed to delete coupon")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return couponNotFound(id)
	}
	return nil
}

func (r *couponRepository) ListWithCommission(ctx context.Context, filter *coupon.ListFilter) ([]*coupon.Coupon, error) {
	if filter == nil {
		filter = &coupon.ListFilter{}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	q := r.db.GetQuerier(ctx)
	query := q.Rebind(`
		SELECT * FROM coupons
		WHERE engineer_id <> ''
		AND commission_rate IS NOT NULL
		AND commission_rate > 0
		AND current_uses > 0
		AND deleted_at IS NULL
		ORDER BY id
		LIMIT ? OFFSET ?`)

	var coupons []*coupon.Coupon
	if err := sqlx.SelectContext(ctx, q, &coupons, query, limit, filter.Offset); err != nil {
		return nil, dbError(err, "Failed to list coupons with commission")
	}
	return coupons, nil
}

func (r *couponRepository) IncrementStats(ctx context.Context, id string, delta coupon.StatsDelta) error {
	query := `
		UPDATE coupons SET
			stat_views = stat_views + :views,
			stat_applies = stat_applies + :applies,
			stat_successful_orders = stat_successful_orders + :successful_orders,
			stat_failed_attempts = stat_failed_attempts + :failed_attempts,
			stat_total_revenue = stat_total_revenue + :total_revenue,
			stat_total_discount = stat_total_discount + :total_discount,
			updated_at = :now
		WHERE id = :id AND tenant_id = :tenant_id`

	params := map[string]interface{}{
		"id":                id,
		"tenant_id":         types.GetTenantID(ctx),
		"views":             delta.Views,
		"applies":           delta.Applies,
		"successful_orders": delta.SuccessfulOrders,
		"failed_attempts":   delta.FailedAttempts,
		"total_revenue":     delta.TotalRevenue,
		"total_discount":    delta.TotalDiscount,
		"now":               time.Now().UTC(),
	}

	result, err := sqlx.NamedExecContext(ctx, r.db.GetQuerier(ctx), query, params)
	if err != nil {
		return dbError(err, "Failed to update coupon stats")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return couponNotFound(id)
	}
	return nil
}

// TryReserveUsage claims the order first so a concurrent reservation of the same
// order fails on the unique index, then consumes the per user and global uses.
// Every step is conditional, a rejected step leaves the caller's tx to roll back.
func (r *couponRepository) TryReserveUsage(ctx context.Context, reservation *coupon.UsageRecord) error {
	c, err := r.Get(ctx, reservation.CouponID)
	if err != nil {
		return err
	}
	reservation.CouponCode = c.Code

	q := r.db.GetQuerier(ctx)

	insertUsage := `
		INSERT INTO coupon_usages (
			id, tenant_id, coupon_id, coupon_code, order_id, user_id, reservation_token,
			discount_amount, commission_amount, used_at, created_at, updated_at
		) VALUES (
			:id, :tenant_id, :coupon_id, :coupon_code, :order_id, :user_id, :reservation_token,
			:discount_amount, :commission_amount, :used_at, :created_at, :updated_at
		)`
	if _, err := sqlx.NamedExecContext(ctx, q, insertUsage, reservation); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHintf("Order %s already holds a reservation of coupon %s", reservation.OrderID, c.Code).
				WithReportableDetails(map[string]any{"coupon_id": c.ID, "order_id": reservation.OrderID}).
				Mark(ierr.ErrReservationRace)
		}
		return dbError(err, "Failed to reserve coupon use")
	}

	perUser := q.Rebind(`
		INSERT INTO coupon_user_usage (coupon_id, user_id, uses)
		SELECT id, ?, 1 FROM coupons
		WHERE id = ?
		AND (CASE WHEN one_time_use THEN 1 ELSE COALESCE(max_uses_per_user, 2147483647) END) >= 1
		ON CONFLICT (coupon_id, user_id) DO UPDATE SET uses = coupon_user_usage.uses + 1
		WHERE coupon_user_usage.uses < (
			SELECT CASE WHEN one_time_use THEN 1 ELSE COALESCE(max_uses_per_user, 2147483647) END
			FROM coupons WHERE id = excluded.coupon_id
		)`)
	result, err := q.ExecContext(ctx, perUser, reservation.UserID, c.ID)
	if err != nil {
		return dbError(err, "Failed to reserve coupon use")
	}
	if rows, err := result.RowsAffected(); err != nil {
		return dbError(err, "Failed to reserve coupon use")
	} else if rows == 0 {
		return ierr.NewError("per user coupon limit reached").
			WithHintf("Coupon %s was already used the maximum number of times by this user", c.Code).
			WithReportableDetails(map[string]any{"coupon_id": c.ID, "user_id": reservation.UserID}).
			Mark(ierr.ErrCouponUserLimitReached)
	}

	global := q.Rebind(`
		UPDATE coupons SET
			current_uses = current_uses + 1,
			coupon_status = CASE
				WHEN max_total_uses IS NOT NULL AND current_uses + 1 >= max_total_uses THEN ?
				ELSE coupon_status END,
			updated_at = ?
		WHERE id = ? AND tenant_id = ?
		AND deleted_at IS NULL
		AND coupon_status = ?
		AND (max_total_uses IS NULL OR current_uses < max_total_uses)`)
	result, err = q.ExecContext(ctx, global,
		types.CouponStatusExhausted,
		time.Now().UTC(),
		c.ID,
		c.TenantID,
		types.CouponStatusActive,
	)
	if err != nil {
		return dbError(err, "Failed to reserve coupon use")
	}
	if rows, err := result.RowsAffected(); err != nil {
		return dbError(err, "Failed to reserve coupon use")
	} else if rows == 0 {
		return ierr.NewError("coupon usage limit reached").
			WithHintf("Coupon %s has no uses left", c.Code).
			WithReportableDetails(map[string]any{"coupon_id": c.ID}).
			Mark(ierr.ErrCouponExhausted)
	}

	r.logger.Debugw("reserved coupon use",
		"coupon_id", c.ID,
		"order_id", reservation.OrderID,
		"usage_id", reservation.ID,
	)
	return nil
}

func (r *couponRepository) GetUsageByOrder(ctx context.Context, couponID, orderID string) (*coupon.UsageRecord, error) {
	q := r.db.GetQuerier(ctx)
	query := q.Rebind(`SELECT * FROM coupon_usages WHERE coupon_id = ? AND order_id = ? AND tenant_id = ?`)

	var u coupon.UsageRecord
	if err := sqlx.GetContext(ctx, q, &u, query, couponID, orderID, types.GetTenantID(ctx)); err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("usage not found").
				WithHintf("Order %s has no reservation of the coupon", orderID).
				Mark(ierr.ErrNotFound)
		}
		return nil, dbError(err, "Failed to get coupon usage")
	}
	return &u, nil
}

func (r *couponRepository) ListUsage(ctx context.Context, couponID string) ([]*coupon.UsageRecord, error) {
	q := r.db.GetQuerier(ctx)
	query := q.Rebind(`
		SELECT * FROM coupon_usages
		WHERE coupon_id = ? AND tenant_id = ?
		ORDER BY used_at, id`)

	usages := make([]*coupon.UsageRecord, 0)
	if err := sqlx.SelectContext(ctx, q, &usages, query, couponID, types.GetTenantID(ctx)); err != nil {
		return nil, dbError(err, "Failed to list coupon usage")
	}
	return usages, nil
}

func (r *couponRepository) RecordUsage(ctx context.Context, usageID string, discountAmount, commissionAmount int64, at time.Time) (bool, error) {
	query := `
		UPDATE coupon_usages SET
			discount_amount = :discount_amount,
			commission_amount = :commission_amount,
			completed_at = :at,
			updated_at = :at
		WHERE id = :id AND tenant_id = :tenant_id AND completed_at IS NULL`

	params := map[string]interface{}{
		"id":                usageID,
		"tenant_id":         types.GetTenantID(ctx),
		"discount_amount":   discountAmount,
		"commission_amount": commissionAmount,
		"at":                at.UTC(),
	}

	result, err := sqlx.NamedExecContext(ctx, r.db.GetQuerier(ctx), query, params)
	if err != nil {
		return false, dbError(err, "Failed to record coupon usage")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, dbError(err, "Failed to record coupon usage")
	}
	return rows == 1, nil
}

func (r *couponRepository) UpdateUsageCommission(ctx context.Context, usageID string, commissionAmount int64, runID string, at time.Time) error {
	query := `
		UPDATE coupon_usages SET
			commission_amount = :commission_amount,
			reconciled_run_id = :run_id,
			reconciled_at = :at,
			updated_at = :at
		WHERE id = :id AND tenant_id = :tenant_id`

	params := map[string]interface{}{
		"id":                usageID,
		"tenant_id":         types.GetTenantID(ctx),
		"commission_amount": commissionAmount,
		"run_id":            runID,
		"at":                at.UTC(),
	}

	result, err := sqlx.NamedExecContext(ctx, r.db.GetQuerier(ctx), query, params)
	if err != nil {
		return dbError(err, "Failed to update usage commission")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ierr.NewError("usage not found").
			WithHintf("Usage entry %s not found", usageID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *couponRepository) RefreshCommissionTotal(ctx context.Context, couponID string) (int64, error) {
	q := r.db.GetQuerier(ctx)
	tenantID := types.GetTenantID(ctx)

	var total int64
	sum := q.Rebind(`SELECT COALESCE(SUM(commission_amount), 0) FROM coupon_usages WHERE coupon_id = ? AND tenant_id = ?`)
	if err := sqlx.GetContext(ctx, q, &total, sum, couponID, tenantID); err != nil {
		return 0, dbError(err, "Failed to sum coupon commission")
	}

	update := q.Rebind(`UPDATE coupons SET total_commission_earned = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`)
	result, err := q.ExecContext(ctx, update, total, time.Now().UTC(), couponID, tenantID)
	if err != nil {
		return 0, dbError(err, "Failed to update coupon commission total")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return 0, couponNotFound(couponID)
	}
	return total, nil
}
