package postgres

import (
	"context"

	"github.com/flexprice/couponengine/internal/domain/order"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/postgres"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/jmoiron/sqlx"
)

// orderRepository reads the order_snapshots read model kept by the order subsystem
type orderRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewOrderRepository(db *postgres.DB, logger *logger.Logger) order.Repository {
	return &orderRepository{
		db:     db,
		logger: logger,
	}
}

func (r *orderRepository) GetOrderSnapshot(ctx context.Context, orderID string) (*order.Snapshot, error) {
	q := r.db.GetQuerier(ctx)
	query := q.Rebind(`SELECT * FROM order_snapshots WHERE id = ? AND tenant_id = ?`)

	var o order.Snapshot
	if err := sqlx.GetContext(ctx, q, &o, query, orderID, types.GetTenantID(ctx)); err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("order not found").
				WithHintf("Order %s not found", orderID).
				WithReportableDetail("order_id", orderID).
				Mark(ierr.ErrOrderNotFound)
		}
		return nil, dbError(err, "Failed to get order")
	}
	return &o, nil
}
