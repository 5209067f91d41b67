package repository

import (
	"github.com/flexprice/couponengine/internal/domain/coupon"
	"github.com/flexprice/couponengine/internal/domain/engineer"
	"github.com/flexprice/couponengine/internal/domain/order"
	"github.com/flexprice/couponengine/internal/domain/reconciliation"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/postgres"
	postgresRepo "github.com/flexprice/couponengine/internal/repository/postgres"
	"go.uber.org/fx"
)

// Module provides every repository for fx
func Module() fx.Option {
	return fx.Provide(
		NewCouponRepository,
		NewOrderRepository,
		NewEngineerRepository,
		NewReconciliationRepository,
		NewLockRepository,
	)
}

func NewCouponRepository(db *postgres.DB, logger *logger.Logger) coupon.Repository {
	return postgresRepo.NewCouponRepository(db, logger)
}

func NewOrderRepository(db *postgres.DB, logger *logger.Logger) order.Repository {
	return postgresRepo.NewOrderRepository(db, logger)
}

func NewEngineerRepository(db *postgres.DB, logger *logger.Logger) engineer.Repository {
	return postgresRepo.NewEngineerRepository(db, logger)
}

func NewReconciliationRepository(db *postgres.DB, logger *logger.Logger) reconciliation.Repository {
	return postgresRepo.NewReconciliationRepository(db, logger)
}

func NewLockRepository(db *postgres.DB, logger *logger.Logger) reconciliation.LockRepository {
	return postgresRepo.NewLockRepository(db, logger)
}
