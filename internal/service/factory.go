package service

import (
	"github.com/flexprice/couponengine/internal/cache"
	"github.com/flexprice/couponengine/internal/config"
	"github.com/flexprice/couponengine/internal/domain/coupon"
	"github.com/flexprice/couponengine/internal/domain/engineer"
	"github.com/flexprice/couponengine/internal/domain/order"
	"github.com/flexprice/couponengine/internal/domain/reconciliation"
	"github.com/flexprice/couponengine/internal/idempotency"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/postgres"
	"github.com/flexprice/couponengine/internal/publisher"
	"github.com/flexprice/couponengine/internal/sentry"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	Cache  cache.Cache
	Sentry *sentry.Service

	// Repositories
	CouponRepo         coupon.Repository
	OrderRepo          order.Repository
	EngineerRepo       engineer.Repository
	ReconciliationRepo reconciliation.Repository
	LockRepo           reconciliation.LockRepository

	// Publishers
	EventPublisher publisher.EventPublisher

	Idempotency *idempotency.Generator
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	cache cache.Cache,
	sentry *sentry.Service,
	couponRepo coupon.Repository,
	orderRepo order.Repository,
	engineerRepo engineer.Repository,
	reconciliationRepo reconciliation.Repository,
	lockRepo reconciliation.LockRepository,
	eventPublisher publisher.EventPublisher,
) ServiceParams {
	return ServiceParams{
		Logger:             logger,
		Config:             config,
		DB:                 db,
		Cache:              cache,
		Sentry:             sentry,
		CouponRepo:         couponRepo,
		OrderRepo:          orderRepo,
		EngineerRepo:       engineerRepo,
		ReconciliationRepo: reconciliationRepo,
		LockRepo:           lockRepo,
		EventPublisher:     eventPublisher,
		Idempotency:        idempotency.NewGenerator(),
	}
}
