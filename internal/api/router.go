package api

import (
	v1 "github.com/flexprice/couponengine/internal/api/v1"
	"github.com/flexprice/couponengine/internal/config"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/rest/middleware"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health         *v1.HealthHandler
	Coupon         *v1.CouponHandler
	Engineer       *v1.EngineerHandler
	Reconciliation *v1.ReconciliationHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	if cfg.Deployment.Mode != types.ModeLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.CORSMiddleware,
		middleware.RequestIDMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.ErrorHandler(logger),
	)

	router.GET("/health", handlers.Health.Health)

	// v1 routes
	v1Group := router.Group("/v1")
	v1Group.Use(middleware.TenantMiddleware)
	registerV1Routes(v1Group, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	coupons := router.Group("/coupons")
	{
		coupons.POST("", handlers.Coupon.CreateCoupon)
		coupons.POST("/validate", handlers.Coupon.ValidateCoupon)
		coupons.POST("/apply", handlers.Coupon.ApplyCoupon)
		coupons.GET("/code/:code", handlers.Coupon.GetCouponByCode)
		coupons.GET("/:id", handlers.Coupon.GetCoupon)
		coupons.DELETE("/:id", handlers.Coupon.DeleteCoupon)
		coupons.GET("/:id/usage", handlers.Coupon.ListUsageHistory)
	}

	engineers := router.Group("/engineers")
	{
		engineers.GET("/:id/wallet", handlers.Engineer.GetWallet)
		engineers.POST("/:id/wallet/rebuild", handlers.Engineer.RebuildBalance)
	}

	reconciliation := router.Group("/reconciliation")
	{
		reconciliation.POST("/runs", handlers.Reconciliation.Run)
		reconciliation.GET("/runs", handlers.Reconciliation.ListRuns)
	}
}
