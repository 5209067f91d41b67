package testutil

import (
	"context"
	"time"

	"github.com/flexprice/couponengine/internal/cache"
	"github.com/flexprice/couponengine/internal/config"
	"github.com/flexprice/couponengine/internal/domain/coupon"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/postgres"
	"github.com/flexprice/couponengine/internal/sentry"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/flexprice/couponengine/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the in-memory repositories used by service tests
type Stores struct {
	CouponRepo         *InMemoryCouponStore
	OrderRepo          *InMemoryOrderStore
	EngineerRepo       *InMemoryEngineerStore
	ReconciliationRepo *InMemoryReconciliationStore
	LockRepo           *InMemoryLockStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    Stores
	publisher *InMemoryEventPublisher
	db        postgres.IClient
	cache     cache.Cache
	sentry    *sentry.Service
	logger    *logger.Logger
	config    *config.Configuration
	now       time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = types.LogLevelInfo
	s.config = cfg

	var err error
	s.logger, err = logger.NewLogger(cfg)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}

	// sentry stays disabled, every capture is a no-op
	s.sentry = sentry.NewSentryService(cfg, s.logger)
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		CouponRepo:         NewInMemoryCouponStore(),
		OrderRepo:          NewInMemoryOrderStore(),
		EngineerRepo:       NewInMemoryEngineerStore(),
		ReconciliationRepo: NewInMemoryReconciliationStore(),
		LockRepo:           NewInMemoryLockStore(),
	}

	s.db = NewMockPostgresClient(s.logger)
	s.cache = cache.NewInMemoryCache(s.config)
	s.publisher = NewInMemoryEventPublisher()
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.CouponRepo.Clear()
	s.stores.OrderRepo.Clear()
	s.stores.EngineerRepo.Clear()
	s.stores.ReconciliationRepo.Clear()
	s.stores.LockRepo.Clear()
	s.cache.Flush(s.ctx)
	s.publisher.Clear()
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetPublisher returns the test event publisher
func (s *BaseServiceTestSuite) GetPublisher() *InMemoryEventPublisher {
	return s.publisher
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

func (s *BaseServiceTestSuite) GetSentry() *sentry.Service {
	return s.sentry
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}

// SeedCoupon stores c in the coupon repository
func (s *BaseServiceTestSuite) SeedCoupon(c *coupon.Coupon) *coupon.Coupon {
	s.Require().NoError(s.stores.CouponRepo.Create(s.ctx, c))
	return c
}
