package sentry

import (
	"context"
	"time"

	"github.com/flexprice/couponengine/internal/config"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/getsentry/sentry-go"
	"go.uber.org/fx"
)

type Service struct {
	cfg    *config.Configuration
	logger *logger.Logger
}

// Module provides fx options for Sentry
func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewSentryService),
		fx.Invoke(RegisterHooks),
	)
}

// RegisterHooks initializes sentry on start and flushes it on stop
func RegisterHooks(lc fx.Lifecycle, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.Init()
		},
		OnStop: func(ctx context.Context) error {
			svc.Flush(2)
			return nil
		},
	})
}

// NewSentryService creates a new Sentry service
func NewSentryService(cfg *config.Configuration, logger *logger.Logger) *Service {
	return &Service{
		cfg:    cfg,
		logger: logger,
	}
}

// Init configures the sentry client. It is a no-op when sentry is disabled.
func (s *Service) Init() error {
	if !s.cfg.Sentry.Enabled {
		s.logger.Info("Sentry is disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              s.cfg.Sentry.DSN,
		Environment:      s.cfg.Sentry.Environment,
		EnableTracing:    true,
		TracesSampleRate: s.cfg.Sentry.SampleRate,
		TracesSampler: sentry.TracesSampler(func(ctx sentry.SamplingContext) float64 {
			if ctx.Span.Name == "GET /health" {
				return 0.0
			}
			return s.cfg.Sentry.SampleRate
		}),
	})
	if err != nil {
		s.logger.Errorw("Failed to initialize Sentry", "error", err)
		return err
	}
	s.logger.Infow("Sentry initialized successfully",
		"environment", s.cfg.Sentry.Environment,
		"sample_rate", s.cfg.Sentry.SampleRate,
	)
	return nil
}

func (s *Service) Enabled() bool {
	return s.cfg.Sentry.Enabled
}

// CaptureException captures an error in Sentry
func (s *Service) CaptureException(err error) {
	if !s.cfg.Sentry.Enabled {
		return
	}
	sentry.CaptureException(err)
}

// CaptureExceptionWithTags captures an error with searchable tags such as run_id or engineer_id
func (s *Service) CaptureExceptionWithTags(err error, tags map[string]string) {
	if !s.cfg.Sentry.Enabled {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// AddBreadcrumb adds a breadcrumb to the current scope
func (s *Service) AddBreadcrumb(category, message string, data map[string]interface{}) {
	if !s.cfg.Sentry.Enabled {
		return
	}
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: category,
		Message:  message,
		Level:    sentry.LevelInfo,
		Data:     data,
	})
}

// Flush waits for queued events to be sent
func (s *Service) Flush(timeout uint) bool {
	if !s.cfg.Sentry.Enabled {
		return true
	}
	s.logger.Info("Flushing Sentry events")
	return sentry.Flush(time.Duration(timeout) * time.Second)
}

// StartDBSpan starts a new database span in the current transaction
func (s *Service) StartDBSpan(ctx context.Context, operation string, params map[string]interface{}) (*sentry.Span, context.Context) {
	if !s.cfg.Sentry.Enabled {
		return nil, ctx
	}

	span := sentry.StartSpan(ctx, operation)
	if span != nil {
		span.Description = operation
		span.Op = "db.sql"

		for k, v := range params {
			span.SetData(k, v)
		}
	}

	return span, span.Context()
}

// StartTransaction starts a root transaction, used by batch jobs that have no request span
func (s *Service) StartTransaction(ctx context.Context, name string, options ...sentry.SpanOption) (*sentry.Span, context.Context) {
	if !s.cfg.Sentry.Enabled {
		return nil, ctx
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
		ctx = sentry.SetHubOnContext(ctx, hub)
	}

	opts := append([]sentry.SpanOption{
		sentry.WithOpName(name),
		sentry.WithTransactionSource(sentry.SourceCustom),
	}, options...)

	transaction := sentry.StartTransaction(ctx, name, opts...)
	return transaction, transaction.Context()
}
