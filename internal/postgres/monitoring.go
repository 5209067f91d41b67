package postgres

import (
	"context"

	"github.com/flexprice/couponengine/internal/logger"
	sentryService "github.com/flexprice/couponengine/internal/sentry"
)

// SentryClient wraps the transactional client with Sentry monitoring
type SentryClient struct {
	client IClient
	sentry *sentryService.Service
	logger *logger.Logger
}

// NewSentryClient creates a new Sentry-instrumented client
func NewSentryClient(client IClient, sentry *sentryService.Service, logger *logger.Logger) IClient {
	return &SentryClient{
		client: client,
		sentry: sentry,
		logger: logger,
	}
}

// WithTx wraps the given function in a transaction with Sentry span tracking
func (c *SentryClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	span, spanCtx := c.sentry.StartDBSpan(ctx, "postgres.transaction", map[string]interface{}{
		"operation": "transaction",
	})
	if span != nil {
		defer span.Finish()
	}

	err := c.client.WithTx(spanCtx, fn)
	if err != nil && span != nil {
		span.SetData("error", err.Error())
	}
	return err
}
