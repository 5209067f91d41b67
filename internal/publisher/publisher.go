package publisher

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/couponengine/internal/config"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/pubsub"
	"github.com/flexprice/couponengine/internal/pubsub/kafka"
	"github.com/flexprice/couponengine/internal/pubsub/memory"
	"github.com/flexprice/couponengine/internal/types"
)

// EventPublisher publishes ledger events. Publishing happens after the ledger
// write is committed, so callers treat failures as non fatal.
type EventPublisher interface {
	Publish(ctx context.Context, event *types.LedgerEvent) error
	Close() error
}

type eventPublisher struct {
	pubSub pubsub.PubSub
	config *config.EventConfig
	logger *logger.Logger
}

// NewPubSub returns the transport selected by event.publish_destination
func NewPubSub(cfg *config.Configuration, logger *logger.Logger) (pubsub.PubSub, error) {
	switch cfg.Event.PublishDestination {
	case types.PublishToKafka:
		return kafka.NewPubSub(cfg, logger)
	case types.PublishToMemory, types.PublishToNone, "":
		return memory.NewPubSub(cfg, logger), nil
	default:
		return nil, ierr.NewErrorf("unknown publish destination: %s", cfg.Event.PublishDestination).
			WithHint("event.publish_destination must be one of memory, kafka or none").
			Mark(ierr.ErrValidation)
	}
}

func NewEventPublisher(
	pubSub pubsub.PubSub,
	cfg *config.Configuration,
	logger *logger.Logger,
) EventPublisher {
	return &eventPublisher{
		pubSub: pubSub,
		config: &cfg.Event,
		logger: logger,
	}
}

func (p *eventPublisher) Publish(ctx context.Context, event *types.LedgerEvent) error {
	if p.config.PublishDestination == types.PublishToNone {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode ledger event").
			Mark(ierr.ErrSystem)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("tenant_id", event.TenantID)
	msg.Metadata.Set("event_name", string(event.EventName))

	p.logger.Debugw("publishing ledger event",
		"event_id", event.ID,
		"event_name", event.EventName,
		"tenant_id", event.TenantID,
		"topic", p.config.Topic,
	)

	if err := p.pubSub.Publish(ctx, p.config.Topic, msg); err != nil {
		p.logger.Errorw("failed to publish ledger event",
			"error", err,
			"event_id", event.ID,
			"event_name", event.EventName,
			"tenant_id", event.TenantID,
		)
		return ierr.WithError(err).
			WithHint("Failed to publish ledger event").
			Mark(ierr.ErrSystem)
	}
	return nil
}

func (p *eventPublisher) Close() error {
	return p.pubSub.Close()
}
