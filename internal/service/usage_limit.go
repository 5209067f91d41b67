package service

import (
	"context"
	"time"

	"github.com/flexprice/couponengine/internal/domain/coupon"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/types"
)

// Reservation is one consumed use of a coupon for an order
type Reservation struct {
	Token string
	Usage *coupon.UsageRecord
	// Replayed is set when the order already held the reservation
	Replayed bool
}

// UsageLimitEnforcer reserves coupon uses against the global and per user caps
type UsageLimitEnforcer interface {
	// Reserve consumes one use of the coupon for the order. Retrying with the same
	// order returns the existing reservation instead of consuming another use.
	Reserve(ctx context.Context, couponID, userID, orderID string) (*Reservation, error)
}

type usageLimitEnforcer struct {
	ServiceParams
}

func NewUsageLimitEnforcer(params ServiceParams) UsageLimitEnforcer {
	return &usageLimitEnforcer{
		ServiceParams: params,
	}
}

func (s *usageLimitEnforcer) Reserve(ctx context.Context, couponID, userID, orderID string) (*Reservation, error) {
	if couponID == "" || userID == "" || orderID == "" {
		return nil, ierr.NewError("coupon_id, user_id and order_id are required").
			WithHint("A reservation needs a coupon, a user and an order").
			Mark(ierr.ErrValidation)
	}

	token := s.Idempotency.ReservationToken(couponID, orderID)

	existing, err := s.replay(ctx, couponID, userID, orderID)
	if err != nil || existing != nil {
		return existing, err
	}

	now := time.Now().UTC()
	usage := &coupon.UsageRecord{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COUPON_USAGE),
		TenantID:         types.GetTenantID(ctx),
		CouponID:         couponID,
		OrderID:          orderID,
		UserID:           userID,
		ReservationToken: token,
		UsedAt:           now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.DB.WithTx(ctx, func(txCtx context.Context) error {
		return s.CouponRepo.TryReserveUsage(txCtx, usage)
	})
	if ierr.Is(err, ierr.ErrReservationRace) {
		// a concurrent finalization of the same order won, hand back its reservation
		if existing, replayErr := s.replay(ctx, couponID, userID, orderID); replayErr == nil && existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		if ierr.IsReservationRejected(err) {
			s.Logger.Infow("coupon reservation rejected",
				"coupon_id", couponID,
				"order_id", orderID,
				"user_id", userID,
				"reason", ierr.CodeFromErr(err),
			)
			if statsErr := s.CouponRepo.IncrementStats(ctx, couponID, coupon.StatsDelta{FailedAttempts: 1}); statsErr != nil {
				s.Logger.Warnw("failed to record failed coupon attempt", "coupon_id", couponID, "error", statsErr)
			}
		}
		return nil, err
	}

	s.Logger.Infow("coupon use reserved",
		"coupon_id", couponID,
		"order_id", orderID,
		"usage_id", usage.ID,
	)
	return &Reservation{Token: token, Usage: usage}, nil
}

// replay returns the reservation the order already holds, nil when there is none
func (s *usageLimitEnforcer) replay(ctx context.Context, couponID, userID, orderID string) (*Reservation, error) {
	existing, err := s.CouponRepo.GetUsageByOrder(ctx, couponID, orderID)
	if ierr.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if existing.UserID != userID {
		return nil, ierr.NewError("order already reserved by another user").
			WithHintf("Order %s is already linked to this coupon for a different user", orderID).
			WithReportableDetails(map[string]any{
				"coupon_id": couponID,
				"order_id":  orderID,
			}).
			Mark(ierr.ErrValidation)
	}

	s.Logger.Debugw("coupon reservation replayed",
		"coupon_id", couponID,
		"order_id", orderID,
		"usage_id", existing.ID,
	)
	return &Reservation{Token: existing.ReservationToken, Usage: existing, Replayed: true}, nil
}
