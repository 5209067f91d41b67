package service

import (
	"context"
	"time"

	"github.com/flexprice/couponengine/internal/api/dto"
	"github.com/flexprice/couponengine/internal/cache"
	"github.com/flexprice/couponengine/internal/domain/coupon"
	"github.com/flexprice/couponengine/internal/domain/order"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/samber/lo"
)

// CouponService defines the interface for coupon operations
type CouponService interface {
	CreateCoupon(ctx context.Context, req dto.CreateCouponRequest) (*dto.CouponResponse, error)
	GetCoupon(ctx context.Context, id string) (*dto.CouponResponse, error)
	GetCouponByCode(ctx context.Context, code string) (*dto.CouponResponse, error)
	DeleteCoupon(ctx context.Context, id string) error

	// ValidateCoupon previews a coupon against an order. It writes nothing and
	// reports ineligibility in the response, errors are lookup failures only.
	ValidateCoupon(ctx context.Context, req dto.ValidateCouponRequest) (*dto.ValidateCouponResponse, error)
	// ApplyCoupon finalizes the coupon on the order: it reserves a use, records the
	// discount and posts the engineer commission. It is idempotent per (code, order).
	ApplyCoupon(ctx context.Context, req dto.ApplyCouponRequest) (*dto.ApplyCouponResponse, error)
	ListUsageHistory(ctx context.Context, couponID string) (*dto.UsageHistoryResponse, error)
}

type couponService struct {
	ServiceParams
	evaluator  EligibilityEvaluator
	applicator DiscountApplicator
	enforcer   UsageLimitEnforcer
	calculator CommissionCalculator
	ledger     WalletLedger
}

// NewCouponService creates a new coupon service
func NewCouponService(
	params ServiceParams,
) CouponService {
	applicator := NewDiscountApplicator()
	return &couponService{
		ServiceParams: params,
		evaluator:     NewEligibilityEvaluator(applicator),
		applicator:    applicator,
		enforcer:      NewUsageLimitEnforcer(params),
		calculator:    NewCommissionCalculator(),
		ledger:        NewWalletLedger(params),
	}
}

// CreateCoupon creates a new coupon
func (s *couponService) CreateCoupon(ctx context.Context, req dto.CreateCouponRequest) (*dto.CouponResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c := req.ToCoupon(ctx)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if err := s.CouponRepo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.Logger.Infow("created coupon", "coupon_id", c.ID, "code", c.Code, "type", c.Type)
	return &dto.CouponResponse{Coupon: c}, nil
}

func (s *couponService) GetCoupon(ctx context.Context, id string) (*dto.CouponResponse, error) {
	if id == "" {
		return nil, ierr.NewError("coupon_id is required").
			WithHint("Coupon ID is required").
			Mark(ierr.ErrValidation)
	}

	c, err := s.CouponRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.CouponResponse{Coupon: c}, nil
}

func (s *couponService) GetCouponByCode(ctx context.Context, code string) (*dto.CouponResponse, error) {
	c, err := s.getByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &dto.CouponResponse{Coupon: c}, nil
}

// DeleteCoupon soft deletes a coupon. Its usage history and ledger entries are kept.
func (s *couponService) DeleteCoupon(ctx context.Context, id string) error {
	c, err := s.CouponRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.IsDeleted() {
		return nil
	}

	if err := s.CouponRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.Cache.Delete(ctx, codeCacheKey(ctx, c.Code))

	s.Logger.Infow("deleted coupon", "coupon_id", id, "code", c.Code)
	return nil
}

func (s *couponService) ValidateCoupon(ctx context.Context, req dto.ValidateCouponRequest) (*dto.ValidateCouponResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c, o, err := s.load(ctx, req.Code, req.OrderID)
	if err != nil {
		return nil, err
	}

	uc, err := s.userContext(ctx, c, o, req.AccountType, req.AccountCreatedAt)
	if err != nil {
		return nil, err
	}

	result := s.evaluator.Evaluate(c, o, uc)
	s.Logger.Debugw("evaluated coupon",
		"coupon_id", c.ID,
		"order_id", o.ID,
		"eligible", result.Eligible,
		"reason", result.Reason,
	)

	return &dto.ValidateCouponResponse{
		Eligible:           result.Eligible,
		Reason:             result.Reason,
		CouponCode:         c.Code,
		OrderID:            o.ID,
		DiscountAmount:     result.Discount.Amount,
		FreeShipping:       result.Discount.FreeShipping,
		CappedByMax:        result.Discount.CappedByMax,
		AppliesToLineItems: result.Discount.AppliesToLineItems,
		DiscountedUnits:    result.Discount.DiscountedUnits,
	}, nil
}

func (s *couponService) ApplyCoupon(ctx context.Context, req dto.ApplyCouponRequest) (*dto.ApplyCouponResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c, o, err := s.load(ctx, req.Code, req.OrderID)
	if err != nil {
		return nil, err
	}

	existing, err := s.CouponRepo.GetUsageByOrder(ctx, c.ID, o.ID)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}
	if existing != nil && existing.IsCompleted() {
		if existing.UserID != o.UserID {
			return nil, ierr.NewError("order already finalized for another user").
				WithHintf("Order %s already used coupon %s", o.ID, c.Code).
				Mark(ierr.ErrValidation)
		}
		return &dto.ApplyCouponResponse{
			DiscountAmount:   existing.DiscountAmount,
			CommissionAmount: existing.CommissionAmount,
			FreeShipping:     c.Type == types.CouponTypeFreeShipping,
			UsageRecord:      existing,
			Replayed:         true,
		}, nil
	}

	// A reservation left incomplete by an interrupted apply already passed eligibility
	// and holds its use, so only the discount is recomputed.
	var discount DiscountResult
	if existing == nil {
		uc, err := s.userContext(ctx, c, o, req.AccountType, req.AccountCreatedAt)
		if err != nil {
			return nil, err
		}
		result := s.evaluator.Evaluate(c, o, uc)
		if !result.Eligible {
			s.Logger.Infow("coupon not eligible for order",
				"coupon_id", c.ID,
				"order_id", o.ID,
				"reason", result.Reason,
			)
			return nil, result.Err(c)
		}
		discount = result.Discount
	} else {
		discount = s.applicator.Apply(c, o)
	}

	reservation, err := s.enforcer.Reserve(ctx, c.ID, o.UserID, o.ID)
	if err != nil {
		return nil, err
	}

	commission := s.calculator.Compute(c, o)
	usage := reservation.Usage
	txID := s.Idempotency.OrderCommissionTxID(reservation.Token)

	var recorded bool
	err = s.DB.WithTx(ctx, func(txCtx context.Context) error {
		now := time.Now().UTC()
		recorded, err = s.CouponRepo.RecordUsage(txCtx, usage.ID, discount.Amount, commission, now)
		if err != nil {
			return err
		}
		if !recorded {
			return nil
		}

		err = s.CouponRepo.IncrementStats(txCtx, c.ID, coupon.StatsDelta{
			Applies:          1,
			SuccessfulOrders: 1,
			TotalRevenue:     o.Total,
			TotalDiscount:    discount.Amount,
		})
		if err != nil {
			return err
		}

		if _, err := s.CouponRepo.RefreshCommissionTotal(txCtx, c.ID); err != nil {
			return err
		}

		if commission == 0 {
			return nil
		}
		_, err = s.ledger.Post(txCtx, c.EngineerID, LedgerEntry{
			TransactionID: txID,
			Type:          types.TransactionTypeCommission,
			Amount:        commission,
			OrderID:       o.ID,
			CouponCode:    c.Code,
			ReferenceID:   usage.ID,
			Description:   "commission for order " + o.ID,
		})
		if ierr.IsAlreadyExists(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	usage, err = s.CouponRepo.GetUsageByOrder(ctx, c.ID, o.ID)
	if err != nil {
		return nil, err
	}

	if recorded {
		s.Logger.Infow("applied coupon to order",
			"coupon_id", c.ID,
			"order_id", o.ID,
			"discount_amount", usage.DiscountAmount,
			"commission_amount", usage.CommissionAmount,
			"engineer_id", c.EngineerID,
		)
		s.publishApplied(ctx, c, usage, lo.Ternary(commission > 0, txID, ""))
	}

	return &dto.ApplyCouponResponse{
		DiscountAmount:   usage.DiscountAmount,
		CommissionAmount: usage.CommissionAmount,
		FreeShipping:     discount.FreeShipping,
		UsageRecord:      usage,
		Replayed:         !recorded,
	}, nil
}

func (s *couponService) ListUsageHistory(ctx context.Context, couponID string) (*dto.UsageHistoryResponse, error) {
	c, err := s.CouponRepo.Get(ctx, couponID)
	if err != nil {
		return nil, err
	}

	usages, err := s.CouponRepo.ListUsage(ctx, couponID)
	if err != nil {
		return nil, err
	}

	return &dto.UsageHistoryResponse{
		CouponID:              c.ID,
		CouponCode:            c.Code,
		TotalCommissionEarned: c.TotalCommissionEarned,
		Items:                 usages,
	}, nil
}

// load fetches the coupon and the order snapshot an operation works on
func (s *couponService) load(ctx context.Context, code, orderID string) (*coupon.Coupon, *order.Snapshot, error) {
	c, err := s.getByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}

	o, err := s.OrderRepo.GetOrderSnapshot(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return c, o, nil
}

// getByCode resolves a code through the cache. Only the immutable code to id mapping
// is cached, the coupon itself is always read fresh for its usage counters.
func (s *couponService) getByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	if code == "" {
		return nil, ierr.NewError("coupon code is required").
			WithHint("Coupon code is required").
			Mark(ierr.ErrValidation)
	}

	key := codeCacheKey(ctx, code)
	if id, ok := s.Cache.Get(ctx, key); ok {
		c, err := s.CouponRepo.Get(ctx, id.(string))
		if err == nil {
			return c, nil
		}
		if !ierr.IsNotFound(err) {
			return nil, err
		}
		s.Cache.Delete(ctx, key)
	}

	c, err := s.CouponRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, key, c.ID, 0)
	return c, nil
}

func (s *couponService) userContext(ctx context.Context, c *coupon.Coupon, o *order.Snapshot, accountType string, accountCreatedAt *time.Time) (UserContext, error) {
	usages, err := s.CouponRepo.ListUsage(ctx, c.ID)
	if err != nil {
		return UserContext{}, err
	}

	return UserContext{
		UserID:           o.UserID,
		AccountType:      accountType,
		AccountCreatedAt: accountCreatedAt,
		IsFirstOrder:     o.IsFirstOrder,
		PriorUses:        coupon.CountForUser(usages, o.UserID),
		NewUserThreshold: s.Config.Engine.NewUserThreshold(),
	}, nil
}

func (s *couponService) publishApplied(ctx context.Context, c *coupon.Coupon, usage *coupon.UsageRecord, txID string) {
	event, err := types.NewLedgerEvent(types.EventCouponApplied, types.GetTenantID(ctx), types.CouponAppliedPayload{
		CouponID:         c.ID,
		CouponCode:       c.Code,
		OrderID:          usage.OrderID,
		UserID:           usage.UserID,
		UsageID:          usage.ID,
		DiscountAmount:   usage.DiscountAmount,
		CommissionAmount: usage.CommissionAmount,
		EngineerID:       c.EngineerID,
		TransactionID:    txID,
	})
	if err == nil {
		err = s.EventPublisher.Publish(ctx, event)
	}
	if err != nil {
		s.Logger.Errorw("failed to publish coupon applied event",
			"coupon_id", c.ID,
			"order_id", usage.OrderID,
			"error", err,
		)
	}
}

func codeCacheKey(ctx context.Context, code string) string {
	return cache.GenerateKey(cache.PrefixCouponByCode, types.GetTenantID(ctx), code)
}
