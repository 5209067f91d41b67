package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flexprice/couponengine/internal/domain/coupon"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/samber/lo"
)

// InMemoryCouponStore implements coupon.Repository. Every write that touches
// usage counters runs under one mutex so reservations are atomic.
type InMemoryCouponStore struct {
	*InMemoryStore[*coupon.Coupon]

	mu        sync.Mutex
	usages    map[string]*coupon.UsageRecord
	userUsage map[string]int64
}

var _ coupon.Repository = (*InMemoryCouponStore)(nil)

// NewInMemoryCouponStore creates a new in-memory coupon store
func NewInMemoryCouponStore() *InMemoryCouponStore {
	return &InMemoryCouponStore{
		InMemoryStore: NewInMemoryStore[*coupon.Coupon](),
		usages:        make(map[string]*coupon.UsageRecord),
		userUsage:     make(map[string]int64),
	}
}

// Helper to copy coupon
func copyCoupon(c *coupon.Coupon) *coupon.Coupon {
	if c == nil {
		return nil
	}
	copied := *c
	return &copied
}

func copyUsage(u *coupon.UsageRecord) *coupon.UsageRecord {
	if u == nil {
		return nil
	}
	copied := *u
	return &copied
}

func couponNotFound(id string) error {
	return ierr.NewError("coupon not found").
		WithHintf("Coupon %s not found", id).
		Mark(ierr.ErrCouponNotFound)
}

func (s *InMemoryCouponStore) Create(ctx context.Context, c *coupon.Coupon) error {
	if c == nil {
		return ierr.NewError("coupon cannot be nil").
			WithHint("Coupon cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, _ := s.InMemoryStore.Count(ctx, c, func(ctx context.Context, item *coupon.Coupon, _ interface{}) bool {
		return item.TenantID == c.TenantID && item.Code == c.Code
	})
	if exists > 0 {
		return ierr.NewError("coupon code already exists").
			WithHintf("A coupon with code %s already exists", c.Code).
			Mark(ierr.ErrAlreadyExists)
	}

	if err := s.InMemoryStore.Create(ctx, c.ID, copyCoupon(c)); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create coupon").
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryCouponStore) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	c, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, c.TenantID) {
		return nil, couponNotFound(id)
	}
	return copyCoupon(c), nil
}

func (s *InMemoryCouponStore) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	coupons, err := s.InMemoryStore.List(ctx, code, func(ctx context.Context, c *coupon.Coupon, _ interface{}) bool {
		return CheckTenantFilter(ctx, c.TenantID) && c.Code == code
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(coupons) == 0 {
		return nil, couponNotFound(code)
	}
	return copyCoupon(coupons[0]), nil
}

func (s *InMemoryCouponStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	c.DeletedAt = &now
	c.UpdatedAt = now
	return s.InMemoryStore.Update(ctx, id, c)
}

func (s *InMemoryCouponStore) ListWithCommission(ctx context.Context, filter *coupon.ListFilter) ([]*coupon.Coupon, error) {
	page := &Page{}
	if filter != nil {
		page.Limit = filter.Limit
		page.Offset = filter.Offset
	}

	coupons, err := s.InMemoryStore.List(ctx, page, func(_ context.Context, c *coupon.Coupon, _ interface{}) bool {
		return !c.IsDeleted() && c.HasCommission() && c.CurrentUses > 0
	}, func(a, b *coupon.Coupon) bool {
		return a.ID < b.ID
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(coupons, func(c *coupon.Coupon, _ int) *coupon.Coupon { return copyCoupon(c) }), nil
}

func (s *InMemoryCouponStore) IncrementStats(ctx context.Context, id string, delta coupon.StatsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	c.Views += delta.Views
	c.Applies += delta.Applies
	c.SuccessfulOrders += delta.SuccessfulOrders
	c.FailedAttempts += delta.FailedAttempts
	c.TotalRevenue += delta.TotalRevenue
	c.TotalDiscount += delta.TotalDiscount
	return s.InMemoryStore.Update(ctx, id, c)
}

func (s *InMemoryCouponStore) TryReserveUsage(ctx context.Context, reservation *coupon.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.Get(ctx, reservation.CouponID)
	if err != nil {
		return err
	}

	for _, u := range s.usages {
		if u.CouponID == reservation.CouponID && u.OrderID == reservation.OrderID {
			return ierr.NewError("order already reserved").
				WithHintf("Order %s already holds a reservation of coupon %s", reservation.OrderID, c.Code).
				Mark(ierr.ErrReservationRace)
		}
	}

	userKey := reservation.CouponID + "|" + reservation.UserID
	if limit := c.PerUserLimit(); limit != nil && s.userUsage[userKey] >= *limit {
		return ierr.NewError("per user coupon limit reached").
			WithHintf("Coupon %s was already used the maximum number of times by this user", c.Code).
			WithReportableDetails(map[string]any{"coupon_id": c.ID, "user_id": reservation.UserID}).
			Mark(ierr.ErrCouponUserLimitReached)
	}

	if c.IsDeleted() || c.Status != types.CouponStatusActive || (c.MaxTotalUses != nil && c.CurrentUses >= *c.MaxTotalUses) {
		return ierr.NewError("coupon usage limit reached").
			WithHintf("Coupon %s has no uses left", c.Code).
			WithReportableDetails(map[string]any{"coupon_id": c.ID}).
			Mark(ierr.ErrCouponExhausted)
	}

	c.CurrentUses++
	if c.MaxTotalUses != nil && c.CurrentUses >= *c.MaxTotalUses {
		c.Status = types.CouponStatusExhausted
	}
	if err := s.InMemoryStore.Update(ctx, c.ID, c); err != nil {
		return err
	}

	s.userUsage[userKey]++
	reservation.CouponCode = c.Code
	s.usages[reservation.ID] = copyUsage(reservation)
	return nil
}

func (s *InMemoryCouponStore) GetUsageByOrder(ctx context.Context, couponID, orderID string) (*coupon.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.usages {
		if u.CouponID == couponID && u.OrderID == orderID && CheckTenantFilter(ctx, u.TenantID) {
			return copyUsage(u), nil
		}
	}
	return nil, ierr.NewError("usage not found").
		WithHintf("Order %s has no reservation of the coupon", orderID).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryCouponStore) ListUsage(ctx context.Context, couponID string) ([]*coupon.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*coupon.UsageRecord, 0)
	for _, u := range s.usages {
		if u.CouponID == couponID && CheckTenantFilter(ctx, u.TenantID) {
			result = append(result, copyUsage(u))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UsedAt.Equal(result[j].UsedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].UsedAt.Before(result[j].UsedAt)
	})
	return result, nil
}

func (s *InMemoryCouponStore) RecordUsage(ctx context.Context, usageID string, discountAmount, commissionAmount int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usages[usageID]
	if !ok {
		return false, ierr.NewError("usage not found").Mark(ierr.ErrNotFound)
	}
	if u.CompletedAt != nil {
		return false, nil
	}
	u.DiscountAmount = discountAmount
	u.CommissionAmount = commissionAmount
	u.CompletedAt = &at
	u.UpdatedAt = at
	return true, nil
}

func (s *InMemoryCouponStore) UpdateUsageCommission(ctx context.Context, usageID string, commissionAmount int64, runID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usages[usageID]
	if !ok {
		return ierr.NewError("usage not found").Mark(ierr.ErrNotFound)
	}
	u.CommissionAmount = commissionAmount
	u.ReconciledRunID = &runID
	u.ReconciledAt = &at
	u.UpdatedAt = at
	return nil
}

func (s *InMemoryCouponStore) RefreshCommissionTotal(ctx context.Context, couponID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.Get(ctx, couponID)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, u := range s.usages {
		if u.CouponID == couponID {
			total += u.CommissionAmount
		}
	}
	c.TotalCommissionEarned = total
	return total, s.InMemoryStore.Update(ctx, couponID, c)
}

// SetUsageCommission overwrites the stored commission of a usage entry, used to
// seed historical data computed by the old formula
func (s *InMemoryCouponStore) SetUsageCommission(usageID string, commissionAmount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.usages[usageID]; ok {
		u.CommissionAmount = commissionAmount
	}
}

// Clear clears the coupon store
func (s *InMemoryCouponStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InMemoryStore.Clear()
	s.usages = make(map[string]*coupon.UsageRecord)
	s.userUsage = make(map[string]int64)
}
