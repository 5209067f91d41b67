package service

import (
	"sort"

	"github.com/flexprice/couponengine/internal/domain/coupon"
	"github.com/flexprice/couponengine/internal/domain/order"
	"github.com/flexprice/couponengine/internal/types"
	"github.com/samber/lo"
)

// DiscountResult is the outcome of applying a coupon to an order snapshot
type DiscountResult struct {
	// Amount is the discount in minor units
	Amount             int64    `json:"amount"`
	AppliesToLineItems []string `json:"applies_to_line_items"`
	CappedByMax        bool     `json:"capped_by_max"`
	FreeShipping       bool     `json:"free_shipping"`
	// ScopeSubtotal is the value of the order the coupon applies to
	ScopeSubtotal   int64 `json:"scope_subtotal"`
	DiscountedUnits int64 `json:"discounted_units,omitempty"`
}

// HasScope reports whether anything in the order matched the coupon scope
func (r DiscountResult) HasScope() bool {
	return r.ScopeSubtotal > 0
}

// DiscountApplicator computes discounts. Implementations are pure.
type DiscountApplicator interface {
	Apply(c *coupon.Coupon, o *order.Snapshot) DiscountResult
}

type discountApplicator struct{}

// NewDiscountApplicator returns the default DiscountApplicator
func NewDiscountApplicator() DiscountApplicator {
	return &discountApplicator{}
}

func (a *discountApplicator) Apply(c *coupon.Coupon, o *order.Snapshot) DiscountResult {
	scope := resolveScope(c, o)
	result := DiscountResult{
		ScopeSubtotal:      scope.subtotal,
		AppliesToLineItems: scope.productIDs(),
	}
	if !result.HasScope() {
		return result
	}

	switch c.Type {
	case types.CouponTypePercentage:
		result.Amount = types.PercentOf(scope.subtotal, c.PercentageOff())
		capAtMax(c, &result)
	case types.CouponTypeFixedAmount:
		result.Amount = min(c.DiscountAmount, scope.subtotal)
	case types.CouponTypeFreeShipping:
		result.FreeShipping = true
		result.Amount = max(o.Shipping, 0)
		return result
	case types.CouponTypeBuyXGetY:
		result.DiscountedUnits, result.Amount = buyXGetY(c.BuyQuantity, c.GetQuantity, scope.items)
	case types.CouponTypeFirstOrder:
		if c.PercentageOff().IsPositive() {
			result.Amount = types.PercentOf(scope.subtotal, c.PercentageOff())
			capAtMax(c, &result)
		} else {
			result.Amount = min(c.DiscountAmount, scope.subtotal)
		}
	}

	return result
}

// capAtMax applies max_discount_amount, which only bounds percentage discounts
func capAtMax(c *coupon.Coupon, result *DiscountResult) {
	if c.MaxDiscountAmount != nil && result.Amount > *c.MaxDiscountAmount {
		result.Amount = *c.MaxDiscountAmount
		result.CappedByMax = true
	}
}

// buyXGetY discounts getQty units for every full set of buyQty matching units,
// taking the cheapest units first. At least one set of buyQty units stays paid
// and no more units are free than are paid for.
func buyXGetY(buyQty, getQty int64, items []order.LineItem) (units int64, amount int64) {
	if buyQty <= 0 || getQty <= 0 {
		return 0, 0
	}

	matchingQty := lo.SumBy(items, func(li order.LineItem) int64 { return li.Quantity })
	eligibleSets := matchingQty / buyQty
	units = max(min(eligibleSets*getQty, matchingQty-buyQty, matchingQty/2), 0)

	sorted := make([]order.LineItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].UnitPrice < sorted[j].UnitPrice })

	remaining := units
	for _, li := range sorted {
		if remaining == 0 {
			break
		}
		take := min(li.Quantity, remaining)
		amount += take * li.UnitPrice
		remaining -= take
	}
	return units, amount
}

type couponScope struct {
	items    []order.LineItem
	subtotal int64
}

func (s couponScope) productIDs() []string {
	return lo.Uniq(lo.Map(s.items, func(li order.LineItem, _ int) string { return li.ProductID }))
}

func resolveScope(c *coupon.Coupon, o *order.Snapshot) couponScope {
	eligible := lo.Filter(o.LineItems, func(li order.LineItem, _ int) bool {
		return li.Quantity > 0 && !isExcluded(c, li)
	})

	switch c.AppliesTo {
	case types.CouponScopeSpecificProducts:
		return sumScope(lo.Filter(eligible, func(li order.LineItem, _ int) bool {
			return c.ProductIDs.Contains(li.ProductID)
		}))
	case types.CouponScopeSpecificCategories:
		return sumScope(lo.Filter(eligible, func(li order.LineItem, _ int) bool {
			return c.CategoryIDs.Contains(li.CategoryID)
		}))
	case types.CouponScopeSpecificBrands:
		return sumScope(lo.Filter(eligible, func(li order.LineItem, _ int) bool {
			return c.BrandIDs.Contains(li.BrandID)
		}))
	case types.CouponScopeCheapestItem, types.CouponScopeMostExpensiveItem:
		candidates := lo.Filter(eligible, func(li order.LineItem, _ int) bool {
			return matchesTargets(c, li)
		})
		if len(candidates) == 0 {
			return couponScope{}
		}
		pick := candidates[0]
		for _, li := range candidates[1:] {
			if c.AppliesTo == types.CouponScopeCheapestItem && li.UnitPrice < pick.UnitPrice {
				pick = li
			}
			if c.AppliesTo == types.CouponScopeMostExpensiveItem && li.UnitPrice > pick.UnitPrice {
				pick = li
			}
		}
		if c.Type == types.CouponTypeBuyXGetY {
			return couponScope{items: []order.LineItem{pick}, subtotal: pick.Amount()}
		}
		single := pick
		single.Quantity = 1
		return couponScope{items: []order.LineItem{single}, subtotal: pick.UnitPrice}
	}

	// entire order: the order subtotal less the excluded lines
	if len(o.LineItems) == 0 {
		return couponScope{subtotal: max(o.Subtotal, 0)}
	}
	excluded := lo.SumBy(o.LineItems, func(li order.LineItem) int64 {
		if li.Quantity > 0 && isExcluded(c, li) {
			return li.Amount()
		}
		return 0
	})
	return couponScope{items: eligible, subtotal: max(o.Subtotal-excluded, 0)}
}

func sumScope(items []order.LineItem) couponScope {
	return couponScope{
		items:    items,
		subtotal: lo.SumBy(items, func(li order.LineItem) int64 { return li.Amount() }),
	}
}

func isExcluded(c *coupon.Coupon, li order.LineItem) bool {
	return (c.ExcludeSaleItems && li.OnSale) ||
		c.ExcludedProductIDs.Contains(li.ProductID) ||
		(li.CategoryID != "" && c.ExcludedCategoryIDs.Contains(li.CategoryID)) ||
		(li.BrandID != "" && c.ExcludedBrandIDs.Contains(li.BrandID))
}

// matchesTargets restricts item level scopes to the configured targets, if any
func matchesTargets(c *coupon.Coupon, li order.LineItem) bool {
	if len(c.ProductIDs) == 0 && len(c.CategoryIDs) == 0 && len(c.BrandIDs) == 0 {
		return true
	}
	return c.ProductIDs.Contains(li.ProductID) ||
		c.CategoryIDs.Contains(li.CategoryID) ||
		c.BrandIDs.Contains(li.BrandID)
}
