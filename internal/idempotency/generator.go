package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Scope represents the scope of idempotency
type Scope string

const (
	// ScopeCouponReservation keys one reservation per (coupon, order)
	ScopeCouponReservation Scope = "cpn_rsv"

	// ScopeOrderCommission keys the ledger transaction posted for a reservation
	ScopeOrderCommission Scope = "etx_ord"

	// ScopeReconciliationPost keys the ledger transaction posted per (run, engineer)
	ScopeReconciliationPost Scope = "etx_rcn"
)

// Generator generates idempotency keys
type Generator struct{}

// NewGenerator creates a new idempotency key generator
func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateKey generates an idempotency key from a scope and parameters
func (g *Generator) GenerateKey(scope Scope, params map[string]interface{}) string {
	// Sort params for consistent hashing
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(scope))
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(":%s=%v", k, params[k]))
	}

	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s_%s", scope, hex.EncodeToString(hash[:16]))
}

// ValidateKey validates if an idempotency key matches expected parameters
func (g *Generator) ValidateKey(scope Scope, params map[string]interface{}, key string) bool {
	generated := g.GenerateKey(scope, params)
	return generated == key
}

// ReservationToken returns the reservation token of a coupon use for an order
func (g *Generator) ReservationToken(couponID, orderID string) string {
	return g.GenerateKey(ScopeCouponReservation, map[string]interface{}{
		"coupon_id": couponID,
		"order_id":  orderID,
	})
}

// OrderCommissionTxID returns the ledger transaction id for the commission of a reservation
func (g *Generator) OrderCommissionTxID(reservationToken string) string {
	return g.GenerateKey(ScopeOrderCommission, map[string]interface{}{
		"reservation_token": reservationToken,
	})
}

// ReconciliationTxID returns the ledger transaction id of an engineer adjustment in a run
func (g *Generator) ReconciliationTxID(runID, engineerID string) string {
	return g.GenerateKey(ScopeReconciliationPost, map[string]interface{}{
		"run_id":      runID,
		"engineer_id": engineerID,
	})
}
