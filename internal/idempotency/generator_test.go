package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKey(t *testing.T) {
	g := NewGenerator()

	a := g.GenerateKey(ScopeCouponReservation, map[string]interface{}{"coupon_id": "cpn_1", "order_id": "ord_1"})
	b := g.GenerateKey(ScopeCouponReservation, map[string]interface{}{"order_id": "ord_1", "coupon_id": "cpn_1"})
	assert.Equal(t, a, b, "param order must not change the key")
	assert.True(t, strings.HasPrefix(a, string(ScopeCouponReservation)+"_"))

	c := g.GenerateKey(ScopeOrderCommission, map[string]interface{}{"coupon_id": "cpn_1", "order_id": "ord_1"})
	assert.NotEqual(t, a, c, "scope is part of the key")

	assert.True(t, g.ValidateKey(ScopeCouponReservation, map[string]interface{}{"coupon_id": "cpn_1", "order_id": "ord_1"}, a))
}

func TestDerivedKeys(t *testing.T) {
	g := NewGenerator()

	assert.Equal(t, g.ReservationToken("cpn_1", "ord_1"), g.ReservationToken("cpn_1", "ord_1"))
	assert.NotEqual(t, g.ReservationToken("cpn_1", "ord_1"), g.ReservationToken("cpn_1", "ord_2"))
	assert.NotEqual(t, g.ReconciliationTxID("run_1", "eng_1"), g.ReconciliationTxID("run_2", "eng_1"))
	assert.Equal(t, g.OrderCommissionTxID("tok"), g.OrderCommissionTxID("tok"))
}
