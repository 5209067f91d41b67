package types

import (
	"encoding/json"
	"time"
)

// PublishDestination determines where ledger events are published
type PublishDestination string

const (
	PublishToMemory PublishDestination = "memory"
	PublishToKafka  PublishDestination = "kafka"
	PublishToNone   PublishDestination = "none"
)

// EventName identifies a ledger event
type EventName string

const (
	EventCouponApplied      EventName = "coupon.applied"
	EventCommissionAdjusted EventName = "commission.adjusted"
)

// LedgerEvent is the envelope of every event published by the engine
type LedgerEvent struct {
	ID        string          `json:"id"`
	EventName EventName       `json:"event_name"`
	TenantID  string          `json:"tenant_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewLedgerEvent marshals payload into a new event envelope
func NewLedgerEvent(name EventName, tenantID string, payload interface{}) (*LedgerEvent, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &LedgerEvent{
		ID:        GenerateUUIDWithPrefix(UUID_PREFIX_EVENT),
		EventName: name,
		TenantID:  tenantID,
		Timestamp: time.Now().UTC(),
		Payload:   b,
	}, nil
}

// CouponAppliedPayload is published after a coupon use is committed
type CouponAppliedPayload struct {
	CouponID         string `json:"coupon_id"`
	CouponCode       string `json:"coupon_code"`
	OrderID          string `json:"order_id"`
	UserID           string `json:"user_id"`
	UsageID          string `json:"usage_id"`
	DiscountAmount   int64  `json:"discount_amount"`
	CommissionAmount int64  `json:"commission_amount"`
	EngineerID       string `json:"engineer_id,omitempty"`
	TransactionID    string `json:"transaction_id,omitempty"`
}

// CommissionAdjustedPayload is published after reconciliation posts an engineer delta
type CommissionAdjustedPayload struct {
	RunID         string `json:"run_id"`
	EngineerID    string `json:"engineer_id"`
	TransactionID string `json:"transaction_id"`
	Delta         int64  `json:"delta"`
	Entries       int    `json:"entries"`
	WalletBalance int64  `json:"wallet_balance"`
}
