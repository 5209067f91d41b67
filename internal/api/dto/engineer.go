package dto

import (
	"time"

	"github.com/flexprice/couponengine/internal/domain/engineer"
	"github.com/flexprice/couponengine/internal/types"
)

// EngineerWalletResponse represents an engineer wallet with its ledger
type EngineerWalletResponse struct {
	EngineerID    string                         `json:"engineer_id"`
	WalletBalance int64                          `json:"wallet_balance"`
	Transactions  []*EngineerTransactionResponse `json:"transactions"`
	UpdatedAt     *time.Time                     `json:"updated_at,omitempty"`
}

// EngineerTransactionResponse represents one ledger entry in API responses
type EngineerTransactionResponse struct {
	TransactionID string                `json:"transaction_id"`
	Type          types.TransactionType `json:"type"`
	Amount        int64                 `json:"amount"`
	BalanceAfter  int64                 `json:"balance_after"`
	OrderID       string                `json:"order_id,omitempty"`
	CouponCode    string                `json:"coupon_code,omitempty"`
	Description   string                `json:"description"`
	CreatedAt     time.Time             `json:"created_at"`
}

func FromEngineerTransaction(t *engineer.Transaction) *EngineerTransactionResponse {
	return &EngineerTransactionResponse{
		TransactionID: t.ID,
		Type:          t.Type,
		Amount:        t.Amount,
		BalanceAfter:  t.BalanceAfter,
		OrderID:       t.OrderID,
		CouponCode:    t.CouponCode,
		Description:   t.Description,
		CreatedAt:     t.CreatedAt,
	}
}

// RebuildBalanceResponse reports the projection before and after a rebuild
type RebuildBalanceResponse struct {
	EngineerID      string `json:"engineer_id"`
	PreviousBalance int64  `json:"previous_balance"`
	WalletBalance   int64  `json:"wallet_balance"`
}
