package engineer

import (
	"time"

	"github.com/flexprice/couponengine/internal/types"
)

// Profile is the wallet projection of an engineer. WalletBalance is derived
// from the transaction log and can always be rebuilt from it.
type Profile struct {
	TenantID      string    `db:"tenant_id" json:"tenant_id"`
	UserID        string    `db:"user_id" json:"user_id"`
	WalletBalance int64     `db:"wallet_balance" json:"wallet_balance"`
	Version       int64     `db:"version" json:"version"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is an immutable entry of an engineer wallet ledger
type Transaction struct {
	ID           string                `db:"id" json:"transaction_id"`
	TenantID     string                `db:"tenant_id" json:"tenant_id"`
	EngineerID   string                `db:"engineer_id" json:"engineer_id"`
	Sequence     int64                 `db:"sequence" json:"sequence"`
	Type         types.TransactionType `db:"transaction_type" json:"type"`
	Amount       int64                 `db:"amount" json:"amount"`
	BalanceAfter int64                 `db:"balance_after" json:"balance_after"`
	OrderID      string                `db:"order_id" json:"order_id,omitempty"`
	CouponCode   string                `db:"coupon_code" json:"coupon_code,omitempty"`
	ReferenceID  string                `db:"reference_id" json:"reference_id,omitempty"`
	Description  string                `db:"description" json:"description"`
	CreatedAt    time.Time             `db:"created_at" json:"created_at"`
}

// ApplyToBalance returns the balance after adding amount, floored at zero
func ApplyToBalance(balance, amount int64) int64 {
	next := balance + amount
	if next < 0 {
		return 0
	}
	return next
}

// ReplayBalance folds the ledger in sequence order. The zero floor applies after
// every transaction, so a debit on an empty wallet is dropped rather than owed.
func ReplayBalance(txns []*Transaction) int64 {
	var balance int64
	for _, t := range txns {
		balance = ApplyToBalance(balance, t.Amount)
	}
	return balance
}
