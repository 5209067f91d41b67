package types

import (
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/samber/lo"
)

// TransactionType is the kind of an engineer wallet ledger entry
type TransactionType string

const (
	TransactionTypeCommission TransactionType = "commission"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

func (t TransactionType) Validate() error {
	allowedValues := []string{
		string(TransactionTypeCommission),
		string(TransactionTypeRefund),
		string(TransactionTypeAdjustment),
	}
	if !lo.Contains(allowedValues, string(t)) {
		return ierr.NewError("invalid transaction type").
			WithHint("Invalid transaction type").
			WithReportableDetails(map[string]any{
				"allowed": allowedValues,
				"type":    t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TransactionTypeForDelta picks commission for a positive delta and refund otherwise
func TransactionTypeForDelta(delta int64) TransactionType {
	if delta >= 0 {
		return TransactionTypeCommission
	}
	return TransactionTypeRefund
}
