package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RoundMinor rounds a decimal amount of minor units half-up to a whole minor unit.
// decimal.Round rounds half away from zero which equals half-up for non-negative values.
func RoundMinor(amount decimal.Decimal) int64 {
	return amount.Round(0).IntPart()
}

// PercentOf returns pct percent of amount in minor units, rounded half-up
func PercentOf(amount int64, pct decimal.Decimal) int64 {
	if amount == 0 || pct.IsZero() {
		return 0
	}
	return RoundMinor(decimal.NewFromInt(amount).Mul(pct).Div(hundred))
}

// IsMatchingCurrency compares two ISO currency codes case-insensitively
func IsMatchingCurrency(a, b string) bool {
	return strings.EqualFold(a, b)
}

// AbsInt64 returns |v|
func AbsInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
