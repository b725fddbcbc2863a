// Package core provides the ledger domain model: transactions, recurring
// templates, summaries and monetary parsing helpers.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-entered monetary string to a decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rejects signs: amounts are always positive, direction comes from the
// transaction type. Returns ErrInvalidAmount-style sentinel errors from the
// domain for invalid formats or non-positive values.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrNoAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrNegativeAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrNoAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrNoAmount
	}
	return d, nil
}

// ParseRate parses an ARS-per-USD exchange rate string. Rates must be
// strictly positive.
func ParseRate(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, ErrInvalidRate
	}
	return d, nil
}
