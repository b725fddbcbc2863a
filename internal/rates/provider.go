// Package rates resolves the ARS/USD exchange rate for a given date, with a
// deterministic fallback chain so callers always receive a usable rate.
package rates

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"plata/internal/core"
)

// ErrRateUnavailable signals that the quote provider could not produce a
// rate. The resolver recovers from it locally; it never escapes Resolve.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Provider supplies ARS-per-USD quotes.
type Provider interface {
	// Current returns today's live rate.
	Current(ctx context.Context) (decimal.Decimal, error)
	// ForDate returns the closing rate for a past calendar date.
	ForDate(ctx context.Context, date core.Date) (decimal.Decimal, error)
}
