package rates

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"plata/internal/cache"
	"plata/internal/core"
)

// DefaultFallbackRate is the rate of last resort when both the historical
// and the live endpoints fail. Deliberately a round, obviously-stale number.
var DefaultFallbackRate = decimal.NewFromInt(1000)

// Clock supplies "now"; injected so tests can pin the wall clock.
type Clock func() time.Time

// Resolver maps a date to the applicable ARS/USD rate:
//
//   - today or future: the live quote
//   - strictly past: the closing rate of the last calendar day of that
//     date's month
//
// Failures degrade along historical -> live -> DefaultFallbackRate, so
// Resolve always returns a positive rate and never an error. Resolved
// month closings are cached per (year, month) so an aggregation run hits
// the provider once per distinct month.
type Resolver struct {
	provider Provider
	now      Clock
	fallback decimal.Decimal
	cache    *cache.LRUCache[decimal.Decimal]
}

// NewResolver builds a resolver. A nil clock defaults to time.Now; a
// non-positive fallback defaults to DefaultFallbackRate.
func NewResolver(provider Provider, now Clock, fallback decimal.Decimal) *Resolver {
	if now == nil {
		now = time.Now
	}
	if !fallback.IsPositive() {
		fallback = DefaultFallbackRate
	}
	return &Resolver{
		provider: provider,
		now:      now,
		fallback: fallback,
		cache:    cache.NewLRUCache[decimal.Decimal](128, 30*time.Minute),
	}
}

// Resolve returns the applicable rate for the given date. It never fails.
func (r *Resolver) Resolve(ctx context.Context, date core.Date) decimal.Decimal {
	t := r.now().UTC()
	today := core.NewDate(t.Year(), int(t.Month()), t.Day())
	if !date.Time.Before(today.Time) {
		return r.current(ctx)
	}

	key := fmt.Sprintf("%04d-%02d", date.Year(), date.Month())
	if rate, ok := r.cache.Get(key); ok {
		return rate
	}

	closing := core.MonthEnd(date.Year(), date.Month())
	rate, err := r.provider.ForDate(ctx, closing)
	if err != nil {
		slog.WarnContext(ctx, "Historical rate lookup failed, falling back to live quote",
			"month", key,
			"error", err)
		// Not cached: a transient failure should not pin the live quote
		// to this month for the cache TTL.
		return r.current(ctx)
	}

	r.cache.Set(key, rate)
	return rate
}

// ResolveMonth returns the display rate for (year, month): the closing rate
// of the month's last day, or the live quote when the month is still open.
func (r *Resolver) ResolveMonth(ctx context.Context, year, month int) decimal.Decimal {
	return r.Resolve(ctx, core.MonthEnd(year, month))
}

func (r *Resolver) current(ctx context.Context) decimal.Decimal {
	rate, err := r.provider.Current(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Live rate lookup failed, using fixed fallback",
			"fallback", r.fallback.String(),
			"error", err)
		return r.fallback
	}
	return rate
}
