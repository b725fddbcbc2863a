package core

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Totals carries a sum in both currencies plus the number of transactions
// that contributed to it. Each transaction's own amount/rate triple is the
// unit of truth; totals are plain sums and are never cross-derived from one
// another.
type Totals struct {
	ARS   decimal.Decimal
	USD   decimal.Decimal
	Count int
}

// Add returns the element-wise sum of two totals.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		ARS:   t.ARS.Add(o.ARS),
		USD:   t.USD.Add(o.USD),
		Count: t.Count + o.Count,
	}
}

// Sub returns the element-wise difference of two totals. Count carries the
// combined number of contributing transactions.
func (t Totals) Sub(o Totals) Totals {
	return Totals{
		ARS:   t.ARS.Sub(o.ARS),
		USD:   t.USD.Sub(o.USD),
		Count: t.Count + o.Count,
	}
}

// MonthlySummary is computed from the month's transactions and never stored.
// ExchangeRate is the month's closing rate, reported for display only.
type MonthlySummary struct {
	Year         int
	Month        int // 1-12
	ExchangeRate decimal.Decimal
	Income       Totals
	Expense      Totals
	Balance      Totals
}

// YearlySummary is the element-wise sum of the twelve monthly summaries.
type YearlySummary struct {
	Year    int
	Months  []MonthlySummary
	Income  Totals
	Expense Totals
	Balance Totals
}

// CategoryTotal is one row of a per-category breakdown, in ARS.
type CategoryTotal struct {
	CategoryID uuid.UUID
	Name       string
	AmountARS  decimal.Decimal
	Count      int
}

// MethodTotal is one row of a per-payment-method breakdown, in ARS.
type MethodTotal struct {
	Method    PaymentMethod
	AmountARS decimal.Decimal
	Count     int
}
