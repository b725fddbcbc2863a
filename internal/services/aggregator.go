package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"plata/internal/core"
)

// MonthRateResolver supplies the display rate for a month: the closing rate
// of its last calendar day, or the live quote for a still-open month.
type MonthRateResolver interface {
	ResolveMonth(ctx context.Context, year, month int) decimal.Decimal
}

// Aggregator folds transactions into monthly and yearly summaries and into
// category and payment-method breakdowns. It holds no state beyond the rate
// resolver: every method is a pure fold over the snapshot it is given.
type Aggregator struct {
	rates MonthRateResolver
}

func NewAggregator(rates MonthRateResolver) *Aggregator {
	return &Aggregator{rates: rates}
}

// MonthlySummary sums the transactions of (year, month) per type. Each
// transaction contributes its own effective ARS and USD values derived from
// its stored rate; the month's resolved rate is reported for display only
// and never used to re-derive totals. Transactions outside the month are
// ignored, so callers may pass a whole-year snapshot.
func (a *Aggregator) MonthlySummary(ctx context.Context, txs []core.Transaction, year, month int) core.MonthlySummary {
	s := core.MonthlySummary{
		Year:         year,
		Month:        month,
		ExchangeRate: a.rates.ResolveMonth(ctx, year, month),
	}
	for _, tx := range txs {
		if !tx.Date.SameMonth(year, month) {
			continue
		}
		add := core.Totals{ARS: tx.EffectiveARS(), USD: tx.EffectiveUSD(), Count: 1}
		switch tx.Type {
		case core.Income:
			s.Income = s.Income.Add(add)
		case core.Expense:
			s.Expense = s.Expense.Add(add)
		}
	}
	s.Balance = s.Income.Sub(s.Expense)
	return s
}

// YearlySummary is the element-wise fold of the twelve monthly summaries.
// Months are computed concurrently (the per-month rate lookups are the only
// slow part) and folded in calendar order, so the result is deterministic
// and identical to summarizing the year's transactions directly.
func (a *Aggregator) YearlySummary(ctx context.Context, txs []core.Transaction, year int) core.YearlySummary {
	months := make([]core.MonthlySummary, 12)
	g, gctx := errgroup.WithContext(ctx)
	for m := 1; m <= 12; m++ {
		g.Go(func() error {
			months[m-1] = a.MonthlySummary(gctx, txs, year, m)
			return nil
		})
	}
	// Workers never return errors; rate failures degrade to fallbacks.
	_ = g.Wait()

	y := core.YearlySummary{Year: year, Months: months}
	for _, ms := range months {
		y.Income = y.Income.Add(ms.Income)
		y.Expense = y.Expense.Add(ms.Expense)
	}
	y.Balance = y.Income.Sub(y.Expense)
	return y
}

// CategoryBreakdown groups the given type's transactions by category,
// summing effective ARS. Every category of that type from the master list
// appears, at zero when nothing matched. Ordering is deterministic: total
// descending, then name ascending.
func (a *Aggregator) CategoryBreakdown(txs []core.Transaction, categories []core.Category, typ core.TransactionType) []core.CategoryTotal {
	sums := make(map[uuid.UUID]*core.CategoryTotal)
	var rows []*core.CategoryTotal

	for _, c := range categories {
		if c.Type != typ {
			continue
		}
		row := &core.CategoryTotal{CategoryID: c.ID, Name: c.Name, AmountARS: decimal.Zero}
		sums[c.ID] = row
		rows = append(rows, row)
	}

	for _, tx := range txs {
		if tx.Type != typ {
			continue
		}
		row, ok := sums[tx.CategoryID]
		if !ok {
			// Category missing from the master list (stale reference data);
			// still counted so totals stay consistent with the summaries.
			row = &core.CategoryTotal{CategoryID: tx.CategoryID, AmountARS: decimal.Zero}
			sums[tx.CategoryID] = row
			rows = append(rows, row)
		}
		row.AmountARS = row.AmountARS.Add(tx.EffectiveARS())
		row.Count++
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].AmountARS.Equal(rows[j].AmountARS) {
			return rows[i].AmountARS.GreaterThan(rows[j].AmountARS)
		}
		return rows[i].Name < rows[j].Name
	})

	out := make([]core.CategoryTotal, len(rows))
	for i, row := range rows {
		out[i] = *row
	}
	return out
}

// MethodBreakdown groups the given type's transactions by payment method,
// summing effective ARS, ordered total descending then method ascending.
func (a *Aggregator) MethodBreakdown(txs []core.Transaction, typ core.TransactionType) []core.MethodTotal {
	methods := []core.PaymentMethod{core.Cash, core.MercadoPago, core.BankAccount, core.Crypto}
	sums := make(map[core.PaymentMethod]*core.MethodTotal, len(methods))
	rows := make([]*core.MethodTotal, 0, len(methods))
	for _, m := range methods {
		row := &core.MethodTotal{Method: m, AmountARS: decimal.Zero}
		sums[m] = row
		rows = append(rows, row)
	}

	for _, tx := range txs {
		if tx.Type != typ {
			continue
		}
		if row, ok := sums[tx.PaymentMethod]; ok {
			row.AmountARS = row.AmountARS.Add(tx.EffectiveARS())
			row.Count++
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].AmountARS.Equal(rows[j].AmountARS) {
			return rows[i].AmountARS.GreaterThan(rows[j].AmountARS)
		}
		return rows[i].Method < rows[j].Method
	})

	out := make([]core.MethodTotal, len(rows))
	for i, row := range rows {
		out[i] = *row
	}
	return out
}
