// Package services holds the ledger engine: the currency reconciler, the
// recurring-template expander and the summary aggregator.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"plata/internal/amqp"
	"plata/internal/core"
)

// ErrAmbiguousRow marks a legacy dual-amount row that cannot be repaired
// because its exchange rate is missing or non-positive. Such rows are
// skipped and reported, never repaired with a guess.
var ErrAmbiguousRow = errors.New("ambiguous currency row: missing or invalid exchange rate")

// ErrCascadeDelete marks a failed invalidation of generated instances. The
// triggering repair or update is not complete when this is returned.
var ErrCascadeDelete = errors.New("cascade delete of generated instances failed")

// EventPublisher pushes ledger events onto the queue. Implementations may be
// nil-tolerant at the service level: events are best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.LedgerEvent) error
}

// ReconcilerStore is the slice of the persistence layer the reconciler
// needs.
type ReconcilerStore interface {
	ListDualAmountTransactions(ctx context.Context) ([]core.Transaction, error)
	UpdateTransactionAmounts(ctx context.Context, id uuid.UUID, ars, usd decimal.Decimal) error
	ListDualAmountRecurring(ctx context.Context) ([]core.RecurringTransaction, error)
	UpdateRecurringAmounts(ctx context.Context, id uuid.UUID, ars, usd decimal.Decimal) error
	DeleteInstances(ctx context.Context, recurringID uuid.UUID) (int64, error)
}

// ReconcileReport is the per-row outcome of a reconciliation pass. The pass
// never aborts on a single bad row.
type ReconcileReport struct {
	Repaired         int
	Skipped          []uuid.UUID // ambiguous rows, left untouched
	Failed           []uuid.UUID // repair attempted, persistence failed
	InstancesDeleted int64
}

// Reconciler repairs legacy rows where both currency amounts were populated,
// restoring the one-authoritative-amount invariant. The pass is a one-shot
// migration routine: after a clean run no row matches the selection
// predicate, so re-running it is a no-op.
type Reconciler struct {
	store  ReconcilerStore
	events EventPublisher
}

func NewReconciler(store ReconcilerStore, events EventPublisher) *Reconciler {
	return &Reconciler{store: store, events: events}
}

// decideAuthoritative picks which currency the user actually entered by
// testing both hypotheses against the stored exchange rate:
//
//	USD entered: predicted ARS = usd * rate, error |predicted - ars|
//	ARS entered: predicted USD = ars / rate, error |predicted - usd|
//
// The smaller error wins; an exact tie resolves to ARS so the result is
// deterministic and order-independent.
func decideAuthoritative(ars, usd, rate decimal.Decimal) (core.Currency, error) {
	if !rate.IsPositive() {
		return "", ErrAmbiguousRow
	}
	errUSDBase := usd.Mul(rate).Sub(ars).Abs()
	errARSBase := ars.Div(rate).Sub(usd).Abs()
	if errARSBase.LessThanOrEqual(errUSDBase) {
		return core.ARS, nil
	}
	return core.USD, nil
}

// ReconcileAll repairs every dual-amount transaction and recurring template.
// Failures on individual rows are recorded in the report; processing of the
// remaining rows continues.
func (r *Reconciler) ReconcileAll(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	txs, err := r.store.ListDualAmountTransactions(ctx)
	if err != nil {
		return report, fmt.Errorf("list dual-amount transactions: %w", err)
	}
	templates, err := r.store.ListDualAmountRecurring(ctx)
	if err != nil {
		return report, fmt.Errorf("list dual-amount recurring: %w", err)
	}

	slog.InfoContext(ctx, "Reconciling legacy dual-amount rows",
		"transactions", len(txs),
		"recurring", len(templates))

	for _, tx := range txs {
		keep, err := decideAuthoritative(tx.AmountARS, tx.AmountUSD, tx.ExchangeRate)
		if err != nil {
			slog.WarnContext(ctx, "Skipping ambiguous row", "id", tx.ID, "error", err)
			report.Skipped = append(report.Skipped, tx.ID)
			continue
		}
		ars, usd := applyHypothesis(keep, tx.AmountARS, tx.AmountUSD)
		if err := r.store.UpdateTransactionAmounts(ctx, tx.ID, ars, usd); err != nil {
			slog.ErrorContext(ctx, "Failed to repair transaction", "id", tx.ID, "error", err)
			report.Failed = append(report.Failed, tx.ID)
			continue
		}
		report.Repaired++
	}

	for _, rt := range templates {
		keep, err := decideAuthoritative(rt.AmountARS, rt.AmountUSD, rt.ExchangeRate)
		if err != nil {
			slog.WarnContext(ctx, "Skipping ambiguous template", "id", rt.ID, "error", err)
			report.Skipped = append(report.Skipped, rt.ID)
			continue
		}

		// Generated instances are a cache of the template's amount: they
		// must go before the repair is committed, so a failed delete leaves
		// the template untouched rather than half-corrected.
		deleted, err := r.store.DeleteInstances(ctx, rt.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to invalidate generated instances",
				"recurring_id", rt.ID, "error", err)
			report.Failed = append(report.Failed, rt.ID)
			continue
		}
		report.InstancesDeleted += deleted

		ars, usd := applyHypothesis(keep, rt.AmountARS, rt.AmountUSD)
		if err := r.store.UpdateRecurringAmounts(ctx, rt.ID, ars, usd); err != nil {
			slog.ErrorContext(ctx, "Failed to repair template", "id", rt.ID, "error", err)
			report.Failed = append(report.Failed, rt.ID)
			continue
		}
		report.Repaired++

		r.publishInvalidated(ctx, rt.ID, deleted)
	}

	slog.InfoContext(ctx, "Reconciliation pass complete",
		"repaired", report.Repaired,
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		"instances_deleted", report.InstancesDeleted)

	return report, nil
}

// applyHypothesis keeps the authoritative side unchanged and zeroes the
// derived side.
func applyHypothesis(keep core.Currency, ars, usd decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if keep == core.ARS {
		return ars, decimal.Zero
	}
	return decimal.Zero, usd
}

func (r *Reconciler) publishInvalidated(ctx context.Context, recurringID uuid.UUID, deleted int64) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(ctx, amqp.NewInvalidatedEvent(recurringID, deleted)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish invalidation event",
			"recurring_id", recurringID, "error", err)
	}
}
