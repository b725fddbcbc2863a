package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"plata/internal/amqp"
	"plata/internal/core"
)

// MaterializeOutcome tags the result of materializing a template for a
// month.
type MaterializeOutcome int

const (
	// OutcomeNone: the month falls outside the template's window, or the
	// template is inactive. Not an error.
	OutcomeNone MaterializeOutcome = iota
	// OutcomeExisting: a persisted instance already exists for the month.
	OutcomeExisting
	// OutcomePlaceholder: a draft was synthesized for display; it becomes a
	// real transaction only when the user saves it.
	OutcomePlaceholder
)

// Materialization is the tagged result of Materialize: exactly one of
// Existing and Draft is set, according to Outcome.
type Materialization struct {
	Outcome  MaterializeOutcome
	Existing *core.Transaction
	Draft    *core.TransactionDraft
}

// ExpanderStore is the slice of the persistence layer the expander needs.
type ExpanderStore interface {
	FindInstance(ctx context.Context, recurringID uuid.UUID, year, month int) (*core.Transaction, error)
	GetRecurring(ctx context.Context, id uuid.UUID) (core.RecurringTransaction, error)
	ListRecurring(ctx context.Context, onlyActive bool) ([]core.RecurringTransaction, error)
	GetCategory(ctx context.Context, id uuid.UUID) (core.Category, error)
	UpdateRecurringAmounts(ctx context.Context, id uuid.UUID, ars, usd decimal.Decimal) error
	DeleteInstances(ctx context.Context, recurringID uuid.UUID) (int64, error)
}

// DateRateResolver resolves the applicable exchange rate for a calendar
// date. It never fails; failures degrade to fallback rates.
type DateRateResolver interface {
	Resolve(ctx context.Context, date core.Date) decimal.Decimal
}

// Expander materializes monthly instances from recurring templates and
// keeps them coherent when a template's authoritative amount changes.
type Expander struct {
	store  ExpanderStore
	rates  DateRateResolver
	events EventPublisher
}

func NewExpander(store ExpanderStore, rates DateRateResolver, events EventPublisher) *Expander {
	return &Expander{store: store, rates: rates, events: events}
}

// Materialize produces the instance of a template for (year, month).
//
// An already-persisted instance is returned unchanged, so calling this twice
// can never duplicate a row. Otherwise a placeholder draft is synthesized:
// dated on the template's day clamped to the month's last valid day, amounts
// copied from the template's authoritative side, and the exchange rate
// resolved for the synthesized date rather than the template's stored rate,
// so historical months reflect historical rates.
func (e *Expander) Materialize(ctx context.Context, template core.RecurringTransaction, year, month int) (Materialization, error) {
	if !template.Active || !template.CoversMonth(year, month) {
		return Materialization{Outcome: OutcomeNone}, nil
	}

	existing, err := e.store.FindInstance(ctx, template.ID, year, month)
	if err != nil {
		return Materialization{}, fmt.Errorf("find instance: %w", err)
	}
	if existing != nil {
		return Materialization{Outcome: OutcomeExisting, Existing: existing}, nil
	}

	category, err := e.store.GetCategory(ctx, template.CategoryID)
	if err != nil {
		return Materialization{}, fmt.Errorf("load template category: %w", err)
	}

	date := core.ClampedDate(year, month, template.DayOfMonth)
	draft := &core.TransactionDraft{
		Date:         date,
		Type:         category.Type,
		CategoryID:   template.CategoryID,
		Description:  template.Description,
		AmountARS:    template.AmountARS,
		AmountUSD:    template.AmountUSD,
		ExchangeRate: e.rates.Resolve(ctx, date),
		RecurringID:  template.ID,
	}
	return Materialization{Outcome: OutcomePlaceholder, Draft: draft}, nil
}

// MaterializeMonth materializes every active template for (year, month).
// Failures on individual templates are reported and skipped; the rest of the
// month is still produced.
func (e *Expander) MaterializeMonth(ctx context.Context, year, month int) ([]Materialization, []uuid.UUID, error) {
	templates, err := e.store.ListRecurring(ctx, true)
	if err != nil {
		return nil, nil, fmt.Errorf("list recurring templates: %w", err)
	}

	var (
		results []Materialization
		failed  []uuid.UUID
	)
	for _, template := range templates {
		m, err := e.Materialize(ctx, template, year, month)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to materialize template",
				"recurring_id", template.ID,
				"year", year,
				"month", month,
				"error", err)
			failed = append(failed, template.ID)
			continue
		}
		if m.Outcome == OutcomeNone {
			continue
		}
		results = append(results, m)
	}
	return results, failed, nil
}

// UpdateAmount changes a template's authoritative amount. Exactly one of ars
// and usd may be non-zero. All generated instances are deleted before the
// template row is touched: if the cascade fails the update is aborted and
// reported as incomplete, never left half-applied. Placeholders need no
// invalidation since they are recomputed on every view.
func (e *Expander) UpdateAmount(ctx context.Context, templateID uuid.UUID, ars, usd decimal.Decimal) (int64, error) {
	if ars.IsNegative() || usd.IsNegative() {
		return 0, core.ErrNegativeAmount
	}
	if ars.IsZero() && usd.IsZero() {
		return 0, core.ErrNoAmount
	}
	if !ars.IsZero() && !usd.IsZero() {
		return 0, core.ErrDualAmounts
	}

	if _, err := e.store.GetRecurring(ctx, templateID); err != nil {
		return 0, fmt.Errorf("load template: %w", err)
	}

	deleted, err := e.store.DeleteInstances(ctx, templateID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCascadeDelete, err)
	}

	if err := e.store.UpdateRecurringAmounts(ctx, templateID, ars, usd); err != nil {
		return deleted, fmt.Errorf("update template amounts: %w", err)
	}

	slog.InfoContext(ctx, "Template amount updated, generated instances invalidated",
		"recurring_id", templateID,
		"instances_deleted", deleted)

	if e.events != nil {
		if err := e.events.Publish(ctx, amqp.NewInvalidatedEvent(templateID, deleted)); err != nil {
			slog.ErrorContext(ctx, "Failed to publish invalidation event",
				"recurring_id", templateID, "error", err)
		}
	}
	return deleted, nil
}
