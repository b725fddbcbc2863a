package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"plata/internal/amqp"
	"plata/internal/core"
	"plata/internal/mirror"
)

// MirrorStore is the slice of storage the worker needs.
type MirrorStore interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error)
	GetCategory(ctx context.Context, id uuid.UUID) (core.Category, error)
	ListUnmirrored(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkMirrored(ctx context.Context, id uuid.UUID) error
}

// MirrorWorker copies committed transactions from SQLite to the backup sheet.
type MirrorWorker struct {
	store     MirrorStore
	writer    mirror.RowWriter
	batchSize int
}

func NewMirrorWorker(store MirrorStore, writer mirror.RowWriter, batchSize int) *MirrorWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &MirrorWorker{
		store:     store,
		writer:    writer,
		batchSize: batchSize,
	}
}

// HandleEvent processes a single ledger event from AMQP.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	switch ev.Kind {
	case amqp.KindMirror:
		return w.mirrorOne(ctx, ev.TransactionID)
	case amqp.KindInvalidated:
		// Invalidation only affects local instances; nothing to push.
		slog.InfoContext(ctx, "Ignoring invalidation event",
			"recurring_id", ev.RecurringID,
			"deleted", ev.Deleted)
		return nil
	default:
		slog.WarnContext(ctx, "Unknown event kind", "kind", ev.Kind)
		return nil
	}
}

func (w *MirrorWorker) mirrorOne(ctx context.Context, id uuid.UUID) error {
	tx, err := w.store.GetTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	categoryName := ""
	if cat, err := w.store.GetCategory(ctx, tx.CategoryID); err == nil {
		categoryName = cat.Name
	} else {
		slog.WarnContext(ctx, "Category lookup failed, mirroring without name",
			"transaction_id", id,
			"category_id", tx.CategoryID,
			"error", err)
	}

	rowRef, err := w.writer.Append(ctx, tx, categoryName)
	if err != nil {
		return fmt.Errorf("append to mirror: %w", err)
	}

	if err := w.store.MarkMirrored(ctx, id); err != nil {
		// The row is already in the sheet; the catch-up pass may append it
		// again, which is acceptable for a backup.
		return fmt.Errorf("mark mirrored: %w", err)
	}

	slog.InfoContext(ctx, "Transaction mirrored",
		"id", id,
		"row", rowRef)
	return nil
}

// SyncPending mirrors transactions that never made it through the event path.
// Returns how many rows were pushed.
func (w *MirrorWorker) SyncPending(ctx context.Context) (int, error) {
	pending, err := w.store.ListUnmirrored(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list unmirrored: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Catch-up sync starting", "pending", len(pending))

	var pushed int
	var firstErr error
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return pushed, err
		}
		if err := w.mirrorOne(ctx, tx.ID); err != nil {
			slog.ErrorContext(ctx, "Catch-up mirror failed",
				"id", tx.ID,
				"error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		pushed++
	}

	if firstErr != nil && pushed == 0 {
		return 0, fmt.Errorf("catch-up sync: %w", firstErr)
	}
	return pushed, nil
}

var errNilEvent = errors.New("nil event")

// Run consumes ledger events until the context is cancelled.
func (w *MirrorWorker) Run(ctx context.Context, client *amqp.Client) error {
	return client.Consume(ctx, func(ev *amqp.LedgerEvent) error {
		if ev == nil {
			return errNilEvent
		}
		return w.HandleEvent(ctx, ev)
	})
}
