package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"plata/internal/amqp"
	"plata/internal/core"
	"plata/internal/mirror/memory"
)

type fakeStore struct {
	txs       map[uuid.UUID]core.Transaction
	cats      map[uuid.UUID]core.Category
	mirrored  map[uuid.UUID]bool
	failMark  bool
	markCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		txs:      make(map[uuid.UUID]core.Transaction),
		cats:     make(map[uuid.UUID]core.Category),
		mirrored: make(map[uuid.UUID]bool),
	}
}

func (s *fakeStore) GetTransaction(_ context.Context, id uuid.UUID) (core.Transaction, error) {
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, errors.New("not found")
	}
	return tx, nil
}

func (s *fakeStore) GetCategory(_ context.Context, id uuid.UUID) (core.Category, error) {
	cat, ok := s.cats[id]
	if !ok {
		return core.Category{}, errors.New("not found")
	}
	return cat, nil
}

func (s *fakeStore) ListUnmirrored(_ context.Context, limit int) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, tx := range s.txs {
		if !s.mirrored[tx.ID] {
			out = append(out, tx)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) MarkMirrored(_ context.Context, id uuid.UUID) error {
	s.markCalls++
	if s.failMark {
		return errors.New("mark failed")
	}
	s.mirrored[id] = true
	return nil
}

func (s *fakeStore) addTransaction(t *testing.T, catName string) core.Transaction {
	t.Helper()
	catID := uuid.New()
	s.cats[catID] = core.Category{ID: catID, Name: catName, Type: core.Expense}
	tx := core.Transaction{
		ID:            uuid.New(),
		Date:          core.NewDate(2025, 3, 10),
		Type:          core.Expense,
		CategoryID:    catID,
		PaymentMethod: core.Cash,
		Description:   "alquiler",
		AmountARS:     decimal.NewFromInt(500000),
		ExchangeRate:  decimal.NewFromInt(1000),
	}
	s.txs[tx.ID] = tx
	return tx
}

func TestHandleEventMirrors(t *testing.T) {
	store := newFakeStore()
	sheet := memory.New()
	w := NewMirrorWorker(store, sheet, 10)

	tx := store.addTransaction(t, "Vivienda")

	if err := w.HandleEvent(context.Background(), amqp.NewMirrorEvent(tx.ID)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	rows := sheet.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Transaction.ID != tx.ID {
		t.Errorf("mirrored id = %v, want %v", rows[0].Transaction.ID, tx.ID)
	}
	if rows[0].CategoryName != "Vivienda" {
		t.Errorf("category name = %q, want Vivienda", rows[0].CategoryName)
	}
	if !store.mirrored[tx.ID] {
		t.Error("transaction not marked mirrored")
	}
}

func TestHandleEventIgnoresInvalidation(t *testing.T) {
	store := newFakeStore()
	sheet := memory.New()
	w := NewMirrorWorker(store, sheet, 10)

	ev := amqp.NewInvalidatedEvent(uuid.New(), 3)
	if err := w.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(sheet.Rows()) != 0 {
		t.Error("invalidation event should not touch the sheet")
	}
}

func TestHandleEventAppendFailureLeavesUnmirrored(t *testing.T) {
	store := newFakeStore()
	sheet := memory.New()
	sheet.FailWith(errors.New("quota exceeded"))
	w := NewMirrorWorker(store, sheet, 10)

	tx := store.addTransaction(t, "Comida")

	if err := w.HandleEvent(context.Background(), amqp.NewMirrorEvent(tx.ID)); err == nil {
		t.Fatal("expected error when append fails")
	}
	if store.mirrored[tx.ID] {
		t.Error("transaction must stay unmirrored after append failure")
	}
	if store.markCalls != 0 {
		t.Error("MarkMirrored must not be called when append fails")
	}
}

func TestHandleEventMarkFailureSurfaces(t *testing.T) {
	store := newFakeStore()
	store.failMark = true
	sheet := memory.New()
	w := NewMirrorWorker(store, sheet, 10)

	tx := store.addTransaction(t, "Comida")

	if err := w.HandleEvent(context.Background(), amqp.NewMirrorEvent(tx.ID)); err == nil {
		t.Fatal("expected error when bookkeeping fails")
	}
	// The row was appended before the failure; the event will be retried.
	if len(sheet.Rows()) != 1 {
		t.Errorf("rows = %d, want 1", len(sheet.Rows()))
	}
}

func TestSyncPending(t *testing.T) {
	store := newFakeStore()
	sheet := memory.New()
	w := NewMirrorWorker(store, sheet, 10)

	a := store.addTransaction(t, "Comida")
	b := store.addTransaction(t, "Transporte")

	pushed, err := w.SyncPending(context.Background())
	if err != nil {
		t.Fatalf("SyncPending: %v", err)
	}
	if pushed != 2 {
		t.Fatalf("pushed = %d, want 2", pushed)
	}
	if !store.mirrored[a.ID] || !store.mirrored[b.ID] {
		t.Error("both transactions should be mirrored")
	}

	// A second pass finds nothing.
	pushed, err = w.SyncPending(context.Background())
	if err != nil {
		t.Fatalf("SyncPending second pass: %v", err)
	}
	if pushed != 0 {
		t.Errorf("second pass pushed = %d, want 0", pushed)
	}
}

func TestSyncPendingAllFail(t *testing.T) {
	store := newFakeStore()
	sheet := memory.New()
	sheet.FailWith(errors.New("offline"))
	w := NewMirrorWorker(store, sheet, 10)

	store.addTransaction(t, "Comida")

	pushed, err := w.SyncPending(context.Background())
	if err == nil {
		t.Fatal("expected error when every row fails")
	}
	if pushed != 0 {
		t.Errorf("pushed = %d, want 0", pushed)
	}
}
