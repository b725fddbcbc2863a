package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"plata/internal/core"
	"plata/internal/services"
	"plata/internal/storage"
)

type stubStore struct {
	txs        map[uuid.UUID]core.Transaction
	recurring  map[uuid.UUID]core.RecurringTransaction
	categories []core.Category
}

func newStubStore() *stubStore {
	return &stubStore{
		txs:       make(map[uuid.UUID]core.Transaction),
		recurring: make(map[uuid.UUID]core.RecurringTransaction),
	}
}

func (s *stubStore) CreateTransaction(_ context.Context, tx core.Transaction) error {
	s.txs[tx.ID] = tx
	return nil
}

func (s *stubStore) GetTransaction(_ context.Context, id uuid.UUID) (core.Transaction, error) {
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	return tx, nil
}

func (s *stubStore) DeleteTransaction(_ context.Context, id uuid.UUID) error {
	if _, ok := s.txs[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	delete(s.txs, id)
	return nil
}

func (s *stubStore) ListTransactionsByMonth(_ context.Context, year, month int) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.Date.SameMonth(year, month) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *stubStore) ListTransactionsByYear(_ context.Context, year int) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.Date.Year() == year {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *stubStore) CreateRecurring(_ context.Context, rt core.RecurringTransaction) error {
	s.recurring[rt.ID] = rt
	return nil
}

func (s *stubStore) GetRecurring(_ context.Context, id uuid.UUID) (core.RecurringTransaction, error) {
	rt, ok := s.recurring[id]
	if !ok {
		return core.RecurringTransaction{}, fmt.Errorf("recurring %s: %w", id, storage.ErrNotFound)
	}
	return rt, nil
}

func (s *stubStore) ListRecurring(_ context.Context, onlyActive bool) ([]core.RecurringTransaction, error) {
	var out []core.RecurringTransaction
	for _, rt := range s.recurring {
		if onlyActive && !rt.Active {
			continue
		}
		out = append(out, rt)
	}
	return out, nil
}

func (s *stubStore) SetRecurringActive(_ context.Context, id uuid.UUID, active bool) error {
	rt, ok := s.recurring[id]
	if !ok {
		return fmt.Errorf("recurring %s: %w", id, storage.ErrNotFound)
	}
	rt.Active = active
	s.recurring[id] = rt
	return nil
}

func (s *stubStore) CreateCategory(_ context.Context, c core.Category) error {
	s.categories = append(s.categories, c)
	return nil
}

func (s *stubStore) ListCategories(_ context.Context, t core.TransactionType) ([]core.Category, error) {
	var out []core.Category
	for _, c := range s.categories {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out, nil
}

type stubExpander struct {
	materializations []services.Materialization
	deleted          int64
	err              error
}

func (e *stubExpander) MaterializeMonth(_ context.Context, _, _ int) ([]services.Materialization, []uuid.UUID, error) {
	return e.materializations, nil, nil
}

func (e *stubExpander) UpdateAmount(_ context.Context, _ uuid.UUID, _, _ decimal.Decimal) (int64, error) {
	if e.err != nil {
		return 0, e.err
	}
	return e.deleted, nil
}

type stubReconciler struct {
	report services.ReconcileReport
}

func (r *stubReconciler) ReconcileAll(_ context.Context) (services.ReconcileReport, error) {
	return r.report, nil
}

type fixedRates struct{ rate decimal.Decimal }

func (f fixedRates) Resolve(_ context.Context, _ core.Date) decimal.Decimal   { return f.rate }
func (f fixedRates) ResolveMonth(_ context.Context, _, _ int) decimal.Decimal { return f.rate }

func newTestServer(t *testing.T, store *stubStore, exp *stubExpander, rec *stubReconciler) (*Server, *[]uuid.UUID) {
	t.Helper()
	rates := fixedRates{rate: decimal.NewFromInt(1000)}
	agg := services.NewAggregator(rates)
	var published []uuid.UUID
	publish := func(_ context.Context, id uuid.UUID) {
		published = append(published, id)
	}
	s := NewServer(":0", store, exp, agg, rec, rates, publish)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, &published
}

func doRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rr, req)
	return rr
}

func TestCreateTransaction(t *testing.T) {
	store := newStubStore()
	s, published := newTestServer(t, store, &stubExpander{}, &stubReconciler{})

	catID := uuid.New()
	rr := doRequest(s, http.MethodPost, "/transactions", map[string]any{
		"date":           "2025-03-10",
		"type":           "EXPENSE",
		"category_id":    catID.String(),
		"payment_method": "CASH",
		"description":    "supermercado",
		"amount_ars":     "45000.50",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp transactionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AmountARS != "45000.5" {
		t.Errorf("amount_ars = %q", resp.AmountARS)
	}
	// Rate omitted in the request: stamped from the resolver.
	if resp.ExchangeRate != "1000" {
		t.Errorf("exchange_rate = %q, want 1000", resp.ExchangeRate)
	}
	if len(store.txs) != 1 {
		t.Fatalf("stored = %d, want 1", len(store.txs))
	}
	if len(*published) != 1 {
		t.Errorf("published = %d events, want 1", len(*published))
	}
}

func TestCreateTransactionRejectsDualAmounts(t *testing.T) {
	store := newStubStore()
	s, published := newTestServer(t, store, &stubExpander{}, &stubReconciler{})

	rr := doRequest(s, http.MethodPost, "/transactions", map[string]any{
		"date":           "2025-03-10",
		"type":           "EXPENSE",
		"category_id":    uuid.New().String(),
		"payment_method": "CASH",
		"description":    "supermercado",
		"amount_ars":     "45000",
		"amount_usd":     "45",
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), core.ErrDualAmounts.Error()) {
		t.Errorf("body = %s", rr.Body.String())
	}
	if len(store.txs) != 0 {
		t.Error("nothing should be stored")
	}
	if len(*published) != 0 {
		t.Error("nothing should be published")
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	s, _ := newTestServer(t, newStubStore(), &stubExpander{}, &stubReconciler{})

	rr := doRequest(s, http.MethodGet, "/transactions/"+uuid.New().String(), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestDeleteTransaction(t *testing.T) {
	store := newStubStore()
	s, _ := newTestServer(t, store, &stubExpander{}, &stubReconciler{})

	tx := core.Transaction{
		ID:            uuid.New(),
		Date:          core.NewDate(2025, 3, 10),
		Type:          core.Expense,
		CategoryID:    uuid.New(),
		PaymentMethod: core.Cash,
		Description:   "nafta",
		AmountARS:     decimal.NewFromInt(20000),
		ExchangeRate:  decimal.NewFromInt(1000),
	}
	store.txs[tx.ID] = tx

	rr := doRequest(s, http.MethodDelete, "/transactions/"+tx.ID.String(), nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if len(store.txs) != 0 {
		t.Error("transaction should be gone")
	}
}

func TestMonthViewMixesCommittedAndPlaceholders(t *testing.T) {
	committed := core.Transaction{
		ID:            uuid.New(),
		Date:          core.NewDate(2025, 3, 5),
		Type:          core.Expense,
		CategoryID:    uuid.New(),
		PaymentMethod: core.Cash,
		Description:   "alquiler",
		AmountARS:     decimal.NewFromInt(500000),
		ExchangeRate:  decimal.NewFromInt(1000),
	}
	draft := core.TransactionDraft{
		Date:         core.NewDate(2025, 3, 28),
		Type:         core.Expense,
		CategoryID:   uuid.New(),
		Description:  "internet",
		AmountARS:    decimal.NewFromInt(30000),
		ExchangeRate: decimal.NewFromInt(1100),
		RecurringID:  uuid.New(),
	}
	exp := &stubExpander{materializations: []services.Materialization{
		{Outcome: services.OutcomeExisting, Existing: &committed},
		{Outcome: services.OutcomePlaceholder, Draft: &draft},
	}}
	s, _ := newTestServer(t, newStubStore(), exp, &stubReconciler{})

	rr := doRequest(s, http.MethodGet, "/months/2025/3", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp monthViewResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(resp.Entries))
	}
	if resp.Entries[0].Status != "committed" || resp.Entries[0].Transaction == nil {
		t.Errorf("first entry = %+v", resp.Entries[0])
	}
	if resp.Entries[1].Status != "placeholder" || resp.Entries[1].Placeholder == nil {
		t.Errorf("second entry = %+v", resp.Entries[1])
	}
	if resp.Entries[1].Placeholder.ExchangeRate != "1100" {
		t.Errorf("placeholder rate = %q", resp.Entries[1].Placeholder.ExchangeRate)
	}
}

func TestUpdateRecurringAmount(t *testing.T) {
	exp := &stubExpander{deleted: 3}
	s, _ := newTestServer(t, newStubStore(), exp, &stubReconciler{})

	rr := doRequest(s, http.MethodPut, "/recurring/"+uuid.New().String()+"/amount", map[string]any{
		"amount_ars": "600000",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp updateAmountResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.InstancesDeleted != 3 {
		t.Errorf("instances_deleted = %d, want 3", resp.InstancesDeleted)
	}
}

func TestUpdateRecurringAmountCascadeFailure(t *testing.T) {
	exp := &stubExpander{err: fmt.Errorf("%w: storage offline", services.ErrCascadeDelete)}
	s, _ := newTestServer(t, newStubStore(), exp, &stubReconciler{})

	rr := doRequest(s, http.MethodPut, "/recurring/"+uuid.New().String()+"/amount", map[string]any{
		"amount_ars": "600000",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
}

func TestMonthlySummaryEndpoint(t *testing.T) {
	store := newStubStore()
	catID := uuid.New()
	store.txs[uuid.New()] = core.Transaction{
		ID:            uuid.New(),
		Date:          core.NewDate(2025, 3, 10),
		Type:          core.Income,
		CategoryID:    catID,
		PaymentMethod: core.BankAccount,
		BankAccountID: &catID,
		Description:   "sueldo",
		AmountARS:     decimal.NewFromInt(900000),
		ExchangeRate:  decimal.NewFromInt(1000),
	}
	s, _ := newTestServer(t, store, &stubExpander{}, &stubReconciler{})

	rr := doRequest(s, http.MethodGet, "/summary/monthly?year=2025&month=3", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp monthlySummaryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Income.ARS != "900000" {
		t.Errorf("income ars = %q", resp.Income.ARS)
	}
	if resp.Income.USD != "900" {
		t.Errorf("income usd = %q", resp.Income.USD)
	}
	if resp.Balance.ARS != "900000" {
		t.Errorf("balance ars = %q", resp.Balance.ARS)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	skipped := uuid.New()
	rec := &stubReconciler{report: services.ReconcileReport{
		Repaired:         4,
		Skipped:          []uuid.UUID{skipped},
		InstancesDeleted: 7,
	}}
	s, _ := newTestServer(t, newStubStore(), &stubExpander{}, rec)

	rr := doRequest(s, http.MethodPost, "/admin/reconcile", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp reconcileResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Repaired != 4 || resp.InstancesDeleted != 7 {
		t.Errorf("report = %+v", resp)
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0] != skipped.String() {
		t.Errorf("skipped = %v", resp.Skipped)
	}
}

func TestReconcileEndpointPartialFailure(t *testing.T) {
	rec := &stubReconciler{report: services.ReconcileReport{
		Repaired: 1,
		Failed:   []uuid.UUID{uuid.New()},
	}}
	s, _ := newTestServer(t, newStubStore(), &stubExpander{}, rec)

	rr := doRequest(s, http.MethodPost, "/admin/reconcile", nil)
	if rr.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207", rr.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer(t, newStubStore(), &stubExpander{}, &stubReconciler{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := doRequest(s, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rr.Code)
		}
	}
}
