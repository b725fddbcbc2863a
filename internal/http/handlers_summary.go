package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"plata/internal/core"
)

type totalsResponse struct {
	ARS   string `json:"ars"`
	USD   string `json:"usd"`
	Count int    `json:"count"`
}

func toTotalsResponse(t core.Totals) totalsResponse {
	return totalsResponse{ARS: t.ARS.String(), USD: t.USD.String(), Count: t.Count}
}

type monthlySummaryResponse struct {
	Year         int            `json:"year"`
	Month        int            `json:"month"`
	ExchangeRate string         `json:"exchange_rate"`
	Income       totalsResponse `json:"income"`
	Expense      totalsResponse `json:"expense"`
	Balance      totalsResponse `json:"balance"`
}

func toMonthlySummaryResponse(s core.MonthlySummary) monthlySummaryResponse {
	return monthlySummaryResponse{
		Year:         s.Year,
		Month:        s.Month,
		ExchangeRate: s.ExchangeRate.String(),
		Income:       toTotalsResponse(s.Income),
		Expense:      toTotalsResponse(s.Expense),
		Balance:      toTotalsResponse(s.Balance),
	}
}

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	txs, err := s.store.ListTransactionsByMonth(r.Context(), year, month)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	summary := s.aggregator.MonthlySummary(r.Context(), txs, year, month)
	writeJSON(w, http.StatusOK, toMonthlySummaryResponse(summary))
}

type yearlySummaryResponse struct {
	Year    int                      `json:"year"`
	Months  []monthlySummaryResponse `json:"months"`
	Income  totalsResponse           `json:"income"`
	Expense totalsResponse           `json:"expense"`
	Balance totalsResponse           `json:"balance"`
}

func (s *Server) handleYearlySummary(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	txs, err := s.store.ListTransactionsByYear(r.Context(), year)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	summary := s.aggregator.YearlySummary(r.Context(), txs, year)

	resp := yearlySummaryResponse{
		Year:    summary.Year,
		Months:  make([]monthlySummaryResponse, 0, len(summary.Months)),
		Income:  toTotalsResponse(summary.Income),
		Expense: toTotalsResponse(summary.Expense),
		Balance: toTotalsResponse(summary.Balance),
	}
	for _, ms := range summary.Months {
		resp.Months = append(resp.Months, toMonthlySummaryResponse(ms))
	}
	writeJSON(w, http.StatusOK, resp)
}

type categoryTotalResponse struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	AmountARS  string `json:"amount_ars"`
	Count      int    `json:"count"`
}

func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	typ, err := parseType(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	txs, err := s.store.ListTransactionsByMonth(r.Context(), year, month)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	categories, err := s.store.ListCategories(r.Context(), typ)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	rows := s.aggregator.CategoryBreakdown(txs, categories, typ)
	out := make([]categoryTotalResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, categoryTotalResponse{
			CategoryID: row.CategoryID.String(),
			Name:       row.Name,
			AmountARS:  row.AmountARS.String(),
			Count:      row.Count,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type methodTotalResponse struct {
	Method    string `json:"method"`
	AmountARS string `json:"amount_ars"`
	Count     int    `json:"count"`
}

func (s *Server) handleMethodBreakdown(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	typ, err := parseType(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	txs, err := s.store.ListTransactionsByMonth(r.Context(), year, month)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	rows := s.aggregator.MethodBreakdown(txs, typ)
	out := make([]methodTotalResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, methodTotalResponse{
			Method:    string(row.Method),
			AmountARS: row.AmountARS.String(),
			Count:     row.Count,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type createCategoryRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type categoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	typ := core.TransactionType(req.Type)
	if !typ.Valid() {
		writeError(w, http.StatusBadRequest, core.ErrInvalidType)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("empty category name"))
		return
	}

	cat := core.Category{ID: uuid.New(), Name: req.Name, Type: typ}
	if err := s.store.CreateCategory(r.Context(), cat); err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryResponse{ID: cat.ID.String(), Name: cat.Name, Type: string(cat.Type)})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	typ, err := parseType(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	categories, err := s.store.ListCategories(r.Context(), typ)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryResponse{ID: c.ID.String(), Name: c.Name, Type: string(c.Type)})
	}
	writeJSON(w, http.StatusOK, out)
}

type reconcileResponse struct {
	Repaired         int      `json:"repaired"`
	Skipped          []string `json:"skipped,omitempty"`
	Failed           []string `json:"failed,omitempty"`
	InstancesDeleted int64    `json:"instances_deleted"`
}

// handleReconcile runs the legacy dual-amount repair pass. Safe to invoke
// repeatedly; a clean dataset yields an all-zero report.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.reconciler.ReconcileAll(r.Context())
	if err != nil {
		writeStorageError(w, err)
		return
	}

	resp := reconcileResponse{
		Repaired:         report.Repaired,
		InstancesDeleted: report.InstancesDeleted,
	}
	for _, id := range report.Skipped {
		resp.Skipped = append(resp.Skipped, id.String())
	}
	for _, id := range report.Failed {
		resp.Failed = append(resp.Failed, id.String())
	}

	status := http.StatusOK
	if len(report.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}
