package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"plata/internal/core"
	"plata/internal/services"
)

type createRecurringRequest struct {
	CategoryID   string `json:"category_id"`
	Description  string `json:"description"`
	DayOfMonth   int    `json:"day_of_month"`
	AmountARS    string `json:"amount_ars,omitempty"`
	AmountUSD    string `json:"amount_usd,omitempty"`
	ExchangeRate string `json:"exchange_rate"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date,omitempty"`
}

type recurringResponse struct {
	ID           string `json:"id"`
	CategoryID   string `json:"category_id"`
	Description  string `json:"description"`
	DayOfMonth   int    `json:"day_of_month"`
	AmountARS    string `json:"amount_ars"`
	AmountUSD    string `json:"amount_usd"`
	ExchangeRate string `json:"exchange_rate"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date,omitempty"`
	Active       bool   `json:"active"`
}

func toRecurringResponse(rt core.RecurringTransaction) recurringResponse {
	resp := recurringResponse{
		ID:           rt.ID.String(),
		CategoryID:   rt.CategoryID.String(),
		Description:  rt.Description,
		DayOfMonth:   rt.DayOfMonth,
		AmountARS:    rt.AmountARS.String(),
		AmountUSD:    rt.AmountUSD.String(),
		ExchangeRate: rt.ExchangeRate.String(),
		StartDate:    rt.StartDate.Format(dateLayout),
		Active:       rt.Active,
	}
	if !rt.EndDate.IsZero() {
		resp.EndDate = rt.EndDate.Format(dateLayout)
	}
	return resp
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req createRecurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}

	rt, err := recurringFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.CreateRecurring(r.Context(), rt); err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecurringResponse(rt))
}

func recurringFromRequest(req createRecurringRequest) (core.RecurringTransaction, error) {
	var zero core.RecurringTransaction

	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		return zero, core.ErrMissingCategory
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		return zero, errors.New("invalid start_date, expected YYYY-MM-DD")
	}

	var end core.Date
	if req.EndDate != "" {
		if end, err = parseDate(req.EndDate); err != nil {
			return zero, errors.New("invalid end_date, expected YYYY-MM-DD")
		}
	}

	var ars, usd decimal.Decimal
	if req.AmountARS != "" {
		if ars, err = core.ParseAmount(req.AmountARS); err != nil {
			return zero, err
		}
	}
	if req.AmountUSD != "" {
		if usd, err = core.ParseAmount(req.AmountUSD); err != nil {
			return zero, err
		}
	}
	rate, err := core.ParseRate(req.ExchangeRate)
	if err != nil {
		return zero, err
	}

	rt := core.RecurringTransaction{
		ID:           uuid.New(),
		CategoryID:   categoryID,
		Description:  req.Description,
		DayOfMonth:   req.DayOfMonth,
		AmountARS:    ars,
		AmountUSD:    usd,
		ExchangeRate: rate,
		StartDate:    start,
		EndDate:      end,
		Active:       true,
	}
	if err := rt.Validate(); err != nil {
		return zero, err
	}
	return rt, nil
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	onlyActive := r.URL.Query().Get("active") == "true"
	templates, err := s.store.ListRecurring(r.Context(), onlyActive)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	out := make([]recurringResponse, 0, len(templates))
	for _, rt := range templates {
		out = append(out, toRecurringResponse(rt))
	}
	writeJSON(w, http.StatusOK, out)
}

type updateAmountRequest struct {
	AmountARS string `json:"amount_ars,omitempty"`
	AmountUSD string `json:"amount_usd,omitempty"`
}

type updateAmountResponse struct {
	InstancesDeleted int64 `json:"instances_deleted"`
}

// handleUpdateRecurringAmount changes a template's authoritative amount.
// Generated instances are deleted first; if that fails the amount is left
// untouched.
func (s *Server) handleUpdateRecurringAmount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid recurring id"))
		return
	}

	var req updateAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}

	var ars, usd decimal.Decimal
	if req.AmountARS != "" {
		if ars, err = core.ParseAmount(req.AmountARS); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.AmountUSD != "" {
		if usd, err = core.ParseAmount(req.AmountUSD); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	deleted, err := s.expander.UpdateAmount(r.Context(), id, ars, usd)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCascadeDelete):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, core.ErrNoAmount), errors.Is(err, core.ErrDualAmounts), errors.Is(err, core.ErrNegativeAmount):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeStorageError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, updateAmountResponse{InstancesDeleted: deleted})
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetRecurringActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid recurring id"))
		return
	}
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	if err := s.store.SetRecurringActive(r.Context(), id, req.Active); err != nil {
		writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type monthViewEntry struct {
	// Status is "committed" for persisted instances and "placeholder" for
	// synthesized drafts.
	Status      string               `json:"status"`
	Transaction *transactionResponse `json:"transaction,omitempty"`
	Placeholder *placeholderResponse `json:"placeholder,omitempty"`
}

type placeholderResponse struct {
	Date         string `json:"date"`
	Type         string `json:"type"`
	CategoryID   string `json:"category_id"`
	Description  string `json:"description"`
	AmountARS    string `json:"amount_ars"`
	AmountUSD    string `json:"amount_usd"`
	ExchangeRate string `json:"exchange_rate"`
	RecurringID  string `json:"recurring_id"`
}

type monthViewResponse struct {
	Year    int              `json:"year"`
	Month   int              `json:"month"`
	Entries []monthViewEntry `json:"entries"`
	// Failed lists templates whose materialization errored; the rest of the
	// view is still served.
	Failed []string `json:"failed,omitempty"`
}

// handleMonthView returns the committed and placeholder instances of every
// recurring template for the requested month.
func (s *Server) handleMonthView(w http.ResponseWriter, r *http.Request) {
	year, month, err := parsePathYearMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	results, failed, err := s.expander.MaterializeMonth(r.Context(), year, month)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	resp := monthViewResponse{Year: year, Month: month}
	for _, m := range results {
		switch m.Outcome {
		case services.OutcomeExisting:
			tx := toTransactionResponse(*m.Existing)
			resp.Entries = append(resp.Entries, monthViewEntry{Status: "committed", Transaction: &tx})
		case services.OutcomePlaceholder:
			d := m.Draft
			resp.Entries = append(resp.Entries, monthViewEntry{Status: "placeholder", Placeholder: &placeholderResponse{
				Date:         d.Date.Format(dateLayout),
				Type:         string(d.Type),
				CategoryID:   d.CategoryID.String(),
				Description:  d.Description,
				AmountARS:    d.AmountARS.String(),
				AmountUSD:    d.AmountUSD.String(),
				ExchangeRate: d.ExchangeRate.String(),
				RecurringID:  d.RecurringID.String(),
			}})
		}
	}
	for _, id := range failed {
		resp.Failed = append(resp.Failed, id.String())
	}
	writeJSON(w, http.StatusOK, resp)
}
