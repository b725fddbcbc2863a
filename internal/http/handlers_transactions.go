package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"plata/internal/core"
)

type createTransactionRequest struct {
	Date          string `json:"date"`
	Type          string `json:"type"`
	CategoryID    string `json:"category_id"`
	PaymentMethod string `json:"payment_method"`
	Description   string `json:"description"`
	AmountARS     string `json:"amount_ars,omitempty"`
	AmountUSD     string `json:"amount_usd,omitempty"`
	// ExchangeRate may be omitted; the rate for the transaction date is
	// resolved and stamped at commit time.
	ExchangeRate  string `json:"exchange_rate,omitempty"`
	BankAccountID string `json:"bank_account_id,omitempty"`
	RecurringID   string `json:"recurring_id,omitempty"`
}

type transactionResponse struct {
	ID            string `json:"id"`
	Date          string `json:"date"`
	Type          string `json:"type"`
	CategoryID    string `json:"category_id"`
	PaymentMethod string `json:"payment_method"`
	Description   string `json:"description"`
	AmountARS     string `json:"amount_ars"`
	AmountUSD     string `json:"amount_usd"`
	ExchangeRate  string `json:"exchange_rate"`
	EffectiveARS  string `json:"effective_ars"`
	EffectiveUSD  string `json:"effective_usd"`
	RecurringID   string `json:"recurring_id,omitempty"`
}

func toTransactionResponse(tx core.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:            tx.ID.String(),
		Date:          tx.Date.Format(dateLayout),
		Type:          string(tx.Type),
		CategoryID:    tx.CategoryID.String(),
		PaymentMethod: string(tx.PaymentMethod),
		Description:   tx.Description,
		AmountARS:     tx.AmountARS.String(),
		AmountUSD:     tx.AmountUSD.String(),
		ExchangeRate:  tx.ExchangeRate.String(),
		EffectiveARS:  tx.EffectiveARS().String(),
		EffectiveUSD:  tx.EffectiveUSD().String(),
	}
	if tx.RecurringID != nil {
		resp.RecurringID = tx.RecurringID.String()
	}
	return resp
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}

	tx, err := s.transactionFromRequest(r, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.CreateTransaction(r.Context(), tx); err != nil {
		writeStorageError(w, err)
		return
	}

	if s.publish != nil {
		s.publish(r.Context(), tx.ID)
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) transactionFromRequest(r *http.Request, req createTransactionRequest) (core.Transaction, error) {
	var zero core.Transaction

	date, err := parseDate(req.Date)
	if err != nil {
		return zero, err
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		return zero, core.ErrMissingCategory
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

	var rate decimal.Decimal
	if req.ExchangeRate != "" {
		if rate, err = core.ParseRate(req.ExchangeRate); err != nil {
			return zero, err
		}
	} else {
		rate = s.rates.Resolve(r.Context(), date)
	}

	tx := core.Transaction{
		ID:            uuid.New(),
		Date:          date,
		Type:          core.TransactionType(req.Type),
		CategoryID:    categoryID,
		PaymentMethod: core.PaymentMethod(req.PaymentMethod),
		Description:   req.Description,
		AmountARS:     ars,
		AmountUSD:     usd,
		ExchangeRate:  rate,
	}
	if req.BankAccountID != "" {
		id, err := uuid.Parse(req.BankAccountID)
		if err != nil {
			return zero, errors.New("invalid bank_account_id")
		}
		tx.BankAccountID = &id
	}
	if req.RecurringID != "" {
		id, err := uuid.Parse(req.RecurringID)
		if err != nil {
			return zero, errors.New("invalid recurring_id")
		}
		tx.RecurringID = &id
	}

	if err := tx.Validate(); err != nil {
		return zero, err
	}
	return tx, nil
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid transaction id"))
		return
	}
	tx, err := s.store.GetTransaction(r.Context(), id)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid transaction id"))
		return
	}
	if err := s.store.DeleteTransaction(r.Context(), id); err != nil {
		writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
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
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	writeJSON(w, http.StatusOK, out)
}
