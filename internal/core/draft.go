package core

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionDraft is a synthesized transaction with no identity: a
// placeholder shown for a recurring template's month until the user commits
// it. Drafts are recomputed on every view request and never persisted.
type TransactionDraft struct {
	Date         Date
	Type         TransactionType
	CategoryID   uuid.UUID
	Description  string
	AmountARS    decimal.Decimal
	AmountUSD    decimal.Decimal
	ExchangeRate decimal.Decimal
	RecurringID  uuid.UUID
}

// Commit turns the draft into a persistable transaction. PaymentMethod is
// the caller's to fill in: the user chooses it when saving the placeholder.
func (d TransactionDraft) Commit(id uuid.UUID, method PaymentMethod) Transaction {
	rid := d.RecurringID
	return Transaction{
		ID:            id,
		Date:          d.Date,
		Type:          d.Type,
		CategoryID:    d.CategoryID,
		PaymentMethod: method,
		Description:   d.Description,
		AmountARS:     d.AmountARS,
		AmountUSD:     d.AmountUSD,
		ExchangeRate:  d.ExchangeRate,
		RecurringID:   &rid,
	}
}
