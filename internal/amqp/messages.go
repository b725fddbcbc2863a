// Package amqp publishes ledger events: mirror requests for committed
// transactions and invalidation notices when a template's generated
// instances are dropped.
package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	KindMirror      = "mirror"
	KindInvalidated = "invalidated"
)

// LedgerEvent is the single message shape on the ledger queue. Mirror events
// carry the transaction to append to the backup sheet; invalidation events
// carry the template whose generated instances were deleted, so downstream
// consumers can drop any cached views.
type LedgerEvent struct {
	Kind          string    `json:"kind"`
	TransactionID uuid.UUID `json:"transaction_id,omitempty"`
	RecurringID   uuid.UUID `json:"recurring_id,omitempty"`
	Deleted       int64     `json:"deleted,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewMirrorEvent creates a mirror request for a committed transaction.
func NewMirrorEvent(transactionID uuid.UUID) *LedgerEvent {
	return &LedgerEvent{
		Kind:          KindMirror,
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

// NewInvalidatedEvent records that deleted generated instances of a template
// were dropped.
func NewInvalidatedEvent(recurringID uuid.UUID, deleted int64) *LedgerEvent {
	return &LedgerEvent{
		Kind:        KindInvalidated,
		RecurringID: recurringID,
		Deleted:     deleted,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the event to JSON bytes.
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON parses an event from JSON bytes.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
