package memory

import (
	"context"
	"fmt"
	"sync"

	"plata/internal/core"
)

// Store is an in-memory mirror used in development and tests.
type Store struct {
	mu   sync.Mutex
	rows []Row
	fail error
}

type Row struct {
	Transaction  core.Transaction
	CategoryName string
}

func New() *Store {
	return &Store{}
}

// FailWith makes every Append return err. Pass nil to restore normal behavior.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Append stores the transaction and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, tx core.Transaction, categoryName string) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.rows = append(s.rows, Row{Transaction: tx, CategoryName: categoryName})
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.rows...)
}
