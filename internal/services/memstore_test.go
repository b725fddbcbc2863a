package services

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"plata/internal/amqp"
	"plata/internal/core"
)

var errStoreDown = errors.New("store down")

// memStore is an in-memory stand-in for the sqlite repository, with
// switchable failure injection for the cascade paths.
type memStore struct {
	txs        map[uuid.UUID]core.Transaction
	recurring  map[uuid.UUID]core.RecurringTransaction
	categories map[uuid.UUID]core.Category

	failUpdateTx        map[uuid.UUID]bool
	failDeleteInstances bool
	failUpdateRecurring bool

	deleteInstanceCalls int
}

func newMemStore() *memStore {
	return &memStore{
		txs:          make(map[uuid.UUID]core.Transaction),
		recurring:    make(map[uuid.UUID]core.RecurringTransaction),
		categories:   make(map[uuid.UUID]core.Category),
		failUpdateTx: make(map[uuid.UUID]bool),
	}
}

func (s *memStore) addCategory(name string, typ core.TransactionType) core.Category {
	c := core.Category{ID: uuid.New(), Name: name, Type: typ}
	s.categories[c.ID] = c
	return c
}

func (s *memStore) ListDualAmountTransactions(context.Context) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.AmountARS.IsPositive() && tx.AmountUSD.IsPositive() {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *memStore) UpdateTransactionAmounts(_ context.Context, id uuid.UUID, ars, usd decimal.Decimal) error {
	if s.failUpdateTx[id] {
		return errStoreDown
	}
	tx, ok := s.txs[id]
	if !ok {
		return errors.New("not found")
	}
	tx.AmountARS, tx.AmountUSD = ars, usd
	s.txs[id] = tx
	return nil
}

func (s *memStore) ListDualAmountRecurring(context.Context) ([]core.RecurringTransaction, error) {
	var out []core.RecurringTransaction
	for _, rt := range s.recurring {
		if rt.AmountARS.IsPositive() && rt.AmountUSD.IsPositive() {
			out = append(out, rt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *memStore) UpdateRecurringAmounts(_ context.Context, id uuid.UUID, ars, usd decimal.Decimal) error {
	if s.failUpdateRecurring {
		return errStoreDown
	}
	rt, ok := s.recurring[id]
	if !ok {
		return errors.New("not found")
	}
	rt.AmountARS, rt.AmountUSD = ars, usd
	s.recurring[id] = rt
	return nil
}

func (s *memStore) DeleteInstances(_ context.Context, recurringID uuid.UUID) (int64, error) {
	s.deleteInstanceCalls++
	if s.failDeleteInstances {
		return 0, errStoreDown
	}
	var n int64
	for id, tx := range s.txs {
		if tx.RecurringID != nil && *tx.RecurringID == recurringID {
			delete(s.txs, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) FindInstance(_ context.Context, recurringID uuid.UUID, year, month int) (*core.Transaction, error) {
	for _, tx := range s.txs {
		if tx.RecurringID != nil && *tx.RecurringID == recurringID && tx.Date.SameMonth(year, month) {
			found := tx
			return &found, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetRecurring(_ context.Context, id uuid.UUID) (core.RecurringTransaction, error) {
	rt, ok := s.recurring[id]
	if !ok {
		return core.RecurringTransaction{}, errors.New("not found")
	}
	return rt, nil
}

func (s *memStore) ListRecurring(_ context.Context, onlyActive bool) ([]core.RecurringTransaction, error) {
	var out []core.RecurringTransaction
	for _, rt := range s.recurring {
		if onlyActive && !rt.Active {
			continue
		}
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *memStore) GetCategory(_ context.Context, id uuid.UUID) (core.Category, error) {
	c, ok := s.categories[id]
	if !ok {
		return core.Category{}, errors.New("not found")
	}
	return c, nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	events []*amqp.LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e *amqp.LedgerEvent) error {
	p.events = append(p.events, e)
	return nil
}

// fixedRates resolves every date and month to fixed values.
type fixedRates struct {
	byMonth map[string]decimal.Decimal
	def     decimal.Decimal
}

func (f *fixedRates) key(year, month int) string {
	return core.NewDate(year, month, 1).Format("2006-01")
}

func (f *fixedRates) Resolve(_ context.Context, date core.Date) decimal.Decimal {
	if r, ok := f.byMonth[f.key(date.Year(), date.Month())]; ok {
		return r
	}
	return f.def
}

func (f *fixedRates) ResolveMonth(_ context.Context, year, month int) decimal.Decimal {
	if r, ok := f.byMonth[f.key(year, month)]; ok {
		return r
	}
	return f.def
}
