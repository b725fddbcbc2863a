// Package storage persists the ledger in SQLite. Amount and rate columns are
// stored as decimal strings so values round-trip without float drift.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"plata/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound signals that the requested row does not exist.
var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const transactionColumns = `id, booked_on, type, category_id, client_id, credit_card_id,
	bank_account_id, payment_method, description, amount_ars, amount_usd,
	exchange_rate, recurring_transaction_id`

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID.String(),
		tx.Date.Format(dateLayout),
		string(tx.Type),
		tx.CategoryID.String(),
		uuidPtrString(tx.ClientID),
		uuidPtrString(tx.CreditCardID),
		uuidPtrString(tx.BankAccountID),
		string(tx.PaymentMethod),
		tx.Description,
		tx.AmountARS.String(),
		tx.AmountUSD.String(),
		tx.ExchangeRate.String(),
		uuidPtrString(tx.RecurringID),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", tx.ID,
		"type", tx.Type,
		"date", tx.Date.Format(dateLayout),
		"amount_ars", tx.AmountARS.String(),
		"amount_usd", tx.AmountUSD.String())
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id.String())
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListTransactionsByMonth(ctx context.Context, year, month int) ([]core.Transaction, error) {
	first := core.NewDate(year, month, 1).Format(dateLayout)
	last := core.MonthEnd(year, month).Format(dateLayout)
	return r.listTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE booked_on BETWEEN ? AND ?
		ORDER BY booked_on, id`, first, last)
}

func (r *SQLiteRepository) ListTransactionsByYear(ctx context.Context, year int) ([]core.Transaction, error) {
	first := core.NewDate(year, 1, 1).Format(dateLayout)
	last := core.NewDate(year, 12, 31).Format(dateLayout)
	return r.listTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE booked_on BETWEEN ? AND ?
		ORDER BY booked_on, id`, first, last)
}

// ListDualAmountTransactions selects the legacy rows the reconciler repairs:
// both currency amounts populated.
func (r *SQLiteRepository) ListDualAmountTransactions(ctx context.Context) ([]core.Transaction, error) {
	return r.listTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE CAST(amount_ars AS REAL) > 0 AND CAST(amount_usd AS REAL) > 0
		ORDER BY booked_on, id`)
}

func (r *SQLiteRepository) UpdateTransactionAmounts(ctx context.Context, id uuid.UUID, ars, usd decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET amount_ars = ?, amount_usd = ? WHERE id = ?`,
		ars.String(), usd.String(), id.String())
	if err != nil {
		return fmt.Errorf("update transaction amounts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindInstance returns the materialized transaction generated by the given
// template for (year, month), or nil when the month has no instance yet.
func (r *SQLiteRepository) FindInstance(ctx context.Context, recurringID uuid.UUID, year, month int) (*core.Transaction, error) {
	first := core.NewDate(year, month, 1).Format(dateLayout)
	last := core.MonthEnd(year, month).Format(dateLayout)
	row := r.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE recurring_transaction_id = ? AND booked_on BETWEEN ? AND ?
		LIMIT 1`, recurringID.String(), first, last)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find instance: %w", err)
	}
	return &tx, nil
}

// DeleteInstances removes every transaction generated by the given template
// and returns how many rows were dropped. Generated instances are a derived
// cache, so this is safe whenever the template's amount changes.
func (r *SQLiteRepository) DeleteInstances(ctx context.Context, recurringID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM transactions WHERE recurring_transaction_id = ?`, recurringID.String())
	if err != nil {
		return 0, fmt.Errorf("delete instances: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete instances: rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) listTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

const recurringColumns = `id, category_id, description, day_of_month, amount_ars,
	amount_usd, exchange_rate, start_date, end_date, active`

func (r *SQLiteRepository) CreateRecurring(ctx context.Context, rt core.RecurringTransaction) error {
	var endDate any
	if !rt.EndDate.IsZero() {
		endDate = rt.EndDate.Format(dateLayout)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_transactions (`+recurringColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.ID.String(),
		rt.CategoryID.String(),
		rt.Description,
		rt.DayOfMonth,
		rt.AmountARS.String(),
		rt.AmountUSD.String(),
		rt.ExchangeRate.String(),
		rt.StartDate.Format(dateLayout),
		endDate,
		boolToInt(rt.Active),
	)
	if err != nil {
		return fmt.Errorf("insert recurring transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetRecurring(ctx context.Context, id uuid.UUID) (core.RecurringTransaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recurringColumns+` FROM recurring_transactions WHERE id = ?`, id.String())
	rt, err := scanRecurring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringTransaction{}, ErrNotFound
	}
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("get recurring transaction: %w", err)
	}
	return rt, nil
}

func (r *SQLiteRepository) ListRecurring(ctx context.Context, onlyActive bool) ([]core.RecurringTransaction, error) {
	query := `SELECT ` + recurringColumns + ` FROM recurring_transactions`
	if onlyActive {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY description, id`
	return r.listRecurring(ctx, query)
}

// ListDualAmountRecurring selects legacy templates with both currency
// amounts populated, for the reconciler.
func (r *SQLiteRepository) ListDualAmountRecurring(ctx context.Context) ([]core.RecurringTransaction, error) {
	return r.listRecurring(ctx, `
		SELECT `+recurringColumns+` FROM recurring_transactions
		WHERE CAST(amount_ars AS REAL) > 0 AND CAST(amount_usd AS REAL) > 0
		ORDER BY description, id`)
}

func (r *SQLiteRepository) UpdateRecurringAmounts(ctx context.Context, id uuid.UUID, ars, usd decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_transactions SET amount_ars = ?, amount_usd = ? WHERE id = ?`,
		ars.String(), usd.String(), id.String())
	if err != nil {
		return fmt.Errorf("update recurring amounts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) SetRecurringActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_transactions SET active = ? WHERE id = ?`,
		boolToInt(active), id.String())
	if err != nil {
		return fmt.Errorf("set recurring active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) listRecurring(ctx context.Context, query string, args ...any) ([]core.RecurringTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recurring transactions: %w", err)
	}
	defer rows.Close()

	var rts []core.RecurringTransaction
	for rows.Next() {
		rt, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring transaction: %w", err)
		}
		rts = append(rts, rt)
	}
	return rts, rows.Err()
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, type) VALUES (?, ?, ?)`,
		c.ID.String(), c.Name, string(c.Type))
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id uuid.UUID) (core.Category, error) {
	var c core.Category
	var rawID, typ string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, type FROM categories WHERE id = ?`, id.String()).
		Scan(&rawID, &c.Name, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	if c.ID, err = uuid.Parse(rawID); err != nil {
		return core.Category{}, fmt.Errorf("parse category id: %w", err)
	}
	c.Type = core.TransactionType(typ)
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, t core.TransactionType) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, type FROM categories WHERE type = ? ORDER BY name`, string(t))
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		var c core.Category
		var id, typ string
		if err := rows.Scan(&id, &c.Name, &typ); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse category id: %w", err)
		}
		c.Type = core.TransactionType(typ)
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// ListUnmirrored returns committed transactions not yet appended to the
// backup spreadsheet, oldest first.
func (r *SQLiteRepository) ListUnmirrored(ctx context.Context, limit int) ([]core.Transaction, error) {
	return r.listTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE mirrored_at IS NULL
		ORDER BY booked_on, id
		LIMIT ?`, limit)
}

func (r *SQLiteRepository) MarkMirrored(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET mirrored_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id.String())
	if err != nil {
		return fmt.Errorf("mark mirrored: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		tx                             core.Transaction
		id, bookedOn, typ, categoryID  string
		method, ars, usd, rate         string
		clientID, cardID, bankID, recID sql.NullString
	)
	err := row.Scan(&id, &bookedOn, &typ, &categoryID, &clientID, &cardID,
		&bankID, &method, &tx.Description, &ars, &usd, &rate, &recID)
	if err != nil {
		return core.Transaction{}, err
	}

	if tx.ID, err = uuid.Parse(id); err != nil {
		return core.Transaction{}, fmt.Errorf("parse id: %w", err)
	}
	day, err := time.Parse(dateLayout, bookedOn)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse booked_on: %w", err)
	}
	tx.Date = core.Date{Time: day}
	tx.Type = core.TransactionType(typ)
	if tx.CategoryID, err = uuid.Parse(categoryID); err != nil {
		return core.Transaction{}, fmt.Errorf("parse category id: %w", err)
	}
	tx.PaymentMethod = core.PaymentMethod(method)
	if tx.AmountARS, err = decimal.NewFromString(ars); err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount_ars: %w", err)
	}
	if tx.AmountUSD, err = decimal.NewFromString(usd); err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount_usd: %w", err)
	}
	if tx.ExchangeRate, err = decimal.NewFromString(rate); err != nil {
		return core.Transaction{}, fmt.Errorf("parse exchange_rate: %w", err)
	}
	if tx.ClientID, err = parseUUIDPtr(clientID); err != nil {
		return core.Transaction{}, err
	}
	if tx.CreditCardID, err = parseUUIDPtr(cardID); err != nil {
		return core.Transaction{}, err
	}
	if tx.BankAccountID, err = parseUUIDPtr(bankID); err != nil {
		return core.Transaction{}, err
	}
	if tx.RecurringID, err = parseUUIDPtr(recID); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func scanRecurring(row rowScanner) (core.RecurringTransaction, error) {
	var (
		rt                          core.RecurringTransaction
		id, categoryID, start       string
		ars, usd, rate              string
		end                         sql.NullString
		active                      int
	)
	err := row.Scan(&id, &categoryID, &rt.Description, &rt.DayOfMonth,
		&ars, &usd, &rate, &start, &end, &active)
	if err != nil {
		return core.RecurringTransaction{}, err
	}

	if rt.ID, err = uuid.Parse(id); err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("parse id: %w", err)
	}
	if rt.CategoryID, err = uuid.Parse(categoryID); err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("parse category id: %w", err)
	}
	if rt.AmountARS, err = decimal.NewFromString(ars); err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("parse amount_ars: %w", err)
	}
	if rt.AmountUSD, err = decimal.NewFromString(usd); err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("parse amount_usd: %w", err)
	}
	if rt.ExchangeRate, err = decimal.NewFromString(rate); err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("parse exchange_rate: %w", err)
	}
	startDay, err := time.Parse(dateLayout, start)
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("parse start_date: %w", err)
	}
	rt.StartDate = core.Date{Time: startDay}
	if end.Valid {
		endDay, err := time.Parse(dateLayout, end.String)
		if err != nil {
			return core.RecurringTransaction{}, fmt.Errorf("parse end_date: %w", err)
		}
		rt.EndDate = core.Date{Time: endDay}
	}
	rt.Active = active != 0
	return rt, nil
}

func parseUUIDPtr(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, fmt.Errorf("parse uuid: %w", err)
	}
	return &id, nil
}

func uuidPtrString(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
