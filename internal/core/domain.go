package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

const (
	Cash        PaymentMethod = "CASH"
	MercadoPago PaymentMethod = "MERCADOPAGO"
	BankAccount PaymentMethod = "BANK_ACCOUNT"
	Crypto      PaymentMethod = "CRYPTO"
)

const (
	ARS Currency = "ARS"
	USD Currency = "USD"
)

type (
	TransactionType string

	PaymentMethod string

	Currency string

	Date struct {
		time.Time
	}

	// Transaction is a single booked movement. Exactly one of AmountARS and
	// AmountUSD is non-zero; the other currency is derived from ExchangeRate
	// on read (EffectiveARS / EffectiveUSD).
	Transaction struct {
		ID            uuid.UUID
		Date          Date
		Type          TransactionType
		CategoryID    uuid.UUID
		ClientID      *uuid.UUID
		CreditCardID  *uuid.UUID
		BankAccountID *uuid.UUID
		PaymentMethod PaymentMethod
		Description   string
		AmountARS     decimal.Decimal
		AmountUSD     decimal.Decimal
		// ARS per USD at booking time. Immutable once set.
		ExchangeRate decimal.Decimal
		// RecurringID links back to the template that generated this row.
		// Nil for manually entered transactions.
		RecurringID *uuid.UUID
	}

	// RecurringTransaction is a monthly template. Generated instances are a
	// derived cache: editing the authoritative amount deletes them so they
	// regenerate with the corrected value.
	RecurringTransaction struct {
		ID           uuid.UUID
		CategoryID   uuid.UUID
		Description  string
		DayOfMonth   int
		AmountARS    decimal.Decimal
		AmountUSD    decimal.Decimal
		ExchangeRate decimal.Decimal
		StartDate    Date
		EndDate      Date // zero value means open-ended
		Active       bool
	}

	Category struct {
		ID   uuid.UUID
		Name string
		Type TransactionType
	}
)

var (
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidMethod      = errors.New("invalid payment method")
	ErrMissingCategory    = errors.New("missing category")
	ErrMissingBankAccount = errors.New("payment method BANK_ACCOUNT requires a bank account")
	ErrNoAmount           = errors.New("no amount entered")
	ErrDualAmounts        = errors.New("both currency amounts entered")
	ErrNegativeAmount     = errors.New("negative amount")
	ErrInvalidRate        = errors.New("invalid exchange rate")
	ErrInvalidDay         = errors.New("invalid day of month")
	ErrEmptyDescription   = errors.New("empty description")
	ErrInvalidWindow      = errors.New("end date before start date")
)

// NewDate creates a new Date from year, month, day at UTC midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// MonthEnd returns the last calendar day of the given month.
func MonthEnd(year, month int) Date {
	return Date{Time: time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)}
}

// DaysIn returns the number of days in the given month.
func DaysIn(year, month int) int {
	return MonthEnd(year, month).Time.Day()
}

// ClampedDate builds a date for (year, month, day), clamping day to the last
// valid day of that month (e.g. day 31 in February yields the 28th or 29th).
func ClampedDate(year, month, day int) Date {
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return NewDate(year, month, day)
}

// Day returns the day of the month.
func (d Date) Day() int { return d.Time.Day() }

// Month returns the month as 1-12.
func (d Date) Month() int { return int(d.Time.Month()) }

// Year returns the year.
func (d Date) Year() int { return d.Time.Year() }

// SameMonth reports whether the date falls in (year, month).
func (d Date) SameMonth(year, month int) bool {
	return d.Year() == year && d.Month() == month
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case Cash, MercadoPago, BankAccount, Crypto:
		return true
	}
	return false
}

// Authoritative returns the currency the user actually entered. The other
// side is always derived. Only meaningful once the one-amount invariant
// holds.
func (t Transaction) Authoritative() Currency {
	if t.AmountUSD.IsPositive() && t.AmountARS.IsZero() {
		return USD
	}
	return ARS
}

// EffectiveARS returns the ARS value of the transaction, deriving it from
// the stored exchange rate when USD is the authoritative side.
func (t Transaction) EffectiveARS() decimal.Decimal {
	if !t.AmountARS.IsZero() {
		return t.AmountARS
	}
	return t.AmountUSD.Mul(t.ExchangeRate)
}

// EffectiveUSD returns the USD value of the transaction, deriving it from
// the stored exchange rate when ARS is the authoritative side.
func (t Transaction) EffectiveUSD() decimal.Decimal {
	if !t.AmountUSD.IsZero() {
		return t.AmountUSD
	}
	if !t.ExchangeRate.IsPositive() {
		return decimal.Zero
	}
	return t.AmountARS.Div(t.ExchangeRate)
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if t.CategoryID == uuid.Nil {
		return ErrMissingCategory
	}
	if !t.PaymentMethod.Valid() {
		return ErrInvalidMethod
	}
	if t.PaymentMethod == BankAccount && t.BankAccountID == nil {
		return ErrMissingBankAccount
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return validateAmounts(t.AmountARS, t.AmountUSD, t.ExchangeRate)
}

// Authoritative returns the currency the template's amount was entered in.
func (r RecurringTransaction) Authoritative() Currency {
	if r.AmountUSD.IsPositive() && r.AmountARS.IsZero() {
		return USD
	}
	return ARS
}

// CoversMonth reports whether (year, month) falls inside the template's
// [StartDate, EndDate] window. A zero EndDate means open-ended.
func (r RecurringTransaction) CoversMonth(year, month int) bool {
	start := r.StartDate
	if year < start.Year() || (year == start.Year() && month < start.Month()) {
		return false
	}
	if r.EndDate.IsZero() {
		return true
	}
	end := r.EndDate
	if year > end.Year() || (year == end.Year() && month > end.Month()) {
		return false
	}
	return true
}

func (r RecurringTransaction) Validate() error {
	if r.CategoryID == uuid.Nil {
		return ErrMissingCategory
	}
	if len(strings.TrimSpace(r.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(r.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
		return ErrInvalidDay
	}
	if err := r.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate.Time) {
		return ErrInvalidWindow
	}
	return validateAmounts(r.AmountARS, r.AmountUSD, r.ExchangeRate)
}

// validateAmounts enforces the one-authoritative-currency rule on writes.
// Legacy rows with both sides populated exist in old data and are repaired
// by the reconciler; new writes reject them outright.
func validateAmounts(ars, usd, rate decimal.Decimal) error {
	if ars.IsNegative() || usd.IsNegative() {
		return ErrNegativeAmount
	}
	if ars.IsZero() && usd.IsZero() {
		return ErrNoAmount
	}
	if !ars.IsZero() && !usd.IsZero() {
		return ErrDualAmounts
	}
	if !rate.IsPositive() {
		return ErrInvalidRate
	}
	return nil
}
