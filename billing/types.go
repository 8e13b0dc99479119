/*
Package billing provides the tuition and expense bookkeeping engine.

PURPOSE:
  This package holds the money side of the shuttle service: students as
  tuition payers, the append-only payment ledger, operating expenses and
  the overdue accrual engine that tells the office who is behind on
  tuition.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A currency value backed by decimal.Decimal
  - Student: One enrolled child and the facts tuition accrues against
  - Payment: An immutable ledger entry (never updated, never deleted)
  - Expense: An operating cost, optionally tied to a vehicle

DESIGN PRINCIPLES:
  1. Immutability: Payments are appended, never edited
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing student/payment IDs

SEE ALSO:
  - overdue.go: Overdue accrual engine
  - ledger.go: Payment ledger on top of Store
  - store.go: Persistence interfaces
*/
package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Currency value
// =============================================================================

type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

type Currency string

const (
	CurrencyTRY Currency = "TRY"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// DefaultCurrency is used when amounts are built without an explicit currency.
var DefaultCurrency = CurrencyTRY

func NewAmount(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Currency: DefaultCurrency}
}

func NewAmountFromInt(value int64) Amount {
	return Amount{Value: decimal.NewFromInt(value), Currency: DefaultCurrency}
}

func NewAmountFromDecimal(value decimal.Decimal) Amount {
	return Amount{Value: value, Currency: DefaultCurrency}
}

func ZeroAmount() Amount { return NewAmountFromDecimal(decimal.Zero) }

// ParseDecimal parses user input. A comma is accepted as the decimal separator.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Currency: a.Currency} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Currency: a.Currency} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Currency: a.Currency} }
func (a Amount) MulInt(n int) Amount          { return a.Mul(decimal.NewFromInt(int64(n))) }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) Float64() float64             { return a.Value.InexactFloat64() }

// ClampZero returns the amount, or zero when it is negative.
func (a Amount) ClampZero() Amount {
	if a.IsNegative() {
		return a.Zero()
	}
	return a
}

// String renders two decimals followed by the currency, e.g. "1250.50 TRY".
func (a Amount) String() string {
	return a.Value.StringFixed(2) + " " + string(a.Currency)
}

// Sum adds amounts, starting from zero in the default currency.
func Sum(amounts ...Amount) Amount {
	total := ZeroAmount()
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID int64
type PaymentID int64
type ExpenseID int64

// =============================================================================
// STUDENT
// =============================================================================

// Student is one enrolled child. MonthlyFee is zero when no fee was recorded;
// StartYear/StartMonth are nil when the enrollment date is unknown.
type Student struct {
	ID         StudentID
	Name       string
	School     string
	ParentName string
	Phone      string
	MonthlyFee Amount
	StartYear  *int
	StartMonth *int
	Active     bool
}

// Enrollment returns the first billable month. ok is false when either the
// year or the month is missing.
func (s Student) Enrollment() (YearMonth, bool) {
	if s.StartYear == nil || s.StartMonth == nil {
		return YearMonth{}, false
	}
	return NewYearMonth(*s.StartYear, time.Month(*s.StartMonth)), true
}

// =============================================================================
// PAYMENT - Append-only ledger entry
// =============================================================================

type Payment struct {
	ID        PaymentID
	StudentID StudentID
	// Period is the tuition month the office booked the payment against.
	Period      YearMonth
	PaidOn      time.Time
	Amount      Amount
	Description string

	// IdempotencyKey rejects a repeated submission of the same payment form.
	IdempotencyKey string
	CreatedBy      string
	CreatedAt      time.Time
}

// PaymentView is a payment joined with the payer's name for listings.
type PaymentView struct {
	Payment
	StudentName string
}

// =============================================================================
// EXPENSE
// =============================================================================

type Expense struct {
	ID ExpenseID
	// VehicleID is nil for general expenses not tied to a vehicle.
	VehicleID   *int64
	SpentOn     time.Time
	Category    string
	Amount      Amount
	Description string
}

// ExpenseView is an expense joined with the vehicle plate ("Genel" when general).
type ExpenseView struct {
	Expense
	VehiclePlate string
}

// GeneralExpenseLabel is shown instead of a plate for general expenses.
const GeneralExpenseLabel = "Genel"
