/*
ledger.go - Append-only tuition payment log

PURPOSE:
  The Ledger is the source of truth for what each family has paid. The
  paid total is always computed by summing payments; there is no separate
  "balance" column that could drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. POSITIVE: Every payment amount is strictly positive.
  3. IDEMPOTENT: Same idempotency key = same payment (no duplicates).

DEFAULTS (as the office form behaves):
  - Missing tuition period: the current year/month
  - Missing payment date: today

SEE ALSO:
  - store.go: Low-level persistence interface
  - overdue.go: Consumes paid totals
*/
package billing

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store Store
	Now   func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store, Now: time.Now}
}

// RecordPayment validates p, fills the form defaults and appends it.
func (l *Ledger) RecordPayment(ctx context.Context, p Payment) (Payment, error) {
	now := l.now()

	if !p.Amount.IsPositive() {
		return Payment{}, &FieldError{Field: "amount", Err: fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)}
	}
	if p.Period.IsZero() {
		p.Period = YearMonthOf(now)
	}
	if !p.Period.Valid() {
		return Payment{}, &FieldError{Field: "month", Err: ErrInvalidMonth}
	}
	if p.PaidOn.IsZero() {
		p.PaidOn = DateOf(now)
	} else {
		p.PaidOn = DateOf(p.PaidOn)
	}
	if p.Amount.Currency == "" {
		p.Amount.Currency = DefaultCurrency
	}

	student, err := l.Store.GetStudent(ctx, p.StudentID)
	if err != nil {
		return Payment{}, fmt.Errorf("failed to load student %d: %w", p.StudentID, err)
	}
	if student == nil {
		return Payment{}, ErrStudentNotFound
	}

	if p.IdempotencyKey != "" {
		exists, err := l.Store.PaymentExists(ctx, p.IdempotencyKey)
		if err != nil {
			return Payment{}, err
		}
		if exists {
			return Payment{}, ErrDuplicateIdempotencyKey
		}
	}

	p.CreatedAt = now.UTC()
	return l.Store.AppendPayment(ctx, p)
}

// Payments returns a student's ledger, oldest first.
func (l *Ledger) Payments(ctx context.Context, id StudentID) ([]Payment, error) {
	return l.Store.PaymentsByStudent(ctx, id)
}

// TotalPaid sums a student's ledger.
func (l *Ledger) TotalPaid(ctx context.Context, id StudentID) (Amount, error) {
	payments, err := l.Store.PaymentsByStudent(ctx, id)
	if err != nil {
		return Amount{}, err
	}
	total := ZeroAmount()
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total, nil
}

func (l *Ledger) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}
