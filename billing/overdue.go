/*
overdue.go - Overdue tuition accrual

PURPOSE:
  Works out, per active student, how much tuition should have been paid by
  the current month and how far the recorded payments fall short.

SCHOOL YEAR MODEL:
  Tuition accrues for exactly 9 billable months starting with the
  enrollment month, which itself counts: a student enrolled this month
  already owes one month. Months before enrollment accrue nothing and
  nothing accrues after the 9th month.

    months_passed   = clamp(today_index - start_index + 1, 0, 9)
    expected_so_far = monthly_fee * months_passed
    annual_total    = monthly_fee * 9
    overdue         = max(expected_so_far - total_paid, 0)
    remaining_year  = max(annual_total - total_paid, 0)

  A student is reported only when overdue is strictly above 1 currency
  unit.

SKIPS (not errors):
  - Monthly fee missing or <= 0
  - Enrollment year or month missing

The functions here are pure: no I/O, no clock, no shared state.
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BillableMonths is the length of the school year in billed months.
const BillableMonths = 9

// materialityThreshold is the overdue amount a student must exceed to be reported.
var materialityThreshold = decimal.NewFromInt(1)

// TuitionFacts is one student and everything paid against them.
type TuitionFacts struct {
	Student   Student
	TotalPaid Amount
}

// OverdueRecord is the accrual state of one student.
type OverdueRecord struct {
	Student       Student
	MonthsPassed  int
	TotalPaid     Amount
	AnnualTotal   Amount
	ExpectedSoFar Amount
	OverdueAmount Amount
	RemainingYear Amount
}

// IsOverdue reports whether the record passes the materiality threshold.
func (r OverdueRecord) IsOverdue() bool {
	return r.OverdueAmount.Value.GreaterThan(materialityThreshold)
}

// BilledMonths counts the billable months from start through current,
// inclusive of both, bounded to [0, BillableMonths].
func BilledMonths(start, current YearMonth) int {
	n := current.Index() - start.Index() + 1
	if n < 0 {
		return 0
	}
	if n > BillableMonths {
		return BillableMonths
	}
	return n
}

// Accrue computes the accrual state of one student as of the given month.
// ok is false when the student has no positive fee or no enrollment month.
func Accrue(current YearMonth, f TuitionFacts) (OverdueRecord, bool) {
	fee := f.Student.MonthlyFee
	if !fee.IsPositive() {
		return OverdueRecord{}, false
	}
	start, ok := f.Student.Enrollment()
	if !ok {
		return OverdueRecord{}, false
	}

	paid := f.TotalPaid
	if paid.Currency == "" {
		paid = Amount{Value: paid.Value, Currency: fee.Currency}
	}

	months := BilledMonths(start, current)
	expected := fee.MulInt(months)
	annual := fee.MulInt(BillableMonths)

	return OverdueRecord{
		Student:       f.Student,
		MonthsPassed:  months,
		TotalPaid:     paid,
		AnnualTotal:   annual,
		ExpectedSoFar: expected,
		OverdueAmount: expected.Sub(paid).ClampZero(),
		RemainingYear: annual.Sub(paid).ClampZero(),
	}, true
}

// ComputeOverdue returns the students owing more than the materiality
// threshold as of asOf, in input order. Only the year and month of asOf
// are used. The result is never nil.
func ComputeOverdue(asOf time.Time, facts []TuitionFacts) []OverdueRecord {
	current := YearMonthOf(asOf)
	out := make([]OverdueRecord, 0)
	for _, f := range facts {
		rec, ok := Accrue(current, f)
		if !ok || !rec.IsOverdue() {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// LoadTuitionFacts reads active students and their paid totals and joins
// them. Students without payments get a zero total.
func LoadTuitionFacts(ctx context.Context, r LedgerReader) ([]TuitionFacts, error) {
	students, paid, err := readLedger(ctx, r)
	if err != nil {
		return nil, err
	}

	facts := make([]TuitionFacts, 0, len(students))
	for _, s := range students {
		total, ok := paid[s.ID]
		if !ok {
			total = s.MonthlyFee.Zero()
		}
		facts = append(facts, TuitionFacts{Student: s, TotalPaid: total})
	}
	return facts, nil
}

func readLedger(ctx context.Context, r LedgerReader) ([]Student, map[StudentID]Amount, error) {
	if cr, ok := r.(ConsistentReader); ok {
		return cr.ReadLedger(ctx)
	}
	students, err := r.ActiveStudents(ctx)
	if err != nil {
		return nil, nil, err
	}
	paid, err := r.TotalPaidByStudent(ctx)
	if err != nil {
		return nil, nil, err
	}
	return students, paid, nil
}

// OverdueReport loads the facts from r and runs the engine as of asOf.
func OverdueReport(ctx context.Context, r LedgerReader, asOf time.Time) ([]OverdueRecord, error) {
	facts, err := LoadTuitionFacts(ctx, r)
	if err != nil {
		return nil, err
	}
	return ComputeOverdue(asOf, facts), nil
}
