package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/billing/store"
)

func newTestLedger(t *testing.T) (*billing.Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.PutStudent(student(1, "1000", 2024, 9))

	ledger := billing.NewLedger(mem)
	ledger.Now = func() time.Time { return date(2024, time.October, 12) }
	return ledger, mem
}

func TestLedger_RecordPayment_FillsFormDefaults(t *testing.T) {
	ledger, _ := newTestLedger(t)

	p, err := ledger.RecordPayment(context.Background(), billing.Payment{
		StudentID: 1,
		Amount:    tl("1000"),
	})
	require.NoError(t, err)

	assert.NotZero(t, p.ID)
	assert.Equal(t, billing.NewYearMonth(2024, time.October), p.Period)
	assert.Equal(t, "2024-10-12", billing.FormatDate(p.PaidOn))
	assert.Equal(t, billing.CurrencyTRY, p.Amount.Currency)
}

func TestLedger_RecordPayment_RejectsNonPositiveAmount(t *testing.T) {
	ledger, _ := newTestLedger(t)

	for _, amount := range []string{"0", "-10"} {
		_, err := ledger.RecordPayment(context.Background(), billing.Payment{StudentID: 1, Amount: tl(amount)})

		require.Error(t, err, "amount %s", amount)
		assert.ErrorIs(t, err, billing.ErrInvalidAmount)
		assert.True(t, billing.IsClientError(err))

		var fieldErr *billing.FieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, "amount", fieldErr.Field)
	}
}

func TestLedger_RecordPayment_RejectsInvalidMonth(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.RecordPayment(context.Background(), billing.Payment{
		StudentID: 1,
		Amount:    tl("100"),
		Period:    billing.NewYearMonth(2024, 13),
	})
	assert.ErrorIs(t, err, billing.ErrInvalidMonth)
}

func TestLedger_RecordPayment_UnknownStudent(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.RecordPayment(context.Background(), billing.Payment{StudentID: 99, Amount: tl("100")})
	assert.ErrorIs(t, err, billing.ErrStudentNotFound)
	assert.True(t, billing.IsNotFound(err))
}

func TestLedger_RecordPayment_DuplicateIdempotencyKey(t *testing.T) {
	// GIVEN: A payment form submitted once
	// WHEN: The same form is submitted again
	// THEN: The second submit is rejected and the total is unchanged

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	p := billing.Payment{StudentID: 1, Amount: tl("1000"), IdempotencyKey: "form-abc"}
	_, err := ledger.RecordPayment(ctx, p)
	require.NoError(t, err)

	_, err = ledger.RecordPayment(ctx, p)
	assert.ErrorIs(t, err, billing.ErrDuplicateIdempotencyKey)
	assert.True(t, billing.IsConflict(err))

	total, err := ledger.TotalPaid(ctx, 1)
	require.NoError(t, err)
	assertAmount(t, "1000", total, "total")
}

func TestLedger_TotalPaid_IgnoresPaymentDates(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for _, d := range []time.Time{date(2023, time.June, 1), date(2024, time.September, 2), date(2030, time.January, 1)} {
		_, err := ledger.RecordPayment(ctx, billing.Payment{StudentID: 1, Amount: tl("250.25"), PaidOn: d})
		require.NoError(t, err)
	}

	total, err := ledger.TotalPaid(ctx, 1)
	require.NoError(t, err)
	assertAmount(t, "750.75", total, "total")

	payments, err := ledger.Payments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, payments, 3)
	assert.True(t, payments[0].PaidOn.Before(payments[2].PaidOn), "ledger is ordered by date")
}

func TestParseDecimal_AcceptsCommaSeparator(t *testing.T) {
	d, err := billing.ParseDecimal(" 1250,50 ")
	require.NoError(t, err)
	assert.Equal(t, "1250.5", d.String())

	_, err = billing.ParseDecimal("abc")
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)

	_, err = billing.ParseDecimal("")
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)
}
