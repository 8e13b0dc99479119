package billing

// =============================================================================
// SUMMARIES - Aggregates shown on the dashboard and in reports
// =============================================================================

// Profit is income minus expense over some period. Profit may be negative.
type Profit struct {
	Income  Amount
	Expense Amount
	Profit  Amount
}

func NewProfit(income, expense Amount) Profit {
	return Profit{Income: income, Expense: expense, Profit: income.Sub(expense)}
}

// DateSummary aggregates the payments of a single day.
type DateSummary struct {
	StudentCount int
	PaymentCount int
	Total        Amount
}

// SummarizePayments counts distinct payers and sums the amounts.
func SummarizePayments(payments []PaymentView) DateSummary {
	students := make(map[StudentID]struct{})
	total := ZeroAmount()
	for _, p := range payments {
		students[p.StudentID] = struct{}{}
		total = total.Add(p.Amount)
	}
	return DateSummary{
		StudentCount: len(students),
		PaymentCount: len(payments),
		Total:        total,
	}
}

// SumPayments adds the payment amounts.
func SumPayments(payments []PaymentView) Amount {
	total := ZeroAmount()
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

// SumExpenses adds the expense amounts.
func SumExpenses(expenses []ExpenseView) Amount {
	total := ZeroAmount()
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}
