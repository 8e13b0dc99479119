/*
store.go - Persistence interfaces for tuition data

PURPOSE:
  Defines the boundary between billing logic and the database. The overdue
  engine only ever sees what a LedgerReader hands it; how the rows are
  fetched and summed is the store's business.

KEY INTERFACES:
  LedgerReader: Active students + per-student paid totals (read side)
  Store:        LedgerReader plus the append-only payment writes

APPEND-ONLY CONTRACT:
  Payments have AppendPayment and nothing else. There is no Update or
  Delete; a mistaken payment is corrected by the office outside the ledger.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite file database
  - billing/store/memory.go: In-memory for testing
*/
package billing

import "context"

// LedgerReader supplies the inputs of the overdue engine. Implementations
// must return students in a stable order (by ID).
type LedgerReader interface {
	// ActiveStudents returns every student with the active flag set.
	ActiveStudents(ctx context.Context) ([]Student, error)

	// TotalPaidByStudent sums every payment per student, regardless of
	// payment date. Students without payments may be absent from the map.
	TotalPaidByStudent(ctx context.Context) (map[StudentID]Amount, error)
}

// ConsistentReader is implemented by readers that can return both halves
// of the ledger from a single snapshot. LoadTuitionFacts prefers it.
type ConsistentReader interface {
	ReadLedger(ctx context.Context) ([]Student, map[StudentID]Amount, error)
}

// Store handles persistence of students' payments.
type Store interface {
	LedgerReader

	// GetStudent returns nil, nil when the student doesn't exist.
	GetStudent(ctx context.Context, id StudentID) (*Student, error)

	// AppendPayment persists a payment and returns it with its ID assigned.
	// Returns ErrDuplicateIdempotencyKey if the key was used before.
	AppendPayment(ctx context.Context, p Payment) (Payment, error)

	// PaymentExists checks if an idempotency key already exists.
	PaymentExists(ctx context.Context, idempotencyKey string) (bool, error)

	// PaymentsByStudent returns a student's payments, oldest first.
	PaymentsByStudent(ctx context.Context, id StudentID) ([]Payment, error)
}
