// Package store provides billing.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/shuttle-admin/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	students    map[billing.StudentID]billing.Student
	payments    map[billing.StudentID][]billing.Payment
	idempotency map[string]bool
	nextPayment billing.PaymentID
}

func NewMemory() *Memory {
	return &Memory{
		students:    make(map[billing.StudentID]billing.Student),
		payments:    make(map[billing.StudentID][]billing.Payment),
		idempotency: make(map[string]bool),
	}
}

// PutStudent inserts or replaces a student.
func (m *Memory) PutStudent(s billing.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
}

func (m *Memory) GetStudent(_ context.Context, id billing.StudentID) (*billing.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) ActiveStudents(_ context.Context) ([]billing.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Student
	for _, s := range m.students {
		if s.Active {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) TotalPaidByStudent(_ context.Context) (map[billing.StudentID]billing.Amount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := make(map[billing.StudentID]billing.Amount, len(m.payments))
	for id, payments := range m.payments {
		total := billing.ZeroAmount()
		for _, p := range payments {
			total = total.Add(p.Amount)
		}
		totals[id] = total
	}
	return totals, nil
}

// AppendPayment adds a single payment. Append-only.
func (m *Memory) AppendPayment(_ context.Context, p billing.Payment) (billing.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.IdempotencyKey != "" && m.idempotency[p.IdempotencyKey] {
		return billing.Payment{}, billing.ErrDuplicateIdempotencyKey
	}

	m.nextPayment++
	p.ID = m.nextPayment

	txs := m.payments[p.StudentID]
	// Keep each student's ledger ordered by payment date.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].PaidOn.After(p.PaidOn)
	})
	txs = append(txs, billing.Payment{})
	copy(txs[i+1:], txs[i:])
	txs[i] = p
	m.payments[p.StudentID] = txs

	if p.IdempotencyKey != "" {
		m.idempotency[p.IdempotencyKey] = true
	}
	return p, nil
}

func (m *Memory) PaymentExists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Memory) PaymentsByStudent(_ context.Context, id billing.StudentID) ([]billing.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]billing.Payment, len(m.payments[id]))
	copy(result, m.payments[id])
	return result, nil
}
