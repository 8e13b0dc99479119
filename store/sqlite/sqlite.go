/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  The whole office runs on one SQLite file. This package owns the schema
  and every query; the domain packages only see the interfaces below.

INTERFACES IMPLEMENTED:
  billing.LedgerReader:    Active students + paid totals (overdue engine)
  billing.ConsistentReader: Both of the above from one read transaction
  billing.Store:           Append-only payment ledger
  fleet.TxAssignmentStore: Atomic student-to-vehicle moves
  backup.Snapshotter:      Meta key/value + consistent file snapshots

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statement touches the payments table
  - Students are deactivated, never deleted
  - Vehicle assignments are closed, never deleted

MONEY:
  Amounts are stored as decimal strings and summed with decimal.Decimal
  in Go, so totals are exact. Databases created by older versions of the
  office tool stored REAL values; those scan into the same string columns.

LEGACY DATABASES:
  New upgrades an older file in place: missing columns are added with
  ALTER TABLE and the idempotency key gets a unique index. Older files
  declare students.monthly_fee NOT NULL, so a zero fee is stored as 0.

CONCURRENCY:
  One open connection (SQLite has a single writer anyway) plus a
  sync.RWMutex around each public method. Methods used inside a
  transaction take the transaction handle explicitly and never lock.

USAGE:
  store, err := sqlite.New("./servis_takip.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/fleet"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sqlx.DB
	mu sync.RWMutex
}

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		school TEXT,
		parent_name TEXT,
		phone TEXT,
		monthly_fee TEXT,
		start_year INTEGER,
		start_month INTEGER,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	-- Payments (append-only ledger)
	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id INTEGER NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		pay_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT,
		description TEXT,
		idempotency_key TEXT UNIQUE,
		created_by TEXT,
		created_at TEXT,
		FOREIGN KEY(student_id) REFERENCES students(id)
	);

	CREATE INDEX IF NOT EXISTS idx_payments_student
		ON payments(student_id);
	CREATE INDEX IF NOT EXISTS idx_payments_pay_date
		ON payments(pay_date);

	CREATE TABLE IF NOT EXISTS vehicles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		plate TEXT NOT NULL,
		name TEXT,
		capacity INTEGER,
		route TEXT,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS student_vehicle (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id INTEGER NOT NULL,
		vehicle_id INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		FOREIGN KEY(student_id) REFERENCES students(id),
		FOREIGN KEY(vehicle_id) REFERENCES vehicles(id)
	);

	CREATE INDEX IF NOT EXISTS idx_student_vehicle_vehicle
		ON student_vehicle(vehicle_id);
	-- A student rides at most one vehicle at a time
	CREATE UNIQUE INDEX IF NOT EXISTS idx_student_vehicle_one_open
		ON student_vehicle(student_id) WHERE end_date IS NULL;

	CREATE TABLE IF NOT EXISTS expenses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vehicle_id INTEGER,
		exp_date TEXT NOT NULL,
		category TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT,
		description TEXT,
		FOREIGN KEY(vehicle_id) REFERENCES vehicles(id)
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_exp_date
		ON expenses(exp_date);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		full_name TEXT,
		role TEXT
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.upgrade()
}

// legacyColumns are columns missing from databases written by older
// versions of the office tool. CREATE TABLE IF NOT EXISTS leaves those
// tables alone, so the columns are added here.
var legacyColumns = []struct {
	table, column, decl string
}{
	{"payments", "currency", "TEXT"},
	{"payments", "idempotency_key", "TEXT"},
	{"payments", "created_by", "TEXT"},
	{"payments", "created_at", "TEXT"},
	{"vehicles", "route", "TEXT"},
	{"expenses", "currency", "TEXT"},
}

// upgrade brings an existing database up to the current schema.
func (s *Store) upgrade() error {
	for _, c := range legacyColumns {
		_, err := s.db.Exec(`ALTER TABLE ` + c.table + ` ADD COLUMN ` + c.column + ` ` + c.decl)
		if err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("failed to add %s.%s: %w", c.table, c.column, err)
		}
	}

	// ADD COLUMN cannot carry UNIQUE; NULL keys never collide.
	_, err := s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_idempotency_key
		ON payments(idempotency_key)`)
	return err
}

// SQLite reports this as a generic SQLITE_ERROR; only the message is specific.
func isDuplicateColumnError(err error) bool {
	return strings.Contains(err.Error(), "duplicate column name")
}

// =============================================================================
// STUDENTS
// =============================================================================

type studentRow struct {
	ID         int64          `db:"id"`
	Name       string         `db:"name"`
	School     sql.NullString `db:"school"`
	ParentName sql.NullString `db:"parent_name"`
	Phone      sql.NullString `db:"phone"`
	MonthlyFee sql.NullString `db:"monthly_fee"`
	StartYear  sql.NullInt64  `db:"start_year"`
	StartMonth sql.NullInt64  `db:"start_month"`
	IsActive   bool           `db:"is_active"`
}

const studentColumns = `id, name, school, parent_name, phone, monthly_fee, start_year, start_month, is_active`

func (r studentRow) toStudent() billing.Student {
	s := billing.Student{
		ID:         billing.StudentID(r.ID),
		Name:       r.Name,
		School:     r.School.String,
		ParentName: r.ParentName.String,
		Phone:      r.Phone.String,
		MonthlyFee: billing.ZeroAmount(),
		Active:     r.IsActive,
	}
	if r.MonthlyFee.Valid {
		s.MonthlyFee = billing.NewAmountFromDecimal(billing.MustParseDecimal(r.MonthlyFee.String))
	}
	if r.StartYear.Valid {
		y := int(r.StartYear.Int64)
		s.StartYear = &y
	}
	if r.StartMonth.Valid {
		m := int(r.StartMonth.Int64)
		s.StartMonth = &m
	}
	return s
}

// CreateStudent inserts a student and returns it with its ID assigned.
func (s *Store) CreateStudent(ctx context.Context, st billing.Student) (billing.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO students (name, school, parent_name, phone, monthly_fee, start_year, start_month, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, st.Name, st.School, st.ParentName, st.Phone, feeValue(st.MonthlyFee),
		nullInt(st.StartYear), nullInt(st.StartMonth), st.Active)
	if err != nil {
		return billing.Student{}, fmt.Errorf("failed to insert student: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return billing.Student{}, err
	}
	st.ID = billing.StudentID(id)
	return st, nil
}

// UpdateStudent overwrites every field of an existing student. When the
// update leaves the student inactive, any open vehicle assignment is
// closed on the given date in the same transaction.
func (s *Store) UpdateStudent(ctx context.Context, st billing.Student, on time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE students
		SET name = ?, school = ?, parent_name = ?, phone = ?,
		    monthly_fee = ?, start_year = ?, start_month = ?, is_active = ?
		WHERE id = ?
	`, st.Name, st.School, st.ParentName, st.Phone, feeValue(st.MonthlyFee),
		nullInt(st.StartYear), nullInt(st.StartMonth), st.Active, st.ID)
	if err != nil {
		return fmt.Errorf("failed to update student: %w", err)
	}
	if err := requireAffected(res, billing.ErrStudentNotFound); err != nil {
		return err
	}
	if !st.Active {
		if err := closeOpenAssignments(ctx, tx, st.ID, on); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetStudent retrieves a student by ID. Returns nil, nil when missing.
func (s *Store) GetStudent(ctx context.Context, id billing.StudentID) (*billing.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getStudent(ctx, s.db, id)
}

func getStudent(ctx context.Context, q sqlx.QueryerContext, id billing.StudentID) (*billing.Student, error) {
	var row studentRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+studentColumns+` FROM students WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	st := row.toStudent()
	return &st, nil
}

// ListStudents returns students ordered by ID.
func (s *Store) ListStudents(ctx context.Context, includeInactive bool) ([]billing.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listStudents(ctx, s.db, includeInactive)
}

func listStudents(ctx context.Context, q sqlx.QueryerContext, includeInactive bool) ([]billing.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	var rows []studentRow
	if err := sqlx.SelectContext(ctx, q, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	students := make([]billing.Student, len(rows))
	for i, r := range rows {
		students[i] = r.toStudent()
	}
	return students, nil
}

// ActiveStudents implements billing.LedgerReader.
func (s *Store) ActiveStudents(ctx context.Context) ([]billing.Student, error) {
	return s.ListStudents(ctx, false)
}

// DeactivateStudent clears the active flag and closes the student's open
// vehicle assignment on the given date, in one transaction.
func (s *Store) DeactivateStudent(ctx context.Context, id billing.StudentID, on time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE students SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate student: %w", err)
	}
	if err := requireAffected(res, billing.ErrStudentNotFound); err != nil {
		return err
	}
	if err := closeOpenAssignments(ctx, tx, id, on); err != nil {
		return err
	}
	return tx.Commit()
}

// SchoolCount is the number of active students of one school.
type SchoolCount struct {
	School string `db:"school"`
	Count  int    `db:"count"`
}

// SchoolStats counts active students per school, ordered by school.
func (s *Store) SchoolStats(ctx context.Context) ([]SchoolCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats []SchoolCount
	err := sqlx.SelectContext(ctx, s.db, &stats, `
		SELECT COALESCE(school, '') AS school, COUNT(*) AS count
		FROM students
		WHERE is_active = 1
		GROUP BY COALESCE(school, '')
		ORDER BY school
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count students per school: %w", err)
	}
	return stats, nil
}

// CountActiveStudents counts students with the active flag set.
func (s *Store) CountActiveStudents(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM students WHERE is_active = 1`)
}

// =============================================================================
// PAYMENTS (billing.Store interface)
// =============================================================================

type paymentRow struct {
	ID             int64          `db:"id"`
	StudentID      int64          `db:"student_id"`
	Year           int            `db:"year"`
	Month          int            `db:"month"`
	PayDate        string         `db:"pay_date"`
	Amount         string         `db:"amount"`
	Currency       sql.NullString `db:"currency"`
	Description    sql.NullString `db:"description"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	CreatedBy      sql.NullString `db:"created_by"`
	CreatedAt      sql.NullString `db:"created_at"`
	StudentName    sql.NullString `db:"student_name"`
}

const paymentColumns = `p.id, p.student_id, p.year, p.month, p.pay_date, p.amount, p.currency,
	p.description, p.idempotency_key, p.created_by, p.created_at`

func (r paymentRow) toPayment() billing.Payment {
	paidOn, _ := time.Parse(billing.DateLayout, r.PayDate)
	createdAt, _ := time.Parse(time.RFC3339, r.CreatedAt.String)
	return billing.Payment{
		ID:             billing.PaymentID(r.ID),
		StudentID:      billing.StudentID(r.StudentID),
		Period:         billing.NewYearMonth(r.Year, time.Month(r.Month)),
		PaidOn:         paidOn,
		Amount:         parseAmount(r.Amount, r.Currency),
		Description:    r.Description.String,
		IdempotencyKey: r.IdempotencyKey.String,
		CreatedBy:      r.CreatedBy.String,
		CreatedAt:      createdAt,
	}
}

// AppendPayment adds a payment to the ledger.
func (s *Store) AppendPayment(ctx context.Context, p billing.Payment) (billing.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments
		(student_id, year, month, pay_date, amount, currency, description, idempotency_key, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.StudentID,
		p.Period.Year,
		int(p.Period.Month),
		billing.FormatDate(p.PaidOn),
		p.Amount.Value.String(),
		string(p.Amount.Currency),
		p.Description,
		nullString(p.IdempotencyKey),
		nullString(p.CreatedBy),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return billing.Payment{}, billing.ErrDuplicateIdempotencyKey
		}
		if isForeignKeyError(err) {
			return billing.Payment{}, billing.ErrStudentNotFound
		}
		return billing.Payment{}, fmt.Errorf("failed to append payment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return billing.Payment{}, err
	}
	p.ID = billing.PaymentID(id)
	p.CreatedAt = createdAt
	return p, nil
}

// PaymentExists checks if an idempotency key exists.
func (s *Store) PaymentExists(ctx context.Context, idempotencyKey string) (bool, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM payments WHERE idempotency_key = ?`, idempotencyKey)
	return n > 0, err
}

// PaymentsByStudent returns a student's payments, oldest first.
func (s *Store) PaymentsByStudent(ctx context.Context, id billing.StudentID) ([]billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []paymentRow
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT `+paymentColumns+`
		FROM payments p
		WHERE p.student_id = ?
		ORDER BY p.pay_date ASC, p.id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}

	payments := make([]billing.Payment, len(rows))
	for i, r := range rows {
		payments[i] = r.toPayment()
	}
	return payments, nil
}

// TotalPaidByStudent implements billing.LedgerReader.
func (s *Store) TotalPaidByStudent(ctx context.Context) (map[billing.StudentID]billing.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return totalPaidByStudent(ctx, s.db)
}

// ReadLedger implements billing.ConsistentReader: active students and paid
// totals come from one read transaction.
func (s *Store) ReadLedger(ctx context.Context) ([]billing.Student, map[billing.StudentID]billing.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	students, err := listStudents(ctx, tx, false)
	if err != nil {
		return nil, nil, err
	}
	paid, err := totalPaidByStudent(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	return students, paid, tx.Commit()
}

func totalPaidByStudent(ctx context.Context, q sqlx.QueryerContext) (map[billing.StudentID]billing.Amount, error) {
	var rows []struct {
		StudentID int64          `db:"student_id"`
		Amount    string         `db:"amount"`
		Currency  sql.NullString `db:"currency"`
	}
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT student_id, amount, currency FROM payments`); err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}

	totals := make(map[billing.StudentID]billing.Amount)
	for _, r := range rows {
		id := billing.StudentID(r.StudentID)
		amount := parseAmount(r.Amount, r.Currency)
		if total, ok := totals[id]; ok {
			totals[id] = total.Add(amount)
		} else {
			totals[id] = amount
		}
	}
	return totals, nil
}

// PaymentFilter narrows ListPayments. Zero value = latest payments first, no limit.
type PaymentFilter struct {
	On        *time.Time
	Range     *billing.DateRange
	Limit     int
	Ascending bool
}

// ListPayments returns payments joined with the student name.
func (s *Store) ListPayments(ctx context.Context, f PaymentFilter) ([]billing.PaymentView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.On != nil {
		where = append(where, "p.pay_date = ?")
		args = append(args, billing.FormatDate(*f.On))
	}
	if f.Range != nil {
		where = append(where, "p.pay_date >= ? AND p.pay_date <= ?")
		args = append(args, billing.FormatDate(f.Range.From), billing.FormatDate(f.Range.To))
	}

	query := `SELECT ` + paymentColumns + `, s.name AS student_name
		FROM payments p
		JOIN students s ON s.id = p.student_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Ascending {
		query += " ORDER BY p.id ASC"
	} else {
		query += " ORDER BY p.id DESC"
	}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	var rows []paymentRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	views := make([]billing.PaymentView, len(rows))
	for i, r := range rows {
		views[i] = billing.PaymentView{Payment: r.toPayment(), StudentName: r.StudentName.String}
	}
	return views, nil
}

// IncomeTotal sums payments, optionally within an inclusive date range.
func (s *Store) IncomeTotal(ctx context.Context, r *billing.DateRange) (billing.Amount, error) {
	return s.sumAmounts(ctx, "payments", "pay_date", r)
}

// =============================================================================
// EXPENSES
// =============================================================================

type expenseRow struct {
	ID           int64          `db:"id"`
	VehicleID    sql.NullInt64  `db:"vehicle_id"`
	ExpDate      string         `db:"exp_date"`
	Category     string         `db:"category"`
	Amount       string         `db:"amount"`
	Currency     sql.NullString `db:"currency"`
	Description  sql.NullString `db:"description"`
	VehiclePlate string         `db:"vehicle_plate"`
}

// AddExpense records an operating expense.
func (s *Store) AddExpense(ctx context.Context, e billing.Expense) (billing.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var vehicleID sql.NullInt64
	if e.VehicleID != nil {
		vehicleID = sql.NullInt64{Int64: *e.VehicleID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (vehicle_id, exp_date, category, amount, currency, description)
		VALUES (?, ?, ?, ?, ?, ?)
	`, vehicleID, billing.FormatDate(e.SpentOn), e.Category, e.Amount.Value.String(),
		string(e.Amount.Currency), e.Description)
	if err != nil {
		if isForeignKeyError(err) {
			return billing.Expense{}, fleet.ErrVehicleNotFound
		}
		return billing.Expense{}, fmt.Errorf("failed to insert expense: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return billing.Expense{}, err
	}
	e.ID = billing.ExpenseID(id)
	return e, nil
}

// ExpenseFilter narrows ListExpenses. Zero value = newest first, no limit.
type ExpenseFilter struct {
	On        *time.Time
	Range     *billing.DateRange
	Limit     int
	Ascending bool
}

// ListExpenses returns expenses joined with the vehicle plate.
func (s *Store) ListExpenses(ctx context.Context, f ExpenseFilter) ([]billing.ExpenseView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  = []any{billing.GeneralExpenseLabel}
	)
	if f.On != nil {
		where = append(where, "e.exp_date = ?")
		args = append(args, billing.FormatDate(*f.On))
	}
	if f.Range != nil {
		where = append(where, "e.exp_date >= ? AND e.exp_date <= ?")
		args = append(args, billing.FormatDate(f.Range.From), billing.FormatDate(f.Range.To))
	}

	query := `SELECT e.id, e.vehicle_id, e.exp_date, e.category, e.amount, e.currency, e.description,
			IFNULL(v.plate, ?) AS vehicle_plate
		FROM expenses e
		LEFT JOIN vehicles v ON v.id = e.vehicle_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Ascending {
		query += " ORDER BY e.id ASC"
	} else {
		query += " ORDER BY e.exp_date DESC, e.id DESC"
	}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	var rows []expenseRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	views := make([]billing.ExpenseView, len(rows))
	for i, r := range rows {
		spentOn, _ := time.Parse(billing.DateLayout, r.ExpDate)
		e := billing.Expense{
			ID:          billing.ExpenseID(r.ID),
			SpentOn:     spentOn,
			Category:    r.Category,
			Amount:      parseAmount(r.Amount, r.Currency),
			Description: r.Description.String,
		}
		if r.VehicleID.Valid {
			id := r.VehicleID.Int64
			e.VehicleID = &id
		}
		views[i] = billing.ExpenseView{Expense: e, VehiclePlate: r.VehiclePlate}
	}
	return views, nil
}

// ExpenseTotal sums expenses, optionally within an inclusive date range.
func (s *Store) ExpenseTotal(ctx context.Context, r *billing.DateRange) (billing.Amount, error) {
	return s.sumAmounts(ctx, "expenses", "exp_date", r)
}

// Profit returns income, expense and their difference over r (nil = all time).
func (s *Store) Profit(ctx context.Context, r *billing.DateRange) (billing.Profit, error) {
	income, err := s.IncomeTotal(ctx, r)
	if err != nil {
		return billing.Profit{}, err
	}
	expense, err := s.ExpenseTotal(ctx, r)
	if err != nil {
		return billing.Profit{}, err
	}
	return billing.NewProfit(income, expense), nil
}

// =============================================================================
// VEHICLES
// =============================================================================

type vehicleRow struct {
	ID       int64          `db:"id"`
	Plate    string         `db:"plate"`
	Name     sql.NullString `db:"name"`
	Capacity sql.NullInt64  `db:"capacity"`
	Route    sql.NullString `db:"route"`
	IsActive bool           `db:"is_active"`
}

func (r vehicleRow) toVehicle() fleet.Vehicle {
	v := fleet.Vehicle{
		ID:         fleet.VehicleID(r.ID),
		Plate:      r.Plate,
		DriverName: r.Name.String,
		Route:      r.Route.String,
		Active:     r.IsActive,
	}
	if r.Capacity.Valid {
		c := int(r.Capacity.Int64)
		v.Capacity = &c
	}
	return v
}

// CreateVehicle inserts a vehicle and returns it with its ID assigned.
func (s *Store) CreateVehicle(ctx context.Context, v fleet.Vehicle) (fleet.Vehicle, error) {
	if strings.TrimSpace(v.Plate) == "" {
		return fleet.Vehicle{}, fleet.ErrPlateRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO vehicles (plate, name, capacity, route, is_active)
		VALUES (?, ?, ?, ?, ?)
	`, v.Plate, v.DriverName, nullInt(v.Capacity), v.Route, v.Active)
	if err != nil {
		return fleet.Vehicle{}, fmt.Errorf("failed to insert vehicle: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fleet.Vehicle{}, err
	}
	v.ID = fleet.VehicleID(id)
	return v, nil
}

// UpdateVehicle overwrites plate, driver, capacity and route.
func (s *Store) UpdateVehicle(ctx context.Context, v fleet.Vehicle) error {
	if strings.TrimSpace(v.Plate) == "" {
		return fleet.ErrPlateRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE vehicles SET plate = ?, name = ?, capacity = ?, route = ? WHERE id = ?
	`, v.Plate, v.DriverName, nullInt(v.Capacity), v.Route, v.ID)
	if err != nil {
		return fmt.Errorf("failed to update vehicle: %w", err)
	}
	return requireAffected(res, fleet.ErrVehicleNotFound)
}

// GetVehicle retrieves a vehicle by ID. Returns nil, nil when missing.
func (s *Store) GetVehicle(ctx context.Context, id fleet.VehicleID) (*fleet.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getVehicle(ctx, s.db, id)
}

func getVehicle(ctx context.Context, q sqlx.QueryerContext, id fleet.VehicleID) (*fleet.Vehicle, error) {
	var row vehicleRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT id, plate, name, capacity, route, is_active FROM vehicles WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	v := row.toVehicle()
	return &v, nil
}

// ListVehicles returns vehicles ordered by ID.
func (s *Store) ListVehicles(ctx context.Context, includeInactive bool) ([]fleet.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, plate, name, capacity, route, is_active FROM vehicles`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	var rows []vehicleRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}

	vehicles := make([]fleet.Vehicle, len(rows))
	for i, r := range rows {
		vehicles[i] = r.toVehicle()
	}
	return vehicles, nil
}

// CountActiveVehicles counts vehicles with the active flag set.
func (s *Store) CountActiveVehicles(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM vehicles WHERE is_active = 1`)
}

// Roster returns a vehicle with its active riders ordered by name.
// Returns nil, nil when the vehicle doesn't exist.
func (s *Store) Roster(ctx context.Context, id fleet.VehicleID) (*fleet.Roster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vehicle, err := getVehicle(ctx, s.db, id)
	if err != nil || vehicle == nil {
		return nil, err
	}

	var rows []studentRow
	err = sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT s.id, s.name, s.school, s.parent_name, s.phone, s.monthly_fee,
		       s.start_year, s.start_month, s.is_active
		FROM student_vehicle sv
		JOIN students s ON s.id = sv.student_id
		WHERE sv.vehicle_id = ?
		  AND (sv.end_date IS NULL OR sv.end_date = '')
		  AND s.is_active = 1
		ORDER BY s.name
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}

	roster := &fleet.Roster{Vehicle: *vehicle, Students: make([]fleet.RosterEntry, len(rows))}
	for i, r := range rows {
		st := r.toStudent()
		roster.Students[i] = fleet.RosterEntry{
			StudentID:  st.ID,
			Name:       st.Name,
			School:     st.School,
			ParentName: st.ParentName,
			Phone:      st.Phone,
			MonthlyFee: st.MonthlyFee,
		}
	}
	return roster, nil
}

// VehicleStudentList returns every open assignment ordered by plate and student name.
func (s *Store) VehicleStudentList(ctx context.Context) ([]fleet.VehicleStudent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []struct {
		Plate       string         `db:"plate"`
		VehicleID   int64          `db:"vehicle_id"`
		StudentID   int64          `db:"student_id"`
		StudentName string         `db:"student_name"`
		School      sql.NullString `db:"school"`
	}
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT v.plate, v.id AS vehicle_id, s.id AS student_id, s.name AS student_name, s.school
		FROM student_vehicle sv
		JOIN vehicles v ON v.id = sv.vehicle_id
		JOIN students s ON s.id = sv.student_id
		WHERE (sv.end_date IS NULL OR sv.end_date = '')
		ORDER BY v.plate, s.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicle students: %w", err)
	}

	list := make([]fleet.VehicleStudent, len(rows))
	for i, r := range rows {
		list[i] = fleet.VehicleStudent{
			VehicleID:   fleet.VehicleID(r.VehicleID),
			Plate:       r.Plate,
			StudentID:   billing.StudentID(r.StudentID),
			StudentName: r.StudentName,
			School:      r.School.String,
		}
	}
	return list, nil
}

// =============================================================================
// ASSIGNMENTS (fleet.TxAssignmentStore interface)
// =============================================================================

// WithAssignmentTx executes fn within a database transaction.
func (s *Store) WithAssignmentTx(ctx context.Context, fn func(fleet.AssignmentStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type txStore struct {
	tx *sqlx.Tx
}

func (ts *txStore) GetStudent(ctx context.Context, id billing.StudentID) (*billing.Student, error) {
	return getStudent(ctx, ts.tx, id)
}

func (ts *txStore) GetVehicle(ctx context.Context, id fleet.VehicleID) (*fleet.Vehicle, error) {
	return getVehicle(ctx, ts.tx, id)
}

func (ts *txStore) OpenAssignment(ctx context.Context, studentID billing.StudentID) (*fleet.Assignment, error) {
	var row struct {
		ID        int64          `db:"id"`
		StudentID int64          `db:"student_id"`
		VehicleID int64          `db:"vehicle_id"`
		StartDate string         `db:"start_date"`
		EndDate   sql.NullString `db:"end_date"`
	}
	err := sqlx.GetContext(ctx, ts.tx, &row, `
		SELECT id, student_id, vehicle_id, start_date, end_date
		FROM student_vehicle
		WHERE student_id = ? AND (end_date IS NULL OR end_date = '')
		ORDER BY id DESC
		LIMIT 1
	`, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open assignment: %w", err)
	}

	start, _ := time.Parse(billing.DateLayout, row.StartDate)
	return &fleet.Assignment{
		ID:        fleet.AssignmentID(row.ID),
		StudentID: billing.StudentID(row.StudentID),
		VehicleID: fleet.VehicleID(row.VehicleID),
		StartDate: start,
	}, nil
}

func (ts *txStore) CountOpenAssignments(ctx context.Context, vehicleID fleet.VehicleID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, ts.tx, &n, `
		SELECT COUNT(*) FROM student_vehicle
		WHERE vehicle_id = ? AND (end_date IS NULL OR end_date = '')
	`, vehicleID)
	return n, err
}

func (ts *txStore) CloseOpenAssignments(ctx context.Context, studentID billing.StudentID, on time.Time) error {
	return closeOpenAssignments(ctx, ts.tx, studentID, on)
}

func (ts *txStore) InsertAssignment(ctx context.Context, a fleet.Assignment) (fleet.Assignment, error) {
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO student_vehicle (student_id, vehicle_id, start_date) VALUES (?, ?, ?)
	`, a.StudentID, a.VehicleID, billing.FormatDate(a.StartDate))
	if err != nil {
		return fleet.Assignment{}, fmt.Errorf("failed to insert assignment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fleet.Assignment{}, err
	}
	a.ID = fleet.AssignmentID(id)
	return a, nil
}

func closeOpenAssignments(ctx context.Context, db sqlx.ExecerContext, studentID billing.StudentID, on time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE student_vehicle
		SET end_date = ?
		WHERE student_id = ? AND (end_date IS NULL OR end_date = '')
	`, billing.FormatDate(on), studentID)
	if err != nil {
		return fmt.Errorf("failed to close assignments: %w", err)
	}
	return nil
}

// =============================================================================
// META + BACKUP (backup.Snapshotter interface)
// =============================================================================

// MetaValue reads a meta key. ok is false when the key is unset.
func (s *Store) MetaValue(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value.String, true, nil
}

// SetMetaValue upserts a meta key.
func (s *Store) SetMetaValue(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// BackupTo writes a consistent copy of the database to path, which must
// not exist yet. Unlike a file copy this includes pages still in the WAL.
func (s *Store) BackupTo(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

// Reset clears students, the ledger, the fleet and expenses (for demo
// data). Users and meta are kept.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tables := []string{"student_vehicle", "payments", "expenses", "students", "vehicles"}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// USERS
// =============================================================================

// User is an office account.
type User struct {
	ID           int64  `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
	FullName     string `db:"full_name"`
	Role         string `db:"role"`
}

// CountUsers counts office accounts.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users`)
}

// CreateUser inserts an account. PasswordHash must already be hashed.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, full_name, role) VALUES (?, ?, ?, ?)
	`, u.Username, u.PasswordHash, u.FullName, u.Role)
	if err != nil {
		if isUniqueConstraintError(err) {
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, err
	}
	u.ID = id
	return u, nil
}

// GetUserByUsername returns nil, nil when no such user exists.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, `username = ?`, username)
}

// GetUser returns nil, nil when no such user exists.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, `id = ?`, id)
}

func (s *Store) getUser(ctx context.Context, cond string, arg any) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u User
	err := sqlx.GetContext(ctx, s.db, &u, `
		SELECT id, username, password_hash, COALESCE(full_name, '') AS full_name, COALESCE(role, '') AS role
		FROM users WHERE `+cond, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ErrUsernameTaken is returned when creating a user whose name exists.
var ErrUsernameTaken = errors.New("username already taken")

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := sqlx.GetContext(ctx, s.db, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// sumAmounts adds the amount column of table, optionally restricted to an
// inclusive range on dateColumn. Table and column names are constants.
func (s *Store) sumAmounts(ctx context.Context, table, dateColumn string, r *billing.DateRange) (billing.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT amount, currency FROM ` + table
	var args []any
	if r != nil {
		query += ` WHERE ` + dateColumn + ` >= ? AND ` + dateColumn + ` <= ?`
		args = append(args, billing.FormatDate(r.From), billing.FormatDate(r.To))
	}

	var rows []struct {
		Amount   string         `db:"amount"`
		Currency sql.NullString `db:"currency"`
	}
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return billing.Amount{}, fmt.Errorf("failed to sum %s: %w", table, err)
	}

	total := billing.ZeroAmount()
	for _, row := range rows {
		total = total.Add(parseAmount(row.Amount, row.Currency))
	}
	return total, nil
}

func parseAmount(value string, currency sql.NullString) billing.Amount {
	a := billing.NewAmountFromDecimal(billing.MustParseDecimal(value))
	if currency.Valid && currency.String != "" {
		a.Currency = billing.Currency(currency.String)
	}
	return a
}

// feeValue never writes NULL: older databases declare monthly_fee NOT NULL,
// and a stored 0 reads back as "no fee" either way.
func feeValue(a billing.Amount) string {
	return a.Value.String()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func isForeignKeyError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
