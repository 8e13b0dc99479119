package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/fleet"
	"github.com/warp/shuttle-admin/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func amount(s string) billing.Amount {
	return billing.NewAmountFromDecimal(billing.MustParseDecimal(s))
}

func addStudent(t *testing.T, store *sqlite.Store, name, school, fee string) billing.Student {
	t.Helper()
	y, m := 2024, 9
	s, err := store.CreateStudent(context.Background(), billing.Student{
		Name:       name,
		School:     school,
		MonthlyFee: amount(fee),
		StartYear:  &y,
		StartMonth: &m,
		Active:     true,
	})
	require.NoError(t, err)
	return s
}

func pay(t *testing.T, store *sqlite.Store, id billing.StudentID, value string, on time.Time) billing.Payment {
	t.Helper()
	p, err := store.AppendPayment(context.Background(), billing.Payment{
		StudentID: id,
		Period:    billing.YearMonthOf(on),
		PaidOn:    on,
		Amount:    amount(value),
	})
	require.NoError(t, err)
	return p
}

// =============================================================================
// STUDENTS
// =============================================================================

func TestStudents_RoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	created := addStudent(t, store, "Ali Yilmaz", "Ataturk Ilkokulu", "1250.50")
	require.NotZero(t, created.ID)

	got, err := store.GetStudent(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ali Yilmaz", got.Name)
	assert.Equal(t, "1250.5", got.MonthlyFee.Value.String())
	require.NotNil(t, got.StartYear)
	assert.Equal(t, 2024, *got.StartYear)
	assert.True(t, got.Active)

	got.Phone = "0555 111 22 33"
	got.StartMonth = nil
	require.NoError(t, store.UpdateStudent(ctx, *got, day(2024, time.October, 1)))

	updated, err := store.GetStudent(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "0555 111 22 33", updated.Phone)
	assert.Nil(t, updated.StartMonth)

	missing, err := store.GetStudent(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = store.UpdateStudent(ctx, billing.Student{ID: 404, Name: "x"}, day(2024, time.October, 1))
	assert.ErrorIs(t, err, billing.ErrStudentNotFound)
}

func TestStudents_DeactivateClosesRide(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	ali := addStudent(t, store, "Ali", "A", "1000")
	bus, err := store.CreateVehicle(ctx, fleet.Vehicle{Plate: "34 ABC 01", Active: true})
	require.NoError(t, err)
	_, err = fleet.NewAssigner(store).Assign(ctx, ali.ID, bus.ID)
	require.NoError(t, err)

	require.NoError(t, store.DeactivateStudent(ctx, ali.ID, day(2024, time.October, 1)))

	active, err := store.ActiveStudents(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := store.ListStudents(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)

	roster, err := store.Roster(ctx, bus.ID)
	require.NoError(t, err)
	assert.Empty(t, roster.Students)

	assert.ErrorIs(t, store.DeactivateStudent(ctx, 404, day(2024, time.October, 1)), billing.ErrStudentNotFound)
}

func TestStudents_UpdateToInactiveClosesRide(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	ali := addStudent(t, store, "Ali", "A", "1000")
	bus, err := store.CreateVehicle(ctx, fleet.Vehicle{Plate: "34 ABC 01", Active: true})
	require.NoError(t, err)
	_, err = fleet.NewAssigner(store).Assign(ctx, ali.ID, bus.ID)
	require.NoError(t, err)

	ali.Name = "Ali Veli"
	ali.Active = false
	require.NoError(t, store.UpdateStudent(ctx, ali, day(2024, time.October, 1)))

	got, err := store.GetStudent(ctx, ali.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ali Veli", got.Name)
	assert.False(t, got.Active)

	roster, err := store.Roster(ctx, bus.ID)
	require.NoError(t, err)
	assert.Empty(t, roster.Students)

	// Unknown student: nothing is written, not even the ride close.
	veli := addStudent(t, store, "Veli", "A", "1000")
	_, err = fleet.NewAssigner(store).Assign(ctx, veli.ID, bus.ID)
	require.NoError(t, err)
	err = store.UpdateStudent(ctx, billing.Student{ID: 404, Name: "x"}, day(2024, time.October, 1))
	assert.ErrorIs(t, err, billing.ErrStudentNotFound)

	roster, err = store.Roster(ctx, bus.ID)
	require.NoError(t, err)
	assert.Len(t, roster.Students, 1)
}

func TestStudents_SchoolStats(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	addStudent(t, store, "A", "Kolej", "1")
	addStudent(t, store, "B", "Kolej", "1")
	addStudent(t, store, "C", "Anadolu", "1")
	gone := addStudent(t, store, "D", "Anadolu", "1")
	require.NoError(t, store.DeactivateStudent(ctx, gone.ID, day(2024, time.October, 1)))

	stats, err := store.SchoolStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []sqlite.SchoolCount{{School: "Anadolu", Count: 1}, {School: "Kolej", Count: 2}}, stats)

	n, err := store.CountActiveStudents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestPayments_TotalsAreExact(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	ali := addStudent(t, store, "Ali", "A", "1000")
	veli := addStudent(t, store, "Veli", "A", "1000")
	for i := 0; i < 10; i++ {
		pay(t, store, ali.ID, "0.10", day(2024, time.September, 1+i))
	}
	pay(t, store, veli.ID, "500", day(2024, time.September, 5))

	totals, err := store.TotalPaidByStudent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", totals[ali.ID].Value.String())
	assert.Equal(t, "500", totals[veli.ID].Value.String())
	assert.Len(t, totals, 2)
}

func TestPayments_DuplicateIdempotencyKey(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	ali := addStudent(t, store, "Ali", "A", "1000")

	p := billing.Payment{StudentID: ali.ID, Period: billing.NewYearMonth(2024, 10), PaidOn: day(2024, 10, 1),
		Amount: amount("100"), IdempotencyKey: "k-1"}
	_, err := store.AppendPayment(ctx, p)
	require.NoError(t, err)

	_, err = store.AppendPayment(ctx, p)
	assert.ErrorIs(t, err, billing.ErrDuplicateIdempotencyKey)

	exists, err := store.PaymentExists(ctx, "k-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPayments_UnknownStudent(t *testing.T) {
	store := newStore(t)
	_, err := store.AppendPayment(context.Background(), billing.Payment{
		StudentID: 404, Period: billing.NewYearMonth(2024, 10), PaidOn: day(2024, 10, 1), Amount: amount("1"),
	})
	assert.ErrorIs(t, err, billing.ErrStudentNotFound)
}

func TestPayments_ListFilters(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	ali := addStudent(t, store, "Ali", "A", "1000")

	pay(t, store, ali.ID, "100", day(2024, time.October, 1))
	pay(t, store, ali.ID, "200", day(2024, time.October, 2))
	pay(t, store, ali.ID, "300", day(2024, time.October, 2))

	latest, err := store.ListPayments(ctx, sqlite.PaymentFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "300", latest[0].Amount.Value.String(), "newest first")
	assert.Equal(t, "Ali", latest[0].StudentName)

	on := day(2024, time.October, 2)
	daily, err := store.ListPayments(ctx, sqlite.PaymentFilter{On: &on, Ascending: true})
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "200", daily[0].Amount.Value.String())

	summary := billing.SummarizePayments(daily)
	assert.Equal(t, 1, summary.StudentCount)
	assert.Equal(t, 2, summary.PaymentCount)
	assert.Equal(t, "500", summary.Total.Value.String())

	history, err := store.PaymentsByStudent(ctx, ali.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

// =============================================================================
// EXPENSES + PROFIT
// =============================================================================

func TestReadLedger_FeedsOverdueReport(t *testing.T) {
	// GIVEN: Three students enrolled in September 2024 at 1000
	//   - Ali paid 1000 in two payments
	//   - Veli paid nothing and was deactivated
	//   - Ayse paid nothing
	// WHEN: The overdue report runs in November 2024
	// THEN: Ali owes 2000, Ayse 3000, Veli is not read at all

	store := newStore(t)
	ctx := context.Background()
	ali := addStudent(t, store, "Ali", "Kolej", "1000")
	veli := addStudent(t, store, "Veli", "Kolej", "1000")
	ayse := addStudent(t, store, "Ayse", "Kolej", "1000")
	pay(t, store, ali.ID, "400.50", day(2024, time.September, 3))
	pay(t, store, ali.ID, "599.50", day(2024, time.October, 3))
	require.NoError(t, store.DeactivateStudent(ctx, veli.ID, day(2024, time.October, 1)))

	students, paid, err := store.ReadLedger(ctx)
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "1000", paid[ali.ID].Value.String())
	_, ok := paid[ayse.ID]
	assert.False(t, ok, "students without payments are absent from the map")

	records, err := billing.OverdueReport(ctx, store, day(2024, time.November, 20))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ali.ID, records[0].Student.ID)
	assert.Equal(t, "2000", records[0].OverdueAmount.Value.String())
	assert.Equal(t, ayse.ID, records[1].Student.ID)
	assert.Equal(t, "3000", records[1].OverdueAmount.Value.String())
	assert.True(t, records[1].TotalPaid.IsZero())
}

func TestReset_KeepsUsersAndMeta(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	s := addStudent(t, store, "Ali", "Kolej", "1000")
	pay(t, store, s.ID, "10", day(2024, time.November, 1))
	require.NoError(t, store.SetMetaValue(ctx, "k", "v"))
	_, err := store.CreateUser(ctx, sqlite.User{Username: "u", PasswordHash: "x", Role: "user"})
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	students, err := store.ListStudents(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, students)
	n, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, err := store.MetaValue(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpenses_ProfitOverRange(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	ali := addStudent(t, store, "Ali", "A", "1000")
	bus, err := store.CreateVehicle(ctx, fleet.Vehicle{Plate: "34 ABC 01", Active: true})
	require.NoError(t, err)

	pay(t, store, ali.ID, "1000", day(2024, time.October, 1))
	pay(t, store, ali.ID, "1000", day(2024, time.November, 1))

	busID := int64(bus.ID)
	_, err = store.AddExpense(ctx, billing.Expense{VehicleID: &busID, SpentOn: day(2024, time.October, 3),
		Category: "Yakit", Amount: amount("350.25")})
	require.NoError(t, err)
	_, err = store.AddExpense(ctx, billing.Expense{SpentOn: day(2024, time.October, 4),
		Category: "Kira", Amount: amount("100")})
	require.NoError(t, err)

	october := &billing.DateRange{From: day(2024, time.October, 1), To: day(2024, time.October, 31)}
	profit, err := store.Profit(ctx, october)
	require.NoError(t, err)
	assert.Equal(t, "1000", profit.Income.Value.String())
	assert.Equal(t, "450.25", profit.Expense.Value.String())
	assert.Equal(t, "549.75", profit.Profit.Value.String())

	all, err := store.Profit(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "2000", all.Income.Value.String())

	list, err := store.ListExpenses(ctx, sqlite.ExpenseFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, billing.GeneralExpenseLabel, list[0].VehiclePlate)
	assert.Equal(t, "34 ABC 01", list[1].VehiclePlate)

	missing := int64(404)
	_, err = store.AddExpense(ctx, billing.Expense{VehicleID: &missing, SpentOn: day(2024, 10, 5),
		Category: "Yakit", Amount: amount("1")})
	assert.ErrorIs(t, err, fleet.ErrVehicleNotFound)
}

// =============================================================================
// VEHICLES
// =============================================================================

func TestVehicles_RequirePlate(t *testing.T) {
	store := newStore(t)
	_, err := store.CreateVehicle(context.Background(), fleet.Vehicle{Plate: "  "})
	assert.ErrorIs(t, err, fleet.ErrPlateRequired)
}

func TestVehicles_UpdateAndList(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	v, err := store.CreateVehicle(ctx, fleet.Vehicle{Plate: "34 ABC 01", Active: true})
	require.NoError(t, err)

	capacity := 14
	v.Capacity = &capacity
	v.DriverName = "Hasan"
	require.NoError(t, store.UpdateVehicle(ctx, v))

	list, err := store.ListVehicles(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Hasan", list[0].DriverName)
	require.NotNil(t, list[0].Capacity)
	assert.Equal(t, 14, *list[0].Capacity)

	v.ID = 404
	assert.ErrorIs(t, store.UpdateVehicle(ctx, v), fleet.ErrVehicleNotFound)

	roster, err := store.Roster(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, roster)
}

// =============================================================================
// META, BACKUP, USERS
// =============================================================================

func TestMeta_Upsert(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, ok, err := store.MetaValue(ctx, "last_backup_date")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetMetaValue(ctx, "last_backup_date", "2024-10-01"))
	require.NoError(t, store.SetMetaValue(ctx, "last_backup_date", "2024-10-02"))

	v, ok, err := store.MetaValue(ctx, "last_backup_date")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-10-02", v)
}

func TestBackupTo_WritesReadableCopy(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	addStudent(t, store, "Ali", "A", "1000")

	path := filepath.Join(t.TempDir(), "copy.db")
	require.NoError(t, store.BackupTo(ctx, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	copied, err := sqlite.New(path)
	require.NoError(t, err)
	defer copied.Close()

	students, err := copied.ActiveStudents(ctx)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "Ali", students[0].Name)
}

func TestUsers(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	u, err := store.CreateUser(ctx, sqlite.User{Username: "admin", PasswordHash: "hash", FullName: "Yonetici", Role: "admin"})
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, sqlite.User{Username: "admin", PasswordHash: "x"})
	assert.ErrorIs(t, err, sqlite.ErrUsernameTaken)

	byName, err := store.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, u.ID, byName.ID)

	byID, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Yonetici", byID.FullName)

	none, err := store.GetUserByUsername(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, none)

	n, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// =============================================================================
// LEGACY DATABASES
// =============================================================================

// legacySchema is the layout written by the first version of the office
// tool: REAL money columns, NOT NULL fees, no currency or idempotency
// columns and no vehicle route.
const legacySchema = `
CREATE TABLE students (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	school TEXT,
	parent_name TEXT,
	phone TEXT,
	monthly_fee REAL NOT NULL,
	start_year INTEGER,
	start_month INTEGER,
	is_active INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE payments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	student_id INTEGER NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	pay_date TEXT NOT NULL,
	amount REAL NOT NULL,
	description TEXT,
	FOREIGN KEY(student_id) REFERENCES students(id)
);
CREATE TABLE vehicles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	plate TEXT NOT NULL,
	name TEXT,
	capacity INTEGER,
	is_active INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE student_vehicle (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	student_id INTEGER NOT NULL,
	vehicle_id INTEGER NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT
);
CREATE TABLE expenses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	vehicle_id INTEGER,
	exp_date TEXT NOT NULL,
	category TEXT NOT NULL,
	amount REAL NOT NULL,
	description TEXT
);
CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT);
CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	full_name TEXT,
	role TEXT
);
INSERT INTO students (name, school, monthly_fee, start_year, start_month) VALUES ('Ali', 'Kolej', 1000.0, 2024, 9);
INSERT INTO payments (student_id, year, month, pay_date, amount, description) VALUES (1, 2024, 9, '2024-09-05', 400.5, 'Eylul');
INSERT INTO vehicles (plate, name, capacity) VALUES ('34 ESK 01', 'Hasan', 12);
INSERT INTO expenses (vehicle_id, exp_date, category, amount) VALUES (1, '2024-09-05', 'Yakit', 250.0);
`

func newLegacyStore(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servis_takip.db")

	db, err := sqlx.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(legacySchema)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestNew_UpgradesLegacyDatabase(t *testing.T) {
	store, path := newLegacyStore(t)
	ctx := context.Background()

	// Existing rows read back with REAL money intact.
	students, paid, err := store.ReadLedger(ctx)
	require.NoError(t, err)
	require.Len(t, students, 1)
	ali := students[0]
	assert.Equal(t, "1000", ali.MonthlyFee.Value.String())
	assert.Equal(t, "400.5", paid[ali.ID].Value.String())

	records, err := billing.OverdueReport(ctx, store, day(2024, time.November, 20))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2599.5", records[0].OverdueAmount.Value.String())

	history, err := store.ListPayments(ctx, sqlite.PaymentFilter{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Eylul", history[0].Description)

	expenses, err := store.ListExpenses(ctx, sqlite.ExpenseFilter{})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, "250", expenses[0].Amount.Value.String())

	// New columns are writable.
	p := billing.Payment{StudentID: ali.ID, Period: billing.NewYearMonth(2024, time.October), PaidOn: day(2024, time.October, 3),
		Amount: amount("599.50"), IdempotencyKey: "legacy-1", CreatedBy: "admin"}
	_, err = store.AppendPayment(ctx, p)
	require.NoError(t, err)
	_, err = store.AppendPayment(ctx, p)
	assert.ErrorIs(t, err, billing.ErrDuplicateIdempotencyKey)
	pay(t, store, ali.ID, "1", day(2024, time.October, 4))
	pay(t, store, ali.ID, "1", day(2024, time.October, 5))

	_, err = store.AddExpense(ctx, billing.Expense{SpentOn: day(2024, time.October, 3), Category: "Kira", Amount: amount("100")})
	require.NoError(t, err)

	vehicles, err := store.ListVehicles(ctx, true)
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	vehicles[0].Route = "Kadikoy"
	require.NoError(t, store.UpdateVehicle(ctx, vehicles[0]))

	// NOT NULL fee column takes a zero fee.
	free, err := store.CreateStudent(ctx, billing.Student{Name: "Free", MonthlyFee: billing.ZeroAmount(), Active: true})
	require.NoError(t, err)
	got, err := store.GetStudent(ctx, free.ID)
	require.NoError(t, err)
	assert.True(t, got.MonthlyFee.IsZero())

	// Opening an upgraded file again is a no-op.
	require.NoError(t, store.Close())
	again, err := sqlite.New(path)
	require.NoError(t, err)
	defer again.Close()

	vehicles, err = again.ListVehicles(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "Kadikoy", vehicles[0].Route)

	totals, err := again.TotalPaidByStudent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1002", totals[ali.ID].Value.String())
}
