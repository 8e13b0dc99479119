package fleet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/fleet"
	"github.com/warp/shuttle-admin/store/sqlite"
)

// =============================================================================
// HELPERS
// =============================================================================

type fixture struct {
	store    *sqlite.Store
	assigner *fleet.Assigner
	today    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	today := time.Date(2024, time.October, 14, 9, 30, 0, 0, time.UTC)
	assigner := fleet.NewAssigner(store)
	assigner.Now = func() time.Time { return today }

	return &fixture{store: store, assigner: assigner, today: today}
}

func (f *fixture) student(t *testing.T, name string) billing.StudentID {
	t.Helper()
	s, err := f.store.CreateStudent(context.Background(), billing.Student{
		Name:       name,
		MonthlyFee: billing.NewAmountFromInt(1000),
		Active:     true,
	})
	require.NoError(t, err)
	return s.ID
}

func (f *fixture) vehicle(t *testing.T, plate string, capacity *int) fleet.VehicleID {
	t.Helper()
	v, err := f.store.CreateVehicle(context.Background(), fleet.Vehicle{Plate: plate, Capacity: capacity, Active: true})
	require.NoError(t, err)
	return v.ID
}

func seats(n int) *int { return &n }

func riders(t *testing.T, store *sqlite.Store, id fleet.VehicleID) []string {
	t.Helper()
	roster, err := store.Roster(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, roster)
	names := make([]string, len(roster.Students))
	for i, s := range roster.Students {
		names[i] = s.Name
	}
	return names
}

// =============================================================================
// ASSIGN
// =============================================================================

func TestAssign_OpensRide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ali := f.student(t, "Ali")
	bus := f.vehicle(t, "34 ABC 01", seats(10))

	a, err := f.assigner.Assign(ctx, ali, bus)
	require.NoError(t, err)

	assert.NotZero(t, a.ID)
	assert.Equal(t, bus, a.VehicleID)
	assert.Equal(t, "2024-10-14", billing.FormatDate(a.StartDate))
	assert.Equal(t, []string{"Ali"}, riders(t, f.store, bus))
}

func TestAssign_MovesStudentBetweenVehicles(t *testing.T) {
	// GIVEN: Ali rides bus A
	// WHEN: Ali is assigned to bus B
	// THEN: The ride on A is closed and Ali rides B only

	f := newFixture(t)
	ctx := context.Background()
	ali := f.student(t, "Ali")
	busA := f.vehicle(t, "34 AAA 01", nil)
	busB := f.vehicle(t, "34 BBB 02", nil)

	_, err := f.assigner.Assign(ctx, ali, busA)
	require.NoError(t, err)
	_, err = f.assigner.Assign(ctx, ali, busB)
	require.NoError(t, err)

	assert.Empty(t, riders(t, f.store, busA))
	assert.Equal(t, []string{"Ali"}, riders(t, f.store, busB))

	list, err := f.store.VehicleStudentList(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "34 BBB 02", list[0].Plate)
}

func TestAssign_SameVehicleIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ali := f.student(t, "Ali")
	bus := f.vehicle(t, "34 ABC 01", seats(1))

	first, err := f.assigner.Assign(ctx, ali, bus)
	require.NoError(t, err)
	second, err := f.assigner.Assign(ctx, ali, bus)
	require.NoError(t, err, "a full vehicle must still accept its own rider")

	assert.Equal(t, first.ID, second.ID)
}

func TestAssign_RejectsFullVehicle(t *testing.T) {
	// GIVEN: A two-seat minibus with two riders
	// WHEN: A third student is assigned
	// THEN: ErrVehicleFull, and the student keeps the previous ride

	f := newFixture(t)
	ctx := context.Background()
	mini := f.vehicle(t, "34 MIN 02", seats(2))
	other := f.vehicle(t, "34 OTH 03", nil)

	for _, name := range []string{"Ayse", "Mehmet"} {
		_, err := f.assigner.Assign(ctx, f.student(t, name), mini)
		require.NoError(t, err)
	}
	zeynep := f.student(t, "Zeynep")
	_, err := f.assigner.Assign(ctx, zeynep, other)
	require.NoError(t, err)

	_, err = f.assigner.Assign(ctx, zeynep, mini)
	require.Error(t, err)
	assert.ErrorIs(t, err, fleet.ErrVehicleFull)
	assert.True(t, fleet.IsConflict(err))

	var capErr *fleet.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 2, capErr.Capacity)
	assert.Equal(t, 2, capErr.Riding)
	assert.Equal(t, "34 MIN 02", capErr.Plate)

	assert.Equal(t, []string{"Zeynep"}, riders(t, f.store, other), "failed move keeps the old ride")
}

func TestAssign_ZeroCapacityIsUnlimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bus := f.vehicle(t, "34 ZER 00", seats(0))

	for _, name := range []string{"A", "B", "C"} {
		_, err := f.assigner.Assign(ctx, f.student(t, name), bus)
		require.NoError(t, err)
	}
	assert.Len(t, riders(t, f.store, bus), 3)
}

func TestAssign_UnknownOrInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ali := f.student(t, "Ali")
	bus := f.vehicle(t, "34 ABC 01", nil)

	_, err := f.assigner.Assign(ctx, 999, bus)
	assert.ErrorIs(t, err, billing.ErrStudentNotFound)

	_, err = f.assigner.Assign(ctx, ali, 999)
	assert.ErrorIs(t, err, fleet.ErrVehicleNotFound)
	assert.True(t, fleet.IsNotFound(err))

	require.NoError(t, f.store.DeactivateStudent(ctx, ali, f.today))
	_, err = f.assigner.Assign(ctx, ali, bus)
	assert.ErrorIs(t, err, fleet.ErrStudentInactive)
}

func TestAssignment_IsActive(t *testing.T) {
	end := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)
	a := fleet.Assignment{
		StartDate: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   &end,
	}

	assert.False(t, a.IsOpen())
	assert.True(t, a.IsActive(time.Date(2024, time.June, 30, 18, 0, 0, 0, time.UTC)))
	assert.False(t, a.IsActive(time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC)))
	assert.False(t, a.IsActive(time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)))
}
