/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the state it describes:
	- Students and vehicles are created
	- Rides respect capacity
	- The overdue list and daily totals match the story

These tests double as integration tests of the store, ledger and assigner.
*/
package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/fleet"
	"github.com/warp/shuttle-admin/store/sqlite"
)

func newScenarioAPI(t *testing.T) *testAPI {
	t.Helper()
	api := newTestAPI(t)
	api.router = NewRouter(api.h, RouterOptions{Scenarios: true})
	return api
}

func (a *testAPI) loadScenario(id string) {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": id})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScenario_OverdueMix(t *testing.T) {
	api := newScenarioAPI(t)
	api.loadScenario("overdue-mix")

	records, err := billing.OverdueReport(context.Background(), api.h.Store, testNow)
	require.NoError(t, err)

	// Paid up, 1 TRY short and free students are not listed.
	require.Len(t, records, 2)
	assert.Equal(t, "Can Aksoy", records[0].Student.Name)
	assert.Equal(t, "3000", records[0].OverdueAmount.Value.String())
	assert.Equal(t, "Zeynep Kaya", records[1].Student.Name)
	assert.Equal(t, "4500", records[1].OverdueAmount.Value.String())
	assert.Equal(t, 3, records[1].MonthsPassed)
}

func TestScenario_FullVehicle(t *testing.T) {
	api := newScenarioAPI(t)
	api.loadScenario("full-vehicle")

	ctx := context.Background()
	vehicles, err := api.h.Store.ListVehicles(ctx, false)
	require.NoError(t, err)
	require.Len(t, vehicles, 2)
	minibus := vehicles[0]
	require.Equal(t, "34 MNB 02", minibus.Plate)

	roster, err := api.h.Store.Roster(ctx, minibus.ID)
	require.NoError(t, err)
	assert.Len(t, roster.Students, 2)

	students, err := api.h.Store.ListStudents(ctx, false)
	require.NoError(t, err)
	require.Len(t, students, 3)

	_, err = api.h.Assigner.Assign(ctx, students[2].ID, minibus.ID)
	var capErr *fleet.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 2, capErr.Riding)

	_, err = api.h.Assigner.Assign(ctx, students[2].ID, vehicles[1].ID)
	assert.NoError(t, err, "the van has no capacity limit")
}

func TestScenario_BusyDay(t *testing.T) {
	api := newScenarioAPI(t)
	api.loadScenario("busy-day")

	day := billing.DateOf(testNow)
	profit, err := api.h.Store.Profit(context.Background(), &billing.DateRange{From: day, To: day})
	require.NoError(t, err)
	assert.Equal(t, "7000", profit.Income.Value.String())
	assert.Equal(t, "10450", profit.Expense.Value.String())
	assert.Equal(t, "-3450", profit.Profit.Value.String())

	expenses, err := api.h.Store.ListExpenses(context.Background(), sqlite.ExpenseFilter{On: &day})
	require.NoError(t, err)
	assert.Len(t, expenses, 4)
}

func TestScenario_ReloadResetsData(t *testing.T) {
	api := newScenarioAPI(t)
	api.loadScenario("busy-day")
	api.loadScenario("full-vehicle")

	students, err := api.h.Store.ListStudents(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, students, 3)

	rec := api.do(http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "full-vehicle", decode[ScenarioDTO](t, rec).ID)

	n, err := api.h.Store.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(defaultUsers), n, "users survive a reset")
}

func TestScenario_RoutesAndErrors(t *testing.T) {
	api := newScenarioAPI(t)

	rec := api.do(http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))

	rec = api.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	plain := newTestAPI(t)
	rec = plain.do(http.MethodGet, "/api/scenarios", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "not mounted unless enabled")
}

func TestScenario_MonthsAgoCrossesYear(t *testing.T) {
	api := newTestAPI(t)
	api.h.SetClock(func() time.Time { return time.Date(2025, time.January, 31, 9, 0, 0, 0, time.UTC) })

	assert.Equal(t, billing.NewYearMonth(2024, time.November), api.h.monthsAgo(2))
	assert.Equal(t, billing.NewYearMonth(2025, time.January), api.h.monthsAgo(0))
}
