/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	shuttle data for demos and manual testing. Each scenario creates
	students, vehicles, rides, payments and expenses that show one part of
	the office screens.

AVAILABLE SCENARIOS:

	overdue-mix:   Students in every tuition state (paid, late, free, below threshold)
	full-vehicle:  A minibus at capacity and a student waiting for a seat
	busy-day:      Today's payments and expenses for the daily report

HOW SCENARIOS WORK:
 1. Reset the database (students, ledger, fleet, expenses; users are kept)
 2. Create vehicles and students
 3. Assign students to vehicles
 4. Record payments and expenses through the same rules as the API

All dates are relative to the handler clock, so a scenario looks the same
whenever it is loaded.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "overdue-mix"}

NOTE:

	Scenarios reset the database. The routes are only mounted outside
	production (RouterOptions.Scenarios).

SEE ALSO:
  - server.go: Scenario routes
  - store/sqlite/sqlite.go: Reset
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/fleet"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "overdue-mix",
		Name:        "Overdue Mix",
		Description: "Five students three months into the term: paid up, partly paid, unpaid, 1 TRY short and free",
	},
	{
		ID:          "full-vehicle",
		Name:        "Full Vehicle",
		Description: "A two-seat minibus with both seats taken and a student waiting",
	},
	{
		ID:          "busy-day",
		Name:        "Busy Day",
		Description: "Payments and expenses dated today across two vehicles",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context) error

var scenarioLoaders = map[string]scenarioLoader{
	"overdue-mix":  (*Handler).loadOverdueMixScenario,
	"full-vehicle": (*Handler).loadFullVehicleScenario,
	"busy-day":     (*Handler).loadBusyDayScenario,
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.scenario()
	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the data and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, "Invalid request", err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Store.Reset(ctx); err != nil {
		h.writeDomainError(w, r, "Failed to reset database", err)
		return
	}
	if err := load(h, ctx); err != nil {
		h.writeDomainError(w, r, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	h.requestLogger(r).WithField("scenario", req.ScenarioID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) scenario() string {
	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()
	return h.currentScenario
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadOverdueMixScenario(ctx context.Context) error {
	// Enrolled two months ago, so three months have accrued.
	start := h.monthsAgo(2)
	fee := billing.NewAmountFromInt(1500)

	bus, err := h.Store.CreateVehicle(ctx, fleet.Vehicle{Plate: "34 SRV 101", DriverName: "Hasan Yılmaz", Capacity: intPtr(14), Route: "Kadıköy - Moda", Active: true})
	if err != nil {
		return err
	}

	students := []struct {
		name, school string
		fee          billing.Amount
		paid         []int64
	}{
		{"Elif Demir", "Moda İlkokulu", fee, []int64{1500, 1500, 1500}},
		{"Can Aksoy", "Moda İlkokulu", fee, []int64{1500}},
		{"Zeynep Kaya", "Fenerbahçe Koleji", fee, nil},
		{"Mert Şahin", "Fenerbahçe Koleji", fee, []int64{1500, 1500, 1499}},
		{"Deniz Arslan", "Moda İlkokulu", billing.ZeroAmount(), nil},
	}

	for i, s := range students {
		created, err := h.createDemoStudent(ctx, s.name, s.school, s.fee, start, i)
		if err != nil {
			return err
		}
		if _, err := h.Assigner.Assign(ctx, created.ID, bus.ID); err != nil {
			return err
		}
		for m, amount := range s.paid {
			period := h.monthsAgo(2 - m)
			if err := h.recordDemoPayment(ctx, created.ID, amount, period, fmt.Sprintf("overdue-mix-%d-%d", i, m)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Handler) loadFullVehicleScenario(ctx context.Context) error {
	start := h.monthsAgo(0)
	fee := billing.NewAmountFromInt(2000)

	minibus, err := h.Store.CreateVehicle(ctx, fleet.Vehicle{Plate: "34 MNB 02", DriverName: "Ayşe Çelik", Capacity: intPtr(2), Route: "Ataşehir", Active: true})
	if err != nil {
		return err
	}
	if _, err := h.Store.CreateVehicle(ctx, fleet.Vehicle{Plate: "34 VAN 03", DriverName: "Ali Koç", Route: "Ataşehir - Kozyatağı", Active: true}); err != nil {
		return err
	}

	names := []string{"Ece Polat", "Kerem Öztürk", "Selin Aydın"}
	for i, name := range names {
		created, err := h.createDemoStudent(ctx, name, "Ataşehir Koleji", fee, start, i)
		if err != nil {
			return err
		}
		// The third student stays unassigned; assigning them to the
		// minibus returns 409.
		if i < 2 {
			if _, err := h.Assigner.Assign(ctx, created.ID, minibus.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Handler) loadBusyDayScenario(ctx context.Context) error {
	today := h.today()
	start := h.monthsAgo(1)
	fee := billing.NewAmountFromInt(1750)

	var vehicles []fleet.Vehicle
	for _, v := range []fleet.Vehicle{
		{Plate: "34 BSY 10", DriverName: "Murat Güneş", Capacity: intPtr(16), Route: "Üsküdar", Active: true},
		{Plate: "34 BSY 11", DriverName: "Fatma Yıldız", Capacity: intPtr(16), Route: "Beykoz", Active: true},
	} {
		created, err := h.Store.CreateVehicle(ctx, v)
		if err != nil {
			return err
		}
		vehicles = append(vehicles, created)
	}

	names := []string{"Ahmet Kılıç", "Büşra Doğan", "Cem Eren", "Derya Uçar"}
	for i, name := range names {
		created, err := h.createDemoStudent(ctx, name, "Üsküdar Anadolu", fee, start, i)
		if err != nil {
			return err
		}
		if _, err := h.Assigner.Assign(ctx, created.ID, vehicles[i%len(vehicles)].ID); err != nil {
			return err
		}
		if err := h.recordDemoPayment(ctx, created.ID, 1750, billing.YearMonthOf(today), fmt.Sprintf("busy-day-%d", i)); err != nil {
			return err
		}
	}

	expenses := []struct {
		vehicle  *fleet.Vehicle
		category string
		amount   int64
	}{
		{&vehicles[0], "Yakıt", 2400},
		{&vehicles[1], "Yakıt", 2150},
		{&vehicles[1], "Bakım", 900},
		{nil, "Kira", 5000},
	}
	for _, e := range expenses {
		exp := billing.Expense{SpentOn: today, Category: e.category, Amount: billing.NewAmountFromInt(e.amount)}
		if e.vehicle != nil {
			id := int64(e.vehicle.ID)
			exp.VehicleID = &id
		}
		if _, err := h.Store.AddExpense(ctx, exp); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) createDemoStudent(ctx context.Context, name, school string, fee billing.Amount, start billing.YearMonth, n int) (billing.Student, error) {
	year, month := start.Year, int(start.Month)
	return h.Store.CreateStudent(ctx, billing.Student{
		Name:       name,
		School:     school,
		ParentName: "Veli " + name,
		Phone:      fmt.Sprintf("0532 555 %04d", 1000+n),
		MonthlyFee: fee,
		StartYear:  &year,
		StartMonth: &month,
		Active:     true,
	})
}

func (h *Handler) recordDemoPayment(ctx context.Context, id billing.StudentID, amount int64, period billing.YearMonth, key string) error {
	_, err := h.Ledger.RecordPayment(ctx, billing.Payment{
		StudentID:      id,
		Amount:         billing.NewAmountFromInt(amount),
		Period:         period,
		PaidOn:         h.today(),
		Description:    period.String() + " servis ücreti",
		IdempotencyKey: key,
		CreatedBy:      "demo",
	})
	return err
}

// monthsAgo is the calendar month n months before today.
func (h *Handler) monthsAgo(n int) billing.YearMonth {
	t := h.today()
	return billing.YearMonthOf(time.Date(t.Year(), t.Month()-time.Month(n), 1, 0, 0, 0, 0, t.Location()))
}

func intPtr(n int) *int { return &n }
