package api

import (
	"net/http"
	"strings"

	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/fleet"
	"github.com/warp/shuttle-admin/store/sqlite"
)

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// CreateExpense records an operating expense. Without vehicle_id it is a
// general expense; without exp_date it is dated today.
// POST /api/expenses
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, "Invalid expense", err)
		return
	}

	amount := req.Amount.Amount()
	if !amount.IsPositive() {
		h.writeDomainError(w, r, "Invalid expense", &billing.FieldError{Field: "amount", Err: billing.ErrInvalidAmount})
		return
	}

	e := billing.Expense{
		VehicleID:   req.VehicleID,
		SpentOn:     h.today(),
		Category:    strings.TrimSpace(req.Category),
		Amount:      amount,
		Description: strings.TrimSpace(req.Description),
	}
	if req.ExpDate != "" {
		d, err := billing.ParseDate(req.ExpDate)
		if err != nil {
			h.writeDomainError(w, r, "Invalid expense", &billing.FieldError{Field: "exp_date", Err: err})
			return
		}
		e.SpentOn = d
	}

	plate := billing.GeneralExpenseLabel
	if e.VehicleID != nil {
		v, err := h.Store.GetVehicle(r.Context(), fleet.VehicleID(*e.VehicleID))
		if err != nil {
			h.writeDomainError(w, r, "Failed to load vehicle", err)
			return
		}
		if v == nil {
			h.writeDomainError(w, r, "Vehicle not found", fleet.ErrVehicleNotFound)
			return
		}
		plate = v.Plate
	}

	created, err := h.Store.AddExpense(r.Context(), e)
	if err != nil {
		h.writeDomainError(w, r, "Failed to record expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(created, plate))
}

// ListExpenses returns the expenses of ?date=, or the latest ones.
// GET /api/expenses
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	on, err := queryDate(r, "date")
	if err != nil {
		h.writeDomainError(w, r, "Invalid date", err)
		return
	}

	filter := sqlite.ExpenseFilter{On: on}
	if on == nil {
		filter.Limit = latestLimit
	}
	expenses, err := h.Store.ListExpenses(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list expenses", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTOs(expenses))
}

// GetProfit returns income, expense and profit over an inclusive range.
// GET /api/profit?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *Handler) GetProfit(w http.ResponseWriter, r *http.Request) {
	start, err := queryDate(r, "start")
	if err != nil {
		h.writeDomainError(w, r, "Invalid start date", err)
		return
	}
	end, err := queryDate(r, "end")
	if err != nil {
		h.writeDomainError(w, r, "Invalid end date", err)
		return
	}
	if start == nil || end == nil {
		h.writeDomainError(w, r, "Invalid range", badRequest("start and end are required"))
		return
	}

	rng := billing.DateRange{From: *start, To: *end}
	if err := rng.Validate(); err != nil {
		h.writeDomainError(w, r, "Invalid range", err)
		return
	}

	profit, err := h.Store.Profit(r.Context(), &rng)
	if err != nil {
		h.writeDomainError(w, r, "Failed to compute profit", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfitDTO(profit, &rng))
}
