package api

import (
	"errors"
	"net/http"

	"github.com/warp/shuttle-admin/backup"
	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/store/sqlite"
)

// =============================================================================
// DASHBOARD
// =============================================================================

// GetDashboard returns everything the office home screen shows. The first
// visit of the day also takes the daily backup; a failed backup is logged
// and does not fail the request.
// GET /api/dashboard?filter_date=YYYY-MM-DD
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filterDate, err := queryDate(r, "filter_date")
	if err != nil {
		h.writeDomainError(w, r, "Invalid filter date", err)
		return
	}

	var resp DashboardResponse
	if h.Backups != nil {
		res, err := h.Backups.EnsureDaily(ctx)
		if err != nil {
			h.requestLogger(r).WithError(err).Error("daily backup failed")
		}
		if res.Created {
			resp.Backup = &res
		}
	}

	students, err := h.Store.CountActiveStudents(ctx)
	if err != nil {
		h.writeDomainError(w, r, "Failed to count students", err)
		return
	}
	vehicles, err := h.Store.ListVehicles(ctx, false)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list vehicles", err)
		return
	}
	profit, err := h.Store.Profit(ctx, nil)
	if err != nil {
		h.writeDomainError(w, r, "Failed to compute totals", err)
		return
	}
	resp.Summary = SummaryDTO{
		ActiveStudents: students,
		ActiveVehicles: len(vehicles),
		TotalIncome:    profit.Income.Float64(),
		TotalExpense:   profit.Expense.Float64(),
		Profit:         profit.Profit.Float64(),
	}
	resp.Vehicles = toVehicleDTOs(vehicles)

	payments, err := h.paymentList(r, filterDate)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list payments", err)
		return
	}
	resp.FilterDate = payments.Date
	resp.Payments = payments.Payments
	resp.DateSummary = payments.Summary

	expenses, err := h.Store.ListExpenses(ctx, sqlite.ExpenseFilter{Limit: latestLimit})
	if err != nil {
		h.writeDomainError(w, r, "Failed to list expenses", err)
		return
	}
	resp.Expenses = toExpenseDTOs(expenses)

	riders, err := h.Store.VehicleStudentList(ctx)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list vehicle students", err)
		return
	}
	resp.VehicleStudents = toVehicleStudentDTOs(riders)

	stats, err := h.Store.SchoolStats(ctx)
	if err != nil {
		h.writeDomainError(w, r, "Failed to count schools", err)
		return
	}
	resp.SchoolStats = toSchoolCountDTOs(stats)

	overdue, err := billing.OverdueReport(ctx, h.Store, h.now())
	if err != nil {
		h.writeDomainError(w, r, "Failed to compute overdue list", err)
		return
	}
	resp.Overdue = toOverdueDTOs(overdue)

	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerBackup takes a snapshot now, even if today's already exists.
// POST /api/admin/backup
func (h *Handler) TriggerBackup(w http.ResponseWriter, r *http.Request) {
	if h.Backups == nil {
		writeError(w, http.StatusServiceUnavailable, "Backups are not configured", nil)
		return
	}

	res, err := h.Backups.Force(r.Context())
	var uploadErr *backup.UploadError
	if err != nil && !errors.As(err, &uploadErr) {
		h.writeDomainError(w, r, "Backup failed", err)
		return
	}

	status := http.StatusCreated
	body := map[string]any{"backup": res}
	if uploadErr != nil {
		// Snapshot exists locally, only the upload failed.
		status = http.StatusAccepted
		body["warning"] = uploadErr.Error()
	}
	writeJSON(w, status, body)
}
