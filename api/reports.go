package api

import (
	"bytes"
	"net/http"

	"github.com/warp/shuttle-admin/reports"
	"github.com/warp/shuttle-admin/store/sqlite"
)

// =============================================================================
// REPORT DOWNLOADS
// =============================================================================

// DailyReport downloads the payments and expenses of one day.
// GET /api/reports/daily?date=YYYY-MM-DD&format=csv|excel|xlsx|pdf
func (h *Handler) DailyReport(w http.ResponseWriter, r *http.Request) {
	format, err := reports.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeDomainError(w, r, "Invalid format", err)
		return
	}
	on, err := queryDate(r, "date")
	if err != nil {
		h.writeDomainError(w, r, "Invalid date", err)
		return
	}
	day := h.today()
	if on != nil {
		day = *on
	}

	payments, err := h.Store.ListPayments(r.Context(), sqlite.PaymentFilter{On: &day, Ascending: true})
	if err != nil {
		h.writeDomainError(w, r, "Failed to list payments", err)
		return
	}
	expenses, err := h.Store.ListExpenses(r.Context(), sqlite.ExpenseFilter{On: &day, Ascending: true})
	if err != nil {
		h.writeDomainError(w, r, "Failed to list expenses", err)
		return
	}

	report := reports.NewDailyReport(day, payments, expenses)
	h.renderReport(w, r, format, report.FileName(format), report.Document())
}

// VehicleReport downloads a vehicle's active roster.
// GET /api/reports/vehicles/{id}?format=csv|excel|xlsx|pdf
func (h *Handler) VehicleReport(w http.ResponseWriter, r *http.Request) {
	format, err := reports.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeDomainError(w, r, "Invalid format", err)
		return
	}
	roster, ok := h.loadRoster(w, r)
	if !ok {
		return
	}
	h.renderReport(w, r, format, reports.RosterFileName(*roster, format), reports.RosterDocument(*roster))
}

// renderReport buffers the whole file so a rendering error can still be
// reported as JSON.
func (h *Handler) renderReport(w http.ResponseWriter, r *http.Request, f reports.Format, filename string, doc reports.Document) {
	var buf bytes.Buffer
	if err := reports.Render(&buf, f, doc); err != nil {
		h.writeDomainError(w, r, "Failed to render report", err)
		return
	}
	writeAttachment(w, f.ContentType(), filename, buf.Bytes())
}
