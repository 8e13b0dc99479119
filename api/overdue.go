package api

import (
	"net/http"

	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/notify"
)

// =============================================================================
// OVERDUE TUITION
// =============================================================================

// ListOverdue returns every active student owing more than the
// materiality threshold as of today, in student ID order.
// GET /api/overdue
func (h *Handler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	asOf := h.now()
	records, err := billing.OverdueReport(r.Context(), h.Store, asOf)
	if err != nil {
		h.writeDomainError(w, r, "Failed to compute overdue list", err)
		return
	}

	total := billing.ZeroAmount()
	for _, rec := range records {
		total = total.Add(rec.OverdueAmount)
	}

	writeJSON(w, http.StatusOK, OverdueListResponse{
		AsOf:         billing.FormatDate(asOf),
		Students:     toOverdueDTOs(records),
		TotalOverdue: total.Float64(),
	})
}

// SendOverdueReminders messages the parents of every overdue student with
// a phone number on file.
// POST /api/overdue/reminders
func (h *Handler) SendOverdueReminders(w http.ResponseWriter, r *http.Request) {
	asOf := h.now()
	records, err := billing.OverdueReport(r.Context(), h.Store, asOf)
	if err != nil {
		h.writeDomainError(w, r, "Failed to compute overdue list", err)
		return
	}

	res := notify.Remind(r.Context(), h.Notifier, records)
	h.requestLogger(r).WithFields(map[string]any{
		"overdue": len(records),
		"sent":    res.Sent,
		"skipped": res.Skipped,
		"failed":  res.Failed,
	}).Info("overdue reminders sent")

	writeJSON(w, http.StatusOK, ReminderResponse{
		AsOf:    billing.FormatDate(asOf),
		Overdue: len(records),
		Result:  res,
	})
}
