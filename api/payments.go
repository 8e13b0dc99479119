package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/store/sqlite"
)

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// CreatePayment appends a payment to the ledger. Missing year/month and
// pay_date default to today; a reused idempotency_key returns 409.
// POST /api/payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, "Invalid payment", err)
		return
	}

	p := billing.Payment{
		StudentID:      billing.StudentID(req.StudentID),
		Amount:         req.Amount.Amount(),
		Description:    strings.TrimSpace(req.Description),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	}
	if claims, ok := SessionFrom(r.Context()); ok {
		p.CreatedBy = claims.Username
	}

	if req.PayDate != "" {
		d, err := billing.ParseDate(req.PayDate)
		if err != nil {
			h.writeDomainError(w, r, "Invalid payment", &billing.FieldError{Field: "pay_date", Err: err})
			return
		}
		p.PaidOn = d
	}
	if req.Year != nil || req.Month != nil {
		period := billing.YearMonthOf(h.now())
		if req.Year != nil {
			period.Year = *req.Year
		}
		if req.Month != nil {
			period.Month = time.Month(*req.Month)
		}
		p.Period = period
	}

	recorded, err := h.Ledger.RecordPayment(r.Context(), p)
	if err != nil {
		h.writeDomainError(w, r, "Failed to record payment", err)
		return
	}

	h.requestLogger(r).WithFields(map[string]any{
		"payment_id": recorded.ID,
		"student_id": recorded.StudentID,
		"amount":     recorded.Amount.String(),
	}).Info("payment recorded")

	writeJSON(w, http.StatusCreated, toPaymentDTO(recorded, ""))
}

// ListPayments returns the payments of ?date=, or the latest ones.
// GET /api/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	on, err := queryDate(r, "date")
	if err != nil {
		h.writeDomainError(w, r, "Invalid date", err)
		return
	}

	resp, err := h.paymentList(r, on)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// paymentList is shared with the dashboard: a date filter lists every
// payment of that day with its summary, no filter lists the latest ones.
func (h *Handler) paymentList(r *http.Request, on *time.Time) (PaymentListResponse, error) {
	filter := sqlite.PaymentFilter{On: on}
	if on == nil {
		filter.Limit = latestLimit
	}

	views, err := h.Store.ListPayments(r.Context(), filter)
	if err != nil {
		return PaymentListResponse{}, err
	}

	resp := PaymentListResponse{Payments: toPaymentDTOs(views)}
	if on != nil {
		resp.Date = billing.FormatDate(*on)
		resp.Summary = toDateSummaryDTO(billing.SummarizePayments(views))
	}
	return resp, nil
}
