package api

import (
	"net/http"
	"strings"

	"github.com/warp/shuttle-admin/billing"
)

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns active students, or all with include_inactive=true.
// GET /api/students
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.ListStudents(r.Context(), queryBool(r, "include_inactive"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to list students", err)
		return
	}

	dtos := make([]StudentDTO, len(students))
	for i, s := range students {
		dtos[i] = toStudentDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStudent enrolls a student. Missing start year/month default to
// the current year/month.
// POST /api/students
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, "Invalid student", err)
		return
	}

	now := h.now()
	year, month := now.Year(), int(now.Month())
	if v := req.StartYear.Int(); v != nil {
		year = *v
	}
	if v := req.StartMonth.Int(); v != nil {
		month = *v
	}

	s := billing.Student{
		Name:       strings.TrimSpace(req.Name),
		School:     strings.TrimSpace(req.School),
		ParentName: strings.TrimSpace(req.ParentName),
		Phone:      strings.TrimSpace(req.Phone),
		MonthlyFee: req.MonthlyFee.Amount(),
		StartYear:  &year,
		StartMonth: &month,
		Active:     true,
	}
	if err := validateStudent(s); err != nil {
		h.writeDomainError(w, r, "Invalid student", err)
		return
	}

	created, err := h.Store.CreateStudent(r.Context(), s)
	if err != nil {
		h.writeDomainError(w, r, "Failed to create student", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStudentDTO(created))
}

// GetStudent returns a single student, active or not.
// GET /api/students/{id}
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadStudent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(*s))
}

// UpdateStudent changes the fields present in the body.
// PUT /api/students/{id}
func (h *Handler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadStudent(w, r)
	if !ok {
		return
	}

	var req UpdateStudentRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, "Invalid student", err)
		return
	}

	if req.Name != nil {
		s.Name = strings.TrimSpace(*req.Name)
	}
	if req.School != nil {
		s.School = strings.TrimSpace(*req.School)
	}
	if req.ParentName != nil {
		s.ParentName = strings.TrimSpace(*req.ParentName)
	}
	if req.Phone != nil {
		s.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.MonthlyFee != nil {
		s.MonthlyFee = req.MonthlyFee.Amount()
	}
	if req.StartYear.Set {
		s.StartYear = req.StartYear.Int()
	}
	if req.StartMonth.Set {
		s.StartMonth = req.StartMonth.Int()
	}
	if req.Active != nil {
		s.Active = *req.Active
	}

	if err := validateStudent(*s); err != nil {
		h.writeDomainError(w, r, "Invalid student", err)
		return
	}

	// Deactivating through PUT closes the ride just like DELETE does.
	if err := h.Store.UpdateStudent(r.Context(), *s, h.today()); err != nil {
		h.writeDomainError(w, r, "Failed to update student", err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(*s))
}

// DeleteStudent deactivates the student and closes the open ride.
// DELETE /api/students/{id}
func (h *Handler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, r, "Invalid student ID", err)
		return
	}
	if err := h.Store.DeactivateStudent(r.Context(), billing.StudentID(id), h.today()); err != nil {
		h.writeDomainError(w, r, "Failed to deactivate student", err)
		return
	}
	h.requestLogger(r).WithField("student_id", id).Info("student deactivated")
	w.WriteHeader(http.StatusNoContent)
}

// GetStudentPayments returns the student's ledger, oldest first.
// GET /api/students/{id}/payments
func (h *Handler) GetStudentPayments(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadStudent(w, r)
	if !ok {
		return
	}
	payments, err := h.Ledger.Payments(r.Context(), s.ID)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get payments", err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p, s.Name)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStudentTuition returns the accrual status of one student even when
// nothing is overdue. Students without fee or start date are "skipped".
// GET /api/students/{id}/tuition
func (h *Handler) GetStudentTuition(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadStudent(w, r)
	if !ok {
		return
	}
	paid, err := h.Ledger.TotalPaid(r.Context(), s.ID)
	if err != nil {
		h.writeDomainError(w, r, "Failed to sum payments", err)
		return
	}

	asOf := h.now()
	dto := TuitionDTO{
		StudentID:  int64(s.ID),
		AsOf:       billing.FormatDate(asOf),
		MonthlyFee: s.MonthlyFee.Float64(),
		TotalPaid:  paid.Float64(),
	}

	rec, accrued := billing.Accrue(billing.YearMonthOf(asOf), billing.TuitionFacts{Student: *s, TotalPaid: paid})
	if !accrued {
		dto.Skipped = true
		writeJSON(w, http.StatusOK, dto)
		return
	}

	dto.MonthsPassed = rec.MonthsPassed
	dto.AnnualTotal = rec.AnnualTotal.Float64()
	dto.ExpectedSoFar = rec.ExpectedSoFar.Float64()
	dto.OverdueAmount = rec.OverdueAmount.Float64()
	dto.RemainingYear = rec.RemainingYear.Float64()
	dto.IsOverdue = rec.IsOverdue()
	writeJSON(w, http.StatusOK, dto)
}

// loadStudent resolves {id} and writes 400/404 itself when it fails.
func (h *Handler) loadStudent(w http.ResponseWriter, r *http.Request) (*billing.Student, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, r, "Invalid student ID", err)
		return nil, false
	}
	s, err := h.Store.GetStudent(r.Context(), billing.StudentID(id))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get student", err)
		return nil, false
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "Student not found", nil)
		return nil, false
	}
	return s, true
}

func validateStudent(s billing.Student) error {
	if s.Name == "" {
		return badRequest("name is required")
	}
	if s.MonthlyFee.IsNegative() {
		return &billing.FieldError{Field: "monthly_fee", Err: billing.ErrInvalidAmount}
	}
	if s.StartMonth != nil && (*s.StartMonth < 1 || *s.StartMonth > 12) {
		return &billing.FieldError{Field: "start_month", Err: billing.ErrInvalidMonth}
	}
	if s.StartYear != nil && (*s.StartYear < 2000 || *s.StartYear > 2100) {
		return &billing.FieldError{Field: "start_year", Err: billing.ErrInvalidDate}
	}
	return nil
}
