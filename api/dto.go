/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Responses carry amounts as JSON numbers with the currency alongside.
  Requests accept amounts as numbers or strings; strings may use a comma
  as the decimal separator ("1250,50"), as typed into the office forms.

VALIDATION:
  Request types carry go-playground/validator tags; handlers run
  Handler.decodeJSON, which decodes and validates in one step. Field names
  in validation errors are the JSON names.
*/
package api

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/shuttle-admin/backup"
	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/fleet"
	"github.com/warp/shuttle-admin/notify"
	"github.com/warp/shuttle-admin/store/sqlite"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// =============================================================================
// INPUT TYPES
// =============================================================================

// AmountInput is a decimal accepting 1250.5, "1250.5" and "1250,50".
type AmountInput struct {
	Value decimal.Decimal
}

func (a *AmountInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		d, err := billing.ParseDecimal(s)
		if err != nil {
			return err
		}
		a.Value = d
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return billing.ErrInvalidAmount
	}
	a.Value = d
	return nil
}

func (a AmountInput) Amount() billing.Amount {
	return billing.NewAmountFromDecimal(a.Value)
}

// OptionalInt is an integer form field where "" and null both mean "no
// value". Set records whether the field appeared in the body at all, so an
// update can tell "clear it" (Set, Value nil) from "leave it" (not Set).
// Use it as a value, not a pointer, or null never reaches UnmarshalJSON.
type OptionalInt struct {
	Value *int
	Set   bool
}

func (o *OptionalInt) UnmarshalJSON(b []byte) error {
	o.Set = true
	o.Value = nil
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	o.Value = &n
	return nil
}

func (o OptionalInt) Int() *int {
	return o.Value
}

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type UserDTO struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type LoginResponse struct {
	User      UserDTO `json:"user"`
	ExpiresAt string  `json:"expires_at"`
}

// =============================================================================
// STUDENTS
// =============================================================================

type StudentDTO struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	School     string  `json:"school"`
	ParentName string  `json:"parent_name"`
	Phone      string  `json:"phone"`
	MonthlyFee float64 `json:"monthly_fee"`
	StartYear  *int    `json:"start_year"`
	StartMonth *int    `json:"start_month"`
	Active     bool    `json:"active"`
}

func toStudentDTO(s billing.Student) StudentDTO {
	return StudentDTO{
		ID:         int64(s.ID),
		Name:       s.Name,
		School:     s.School,
		ParentName: s.ParentName,
		Phone:      s.Phone,
		MonthlyFee: s.MonthlyFee.Float64(),
		StartYear:  s.StartYear,
		StartMonth: s.StartMonth,
		Active:     s.Active,
	}
}

type CreateStudentRequest struct {
	Name       string       `json:"name" validate:"required"`
	School     string       `json:"school"`
	ParentName string       `json:"parent_name"`
	Phone      string       `json:"phone"`
	MonthlyFee *AmountInput `json:"monthly_fee" validate:"required"`
	StartYear  OptionalInt  `json:"start_year"`
	StartMonth OptionalInt  `json:"start_month"`
}

// UpdateStudentRequest changes only the fields present in the body.
type UpdateStudentRequest struct {
	Name       *string      `json:"name" validate:"omitempty,min=1"`
	School     *string      `json:"school"`
	ParentName *string      `json:"parent_name"`
	Phone      *string      `json:"phone"`
	MonthlyFee *AmountInput `json:"monthly_fee"`
	StartYear  OptionalInt  `json:"start_year"`
	StartMonth OptionalInt  `json:"start_month"`
	Active     *bool        `json:"active"`
}

// TuitionDTO is the accrual status of one student, overdue or not.
type TuitionDTO struct {
	StudentID     int64   `json:"student_id"`
	Skipped       bool    `json:"skipped"`
	AsOf          string  `json:"as_of"`
	MonthsPassed  int     `json:"months_passed"`
	MonthlyFee    float64 `json:"monthly_fee"`
	TotalPaid     float64 `json:"total_paid"`
	AnnualTotal   float64 `json:"annual_total"`
	ExpectedSoFar float64 `json:"expected_so_far"`
	OverdueAmount float64 `json:"overdue_amount"`
	RemainingYear float64 `json:"remaining_year"`
	IsOverdue     bool    `json:"is_overdue"`
}

type SchoolCountDTO struct {
	School string `json:"school"`
	Count  int    `json:"count"`
}

func toSchoolCountDTOs(stats []sqlite.SchoolCount) []SchoolCountDTO {
	dtos := make([]SchoolCountDTO, len(stats))
	for i, s := range stats {
		dtos[i] = SchoolCountDTO{School: s.School, Count: s.Count}
	}
	return dtos
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentDTO struct {
	ID          int64   `json:"id"`
	StudentID   int64   `json:"student_id"`
	StudentName string  `json:"student_name,omitempty"`
	Year        int     `json:"year"`
	Month       int     `json:"month"`
	PayDate     string  `json:"pay_date"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
	CreatedBy   string  `json:"created_by,omitempty"`
}

func toPaymentDTO(p billing.Payment, studentName string) PaymentDTO {
	return PaymentDTO{
		ID:          int64(p.ID),
		StudentID:   int64(p.StudentID),
		StudentName: studentName,
		Year:        p.Period.Year,
		Month:       int(p.Period.Month),
		PayDate:     billing.FormatDate(p.PaidOn),
		Amount:      p.Amount.Float64(),
		Currency:    string(p.Amount.Currency),
		Description: p.Description,
		CreatedBy:   p.CreatedBy,
	}
}

func toPaymentDTOs(views []billing.PaymentView) []PaymentDTO {
	dtos := make([]PaymentDTO, len(views))
	for i, v := range views {
		dtos[i] = toPaymentDTO(v.Payment, v.StudentName)
	}
	return dtos
}

type CreatePaymentRequest struct {
	StudentID      int64        `json:"student_id" validate:"required,gt=0"`
	Amount         *AmountInput `json:"amount" validate:"required"`
	Year           *int         `json:"year" validate:"omitempty,min=2000,max=2100"`
	Month          *int         `json:"month" validate:"omitempty,min=1,max=12"`
	PayDate        string       `json:"pay_date" validate:"omitempty,datetime=2006-01-02"`
	Description    string       `json:"description"`
	IdempotencyKey string       `json:"idempotency_key"`
}

type DateSummaryDTO struct {
	StudentCount int     `json:"student_count"`
	PaymentCount int     `json:"payment_count"`
	Total        float64 `json:"total"`
}

func toDateSummaryDTO(s billing.DateSummary) *DateSummaryDTO {
	return &DateSummaryDTO{StudentCount: s.StudentCount, PaymentCount: s.PaymentCount, Total: s.Total.Float64()}
}

type PaymentListResponse struct {
	Date     string          `json:"date,omitempty"`
	Payments []PaymentDTO    `json:"payments"`
	Summary  *DateSummaryDTO `json:"summary,omitempty"`
}

// =============================================================================
// VEHICLES
// =============================================================================

type VehicleDTO struct {
	ID         int64  `json:"id"`
	Plate      string `json:"plate"`
	DriverName string `json:"driver_name"`
	Capacity   *int   `json:"capacity"`
	Route      string `json:"route"`
	Active     bool   `json:"active"`
}

func toVehicleDTO(v fleet.Vehicle) VehicleDTO {
	return VehicleDTO{
		ID:         int64(v.ID),
		Plate:      v.Plate,
		DriverName: v.DriverName,
		Capacity:   v.Capacity,
		Route:      v.Route,
		Active:     v.Active,
	}
}

func toVehicleDTOs(vs []fleet.Vehicle) []VehicleDTO {
	dtos := make([]VehicleDTO, len(vs))
	for i, v := range vs {
		dtos[i] = toVehicleDTO(v)
	}
	return dtos
}

type VehicleRequest struct {
	Plate      string      `json:"plate" validate:"required"`
	DriverName string      `json:"driver_name"`
	Capacity   OptionalInt `json:"capacity"`
	Route      string      `json:"route"`
}

type RosterEntryDTO struct {
	StudentID  int64   `json:"student_id"`
	Name       string  `json:"name"`
	School     string  `json:"school"`
	ParentName string  `json:"parent_name"`
	Phone      string  `json:"phone"`
	MonthlyFee float64 `json:"monthly_fee"`
}

type RosterDTO struct {
	Vehicle         VehicleDTO       `json:"vehicle"`
	Students        []RosterEntryDTO `json:"students"`
	TotalMonthlyFee float64          `json:"total_monthly_fee"`
}

func toRosterDTO(r fleet.Roster) RosterDTO {
	students := make([]RosterEntryDTO, len(r.Students))
	for i, s := range r.Students {
		students[i] = RosterEntryDTO{
			StudentID:  int64(s.StudentID),
			Name:       s.Name,
			School:     s.School,
			ParentName: s.ParentName,
			Phone:      s.Phone,
			MonthlyFee: s.MonthlyFee.Float64(),
		}
	}
	return RosterDTO{Vehicle: toVehicleDTO(r.Vehicle), Students: students, TotalMonthlyFee: r.TotalMonthlyFee().Float64()}
}

type AssignmentRequest struct {
	StudentID int64 `json:"student_id" validate:"required,gt=0"`
	VehicleID int64 `json:"vehicle_id" validate:"required,gt=0"`
}

type AssignmentDTO struct {
	ID        int64  `json:"id"`
	StudentID int64  `json:"student_id"`
	VehicleID int64  `json:"vehicle_id"`
	StartDate string `json:"start_date"`
}

type VehicleStudentDTO struct {
	VehicleID   int64  `json:"vehicle_id"`
	Plate       string `json:"plate"`
	StudentID   int64  `json:"student_id"`
	StudentName string `json:"student_name"`
	School      string `json:"school"`
}

func toVehicleStudentDTOs(list []fleet.VehicleStudent) []VehicleStudentDTO {
	dtos := make([]VehicleStudentDTO, len(list))
	for i, vs := range list {
		dtos[i] = VehicleStudentDTO{
			VehicleID:   int64(vs.VehicleID),
			Plate:       vs.Plate,
			StudentID:   int64(vs.StudentID),
			StudentName: vs.StudentName,
			School:      vs.School,
		}
	}
	return dtos
}

// =============================================================================
// EXPENSES
// =============================================================================

type ExpenseDTO struct {
	ID           int64   `json:"id"`
	VehicleID    *int64  `json:"vehicle_id"`
	VehiclePlate string  `json:"vehicle_plate"`
	ExpDate      string  `json:"exp_date"`
	Category     string  `json:"category"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	Description  string  `json:"description"`
}

func toExpenseDTO(e billing.Expense, plate string) ExpenseDTO {
	return ExpenseDTO{
		ID:           int64(e.ID),
		VehicleID:    e.VehicleID,
		VehiclePlate: plate,
		ExpDate:      billing.FormatDate(e.SpentOn),
		Category:     e.Category,
		Amount:       e.Amount.Float64(),
		Currency:     string(e.Amount.Currency),
		Description:  e.Description,
	}
}

func toExpenseDTOs(views []billing.ExpenseView) []ExpenseDTO {
	dtos := make([]ExpenseDTO, len(views))
	for i, v := range views {
		dtos[i] = toExpenseDTO(v.Expense, v.VehiclePlate)
	}
	return dtos
}

type CreateExpenseRequest struct {
	VehicleID   *int64       `json:"vehicle_id" validate:"omitempty,gt=0"`
	ExpDate     string       `json:"exp_date" validate:"omitempty,datetime=2006-01-02"`
	Category    string       `json:"category" validate:"required"`
	Amount      *AmountInput `json:"amount" validate:"required"`
	Description string       `json:"description"`
}

type ProfitDTO struct {
	Start   string  `json:"start,omitempty"`
	End     string  `json:"end,omitempty"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Profit  float64 `json:"profit"`
}

func toProfitDTO(p billing.Profit, r *billing.DateRange) ProfitDTO {
	dto := ProfitDTO{Income: p.Income.Float64(), Expense: p.Expense.Float64(), Profit: p.Profit.Float64()}
	if r != nil {
		dto.Start = billing.FormatDate(r.From)
		dto.End = billing.FormatDate(r.To)
	}
	return dto
}

// =============================================================================
// OVERDUE
// =============================================================================

// OverdueDTO is one row of the overdue list.
type OverdueDTO struct {
	StudentID     int64   `json:"student_id"`
	Name          string  `json:"name"`
	School        string  `json:"school"`
	ParentName    string  `json:"parent_name"`
	Phone         string  `json:"phone"`
	MonthlyFee    float64 `json:"monthly_fee"`
	StartYear     *int    `json:"start_year"`
	StartMonth    *int    `json:"start_month"`
	MonthsPassed  int     `json:"months_passed"`
	TotalPaid     float64 `json:"total_paid"`
	AnnualTotal   float64 `json:"annual_total"`
	ExpectedSoFar float64 `json:"expected_so_far"`
	OverdueAmount float64 `json:"overdue_amount"`
	RemainingYear float64 `json:"remaining_year"`
}

func toOverdueDTOs(records []billing.OverdueRecord) []OverdueDTO {
	dtos := make([]OverdueDTO, len(records))
	for i, r := range records {
		dtos[i] = OverdueDTO{
			StudentID:     int64(r.Student.ID),
			Name:          r.Student.Name,
			School:        r.Student.School,
			ParentName:    r.Student.ParentName,
			Phone:         r.Student.Phone,
			MonthlyFee:    r.Student.MonthlyFee.Float64(),
			StartYear:     r.Student.StartYear,
			StartMonth:    r.Student.StartMonth,
			MonthsPassed:  r.MonthsPassed,
			TotalPaid:     r.TotalPaid.Float64(),
			AnnualTotal:   r.AnnualTotal.Float64(),
			ExpectedSoFar: r.ExpectedSoFar.Float64(),
			OverdueAmount: r.OverdueAmount.Float64(),
			RemainingYear: r.RemainingYear.Float64(),
		}
	}
	return dtos
}

type OverdueListResponse struct {
	AsOf         string       `json:"as_of"`
	Students     []OverdueDTO `json:"students"`
	TotalOverdue float64      `json:"total_overdue"`
}

type ReminderResponse struct {
	AsOf    string `json:"as_of"`
	Overdue int    `json:"overdue"`
	notify.Result
}

// =============================================================================
// DASHBOARD
// =============================================================================

type SummaryDTO struct {
	ActiveStudents int     `json:"active_students"`
	ActiveVehicles int     `json:"active_vehicles"`
	TotalIncome    float64 `json:"total_income"`
	TotalExpense   float64 `json:"total_expense"`
	Profit         float64 `json:"profit"`
}

type DashboardResponse struct {
	FilterDate      string              `json:"filter_date,omitempty"`
	Summary         SummaryDTO          `json:"summary"`
	Payments        []PaymentDTO        `json:"payments"`
	DateSummary     *DateSummaryDTO     `json:"date_summary,omitempty"`
	Vehicles        []VehicleDTO        `json:"vehicles"`
	Expenses        []ExpenseDTO        `json:"expenses"`
	VehicleStudents []VehicleStudentDTO `json:"vehicle_students"`
	SchoolStats     []SchoolCountDTO    `json:"school_stats"`
	Overdue         []OverdueDTO        `json:"overdue"`
	Backup          *backup.Result      `json:"backup,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
