/*
handlers.go - HTTP API handlers for the shuttle office

PURPOSE:
  Exposes students, the payment ledger, vehicles, expenses, reports and
  the overdue list as a JSON API. Handlers parse and validate the request,
  call the domain packages (billing, fleet, reports, backup) and serialize
  the result.

ENDPOINTS:
  Auth:       POST /api/login, POST /api/logout, GET /api/me      (auth.go)
  Students:   /api/students[/{id}[/payments|/tuition]]            (students.go)
  Payments:   GET|POST /api/payments                              (payments.go)
  Vehicles:   /api/vehicles[/{id}[/students]], POST /api/assignments (vehicles.go)
  Expenses:   GET|POST /api/expenses, GET /api/profit             (expenses.go)
  Dashboard:  GET /api/dashboard                                  (dashboard.go)
  Overdue:    GET /api/overdue, POST /api/overdue/reminders       (overdue.go)
  Reports:    GET /api/reports/daily, /api/reports/vehicles/{id}  (reports.go)
  Admin:      POST /api/admin/backup                              (dashboard.go)
  Scenarios:  /api/scenarios[/current|/load], non-production only  (scenarios.go)

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: SQLite database (students, ledger, fleet, meta, users)
  - Ledger: Payment recording rules on top of Store
  - Assigner: Transactional vehicle assignment
  - Backups: Daily snapshot manager (optional)
  - Notifier: Reminder delivery
  - Now: Clock, injectable for tests

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing or invalid session
  - 404: Resource not found
  - 409: Conflict (idempotency key reuse, vehicle full, inactive student)
  - 500: Internal errors (logged with the request ID)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/shuttle-admin/backup"
	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/fleet"
	"github.com/warp/shuttle-admin/notify"
	"github.com/warp/shuttle-admin/reports"
	"github.com/warp/shuttle-admin/store/sqlite"
)

// latestLimit is how many rows list endpoints return without a date filter.
const latestLimit = 50

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Ledger   *billing.Ledger
	Assigner *fleet.Assigner
	Backups  *backup.Manager // nil disables backups
	Notifier notify.Notifier
	Auth     *Authenticator
	Logger   logrus.FieldLogger

	validate *validator.Validate
	now      func() time.Time

	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, auth *Authenticator) *Handler {
	h := &Handler{
		Store:    store,
		Ledger:   billing.NewLedger(store),
		Assigner: fleet.NewAssigner(store),
		Notifier: notify.NewLogNotifier(nil),
		Auth:     auth,
		Logger:   logrus.StandardLogger(),
		validate: newValidator(),
	}
	h.SetClock(time.Now)
	return h
}

// SetClock replaces the clock used by the handler and its domain services.
func (h *Handler) SetClock(now func() time.Time) {
	h.now = now
	h.Ledger.Now = now
	h.Assigner.Now = now
	if h.Backups != nil {
		h.Backups.Now = now
	}
}

func (h *Handler) today() time.Time {
	return billing.DateOf(h.now())
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

// errBadRequest marks malformed requests (bad JSON, bad path or query values).
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// decodeJSON reads the body into dst and runs struct validation.
func (h *Handler) decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return h.validate.Struct(dst)
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	d, err := billing.ParseDate(raw)
	if err != nil {
		return nil, &billing.FieldError{Field: name, Err: err}
	}
	return &d, nil
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP status codes. Anything it
// doesn't recognize is logged and returned as 500 with message.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var validationErrs validator.ValidationErrors
	var capErr *fleet.CapacityError

	switch {
	case errors.As(err, &validationErrs):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Code:    "validation",
			Details: validationDetails(validationErrs),
		})
	case errors.As(err, &capErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: capErr.Error(),
			Code:  "vehicle_full",
			Details: map[string]any{
				"vehicle_id": capErr.VehicleID,
				"plate":      capErr.Plate,
				"capacity":   capErr.Capacity,
				"riding":     capErr.Riding,
			},
		})
	case errors.Is(err, errBadRequest), errors.Is(err, reports.ErrUnknownFormat),
		billing.IsClientError(err), fleet.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case billing.IsNotFound(err), fleet.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case billing.IsConflict(err), fleet.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.requestLogger(r).WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, nil)
	}
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}

func (h *Handler) requestLogger(r *http.Request) logrus.FieldLogger {
	logger := h.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"path":       r.URL.Path,
	})
}

// writeAttachment sends a rendered report as a download.
func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
