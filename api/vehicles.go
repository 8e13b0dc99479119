package api

import (
	"net/http"
	"strings"

	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/fleet"
)

// =============================================================================
// VEHICLE HANDLERS
// =============================================================================

// ListVehicles returns active vehicles, or all with include_inactive=true.
// GET /api/vehicles
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.Store.ListVehicles(r.Context(), queryBool(r, "include_inactive"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to list vehicles", err)
		return
	}
	writeJSON(w, http.StatusOK, toVehicleDTOs(vehicles))
}

// CreateVehicle adds a vehicle. A blank capacity is stored as unknown.
// POST /api/vehicles
func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req VehicleRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, "Invalid vehicle", err)
		return
	}
	v, err := vehicleFromRequest(req)
	if err != nil {
		h.writeDomainError(w, r, "Invalid vehicle", err)
		return
	}
	v.Active = true

	created, err := h.Store.CreateVehicle(r.Context(), v)
	if err != nil {
		h.writeDomainError(w, r, "Failed to create vehicle", err)
		return
	}
	writeJSON(w, http.StatusCreated, toVehicleDTO(created))
}

// UpdateVehicle replaces plate, driver, capacity and route.
// PUT /api/vehicles/{id}
func (h *Handler) UpdateVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, r, "Invalid vehicle ID", err)
		return
	}

	var req VehicleRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, "Invalid vehicle", err)
		return
	}
	v, err := vehicleFromRequest(req)
	if err != nil {
		h.writeDomainError(w, r, "Invalid vehicle", err)
		return
	}
	v.ID = fleet.VehicleID(id)

	if err := h.Store.UpdateVehicle(r.Context(), v); err != nil {
		h.writeDomainError(w, r, "Failed to update vehicle", err)
		return
	}

	updated, err := h.Store.GetVehicle(r.Context(), v.ID)
	if err != nil || updated == nil {
		h.writeDomainError(w, r, "Failed to reload vehicle", err)
		return
	}
	writeJSON(w, http.StatusOK, toVehicleDTO(*updated))
}

// GetVehicleStudents returns the vehicle with its active riders.
// GET /api/vehicles/{id}/students
func (h *Handler) GetVehicleStudents(w http.ResponseWriter, r *http.Request) {
	roster, ok := h.loadRoster(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toRosterDTO(*roster))
}

// AssignVehicle moves a student onto a vehicle (closing the previous ride)
// in one transaction. A full vehicle returns 409 and changes nothing.
// POST /api/assignments
func (h *Handler) AssignVehicle(w http.ResponseWriter, r *http.Request) {
	var req AssignmentRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, "Invalid assignment", err)
		return
	}

	a, err := h.Assigner.Assign(r.Context(), billing.StudentID(req.StudentID), fleet.VehicleID(req.VehicleID))
	if err != nil {
		h.writeDomainError(w, r, "Failed to assign vehicle", err)
		return
	}

	h.requestLogger(r).WithFields(map[string]any{
		"student_id": a.StudentID,
		"vehicle_id": a.VehicleID,
	}).Info("student assigned to vehicle")

	writeJSON(w, http.StatusOK, AssignmentDTO{
		ID:        int64(a.ID),
		StudentID: int64(a.StudentID),
		VehicleID: int64(a.VehicleID),
		StartDate: billing.FormatDate(a.StartDate),
	})
}

// loadRoster resolves {id} and writes 400/404 itself when it fails.
func (h *Handler) loadRoster(w http.ResponseWriter, r *http.Request) (*fleet.Roster, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, r, "Invalid vehicle ID", err)
		return nil, false
	}
	roster, err := h.Store.Roster(r.Context(), fleet.VehicleID(id))
	if err != nil {
		h.writeDomainError(w, r, "Failed to load vehicle", err)
		return nil, false
	}
	if roster == nil {
		writeError(w, http.StatusNotFound, "Vehicle not found", nil)
		return nil, false
	}
	return roster, true
}

func vehicleFromRequest(req VehicleRequest) (fleet.Vehicle, error) {
	v := fleet.Vehicle{
		Plate:      strings.TrimSpace(req.Plate),
		DriverName: strings.TrimSpace(req.DriverName),
		Capacity:   req.Capacity.Int(),
		Route:      strings.TrimSpace(req.Route),
	}
	if v.Plate == "" {
		return v, fleet.ErrPlateRequired
	}
	if v.Capacity != nil && *v.Capacity < 0 {
		return v, badRequest("capacity must not be negative")
	}
	return v, nil
}
