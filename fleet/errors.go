package fleet

import (
	"errors"
	"fmt"
)

var (
	// ErrVehicleNotFound is returned when a vehicle doesn't exist or is inactive.
	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrVehicleFull is returned when every seat of a vehicle is taken.
	ErrVehicleFull = errors.New("vehicle is at capacity")

	// ErrStudentInactive is returned when assigning a deactivated student.
	ErrStudentInactive = errors.New("student is inactive")

	// ErrPlateRequired is returned when a vehicle is saved without a plate.
	ErrPlateRequired = errors.New("plate is required")
)

// CapacityError provides details about a full vehicle.
type CapacityError struct {
	VehicleID VehicleID
	Plate     string
	Capacity  int
	Riding    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("vehicle %s is full: capacity %d, riding %d", e.Plate, e.Capacity, e.Riding)
}

func (e *CapacityError) Unwrap() error {
	return ErrVehicleFull
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrPlateRequired)
}

// IsNotFound returns true if the error indicates a missing vehicle.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrVehicleNotFound)
}

// IsConflict returns true if the request collides with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVehicleFull) || errors.Is(err, ErrStudentInactive)
}
