/*
Package fleet manages shuttle vehicles and which student rides which one.

KEY CONCEPTS:
  Vehicle:    A shuttle with a plate, a driver, an optional seat capacity
              and a free-text route
  Assignment: Links a student to a vehicle from StartDate until EndDate.
              EndDate nil = the student currently rides this vehicle.

INVARIANTS:
  - A student has at most one open assignment at a time.
  - A vehicle with capacity > 0 never has more open assignments than seats.
  - Assignments are closed, never deleted, so ride history is kept.

SEE ALSO:
  - assignment.go: Assigner (close old + open new, capacity check)
  - store/sqlite/sqlite.go: Persistence
*/
package fleet

import (
	"time"

	"github.com/warp/shuttle-admin/billing"
)

type VehicleID int64
type AssignmentID int64

// Vehicle is a shuttle. Capacity nil means unknown; zero or less means unlimited.
type Vehicle struct {
	ID         VehicleID
	Plate      string
	DriverName string
	Capacity   *int
	Route      string
	Active     bool
}

// HasCapacityLimit reports whether seats are counted for this vehicle.
func (v Vehicle) HasCapacityLimit() bool {
	return v.Capacity != nil && *v.Capacity > 0
}

type Assignment struct {
	ID        AssignmentID
	StudentID billing.StudentID
	VehicleID VehicleID
	StartDate time.Time
	EndDate   *time.Time // nil = still riding
}

// IsOpen returns true if the student still rides this vehicle.
func (a Assignment) IsOpen() bool { return a.EndDate == nil }

// IsActive returns true if the assignment covers the given date.
func (a Assignment) IsActive(at time.Time) bool {
	d := billing.DateOf(at)
	if d.Before(billing.DateOf(a.StartDate)) {
		return false
	}
	if a.EndDate != nil && d.After(billing.DateOf(*a.EndDate)) {
		return false
	}
	return true
}

// RosterEntry is one active student riding a vehicle.
type RosterEntry struct {
	StudentID  billing.StudentID
	Name       string
	School     string
	ParentName string
	Phone      string
	MonthlyFee billing.Amount
}

// Roster is a vehicle with its current riders.
type Roster struct {
	Vehicle  Vehicle
	Students []RosterEntry
}

// TotalMonthlyFee sums the riders' monthly fees.
func (r Roster) TotalMonthlyFee() billing.Amount {
	total := billing.ZeroAmount()
	for _, s := range r.Students {
		total = total.Add(s.MonthlyFee)
	}
	return total
}

// VehicleStudent is one row of the "students by vehicle" list.
type VehicleStudent struct {
	VehicleID   VehicleID
	Plate       string
	StudentID   billing.StudentID
	StudentName string
	School      string
}
