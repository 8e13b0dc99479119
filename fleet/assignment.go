/*
assignment.go - Student-to-vehicle assignment

PURPOSE:
  Moving a student to a vehicle is two writes: close the current ride (if
  any) and open the new one. Both happen in one store transaction so a
  student never ends up with two open rides or none after a failed move.

CAPACITY:
  When the target vehicle has a capacity above zero, the open assignments
  on it are counted first. The student's own open assignment never sits
  on the target vehicle at that point (re-assigning to the same vehicle is
  a no-op), so the count is exactly the other riders.

EXAMPLE:
  assigner := fleet.NewAssigner(store)
  a, err := assigner.Assign(ctx, studentID, vehicleID)
  if errors.Is(err, fleet.ErrVehicleFull) {
      // tell the office which vehicle is full
  }
*/
package fleet

import (
	"context"
	"time"

	"github.com/warp/shuttle-admin/billing"
)

// =============================================================================
// ASSIGNMENT STORE - Persistence for assignments
// =============================================================================

type AssignmentStore interface {
	GetStudent(ctx context.Context, id billing.StudentID) (*billing.Student, error)

	// GetVehicle returns nil, nil when the vehicle doesn't exist.
	GetVehicle(ctx context.Context, id VehicleID) (*Vehicle, error)

	// OpenAssignment returns the student's current ride, or nil.
	OpenAssignment(ctx context.Context, studentID billing.StudentID) (*Assignment, error)

	// CountOpenAssignments counts the current riders of a vehicle.
	CountOpenAssignments(ctx context.Context, vehicleID VehicleID) (int, error)

	// CloseOpenAssignments ends every open ride of the student on the given date.
	CloseOpenAssignments(ctx context.Context, studentID billing.StudentID, on time.Time) error

	// InsertAssignment persists a ride and returns it with its ID assigned.
	InsertAssignment(ctx context.Context, a Assignment) (Assignment, error)
}

// TxAssignmentStore runs fn atomically: if fn returns an error nothing it
// wrote is kept.
type TxAssignmentStore interface {
	WithAssignmentTx(ctx context.Context, fn func(AssignmentStore) error) error
}

// =============================================================================
// ASSIGNER
// =============================================================================

type Assigner struct {
	Store TxAssignmentStore
	Now   func() time.Time
}

func NewAssigner(store TxAssignmentStore) *Assigner {
	return &Assigner{Store: store, Now: time.Now}
}

// Assign moves the student onto the vehicle as of today.
func (as *Assigner) Assign(ctx context.Context, studentID billing.StudentID, vehicleID VehicleID) (Assignment, error) {
	today := billing.DateOf(as.now())

	var result Assignment
	err := as.Store.WithAssignmentTx(ctx, func(s AssignmentStore) error {
		student, err := s.GetStudent(ctx, studentID)
		if err != nil {
			return err
		}
		if student == nil {
			return billing.ErrStudentNotFound
		}
		if !student.Active {
			return ErrStudentInactive
		}

		vehicle, err := s.GetVehicle(ctx, vehicleID)
		if err != nil {
			return err
		}
		if vehicle == nil || !vehicle.Active {
			return ErrVehicleNotFound
		}

		current, err := s.OpenAssignment(ctx, studentID)
		if err != nil {
			return err
		}
		if current != nil && current.VehicleID == vehicleID {
			result = *current
			return nil
		}

		if vehicle.HasCapacityLimit() {
			riding, err := s.CountOpenAssignments(ctx, vehicleID)
			if err != nil {
				return err
			}
			if riding >= *vehicle.Capacity {
				return &CapacityError{
					VehicleID: vehicle.ID,
					Plate:     vehicle.Plate,
					Capacity:  *vehicle.Capacity,
					Riding:    riding,
				}
			}
		}

		if err := s.CloseOpenAssignments(ctx, studentID, today); err != nil {
			return err
		}

		result, err = s.InsertAssignment(ctx, Assignment{
			StudentID: studentID,
			VehicleID: vehicleID,
			StartDate: today,
		})
		return err
	})
	if err != nil {
		return Assignment{}, err
	}
	return result, nil
}

func (as *Assigner) now() time.Time {
	if as.Now == nil {
		return time.Now()
	}
	return as.Now()
}
