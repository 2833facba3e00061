package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusWaiting    RideStatus = "waiting"
	RideStatusInProgress RideStatus = "in_progress"
	RideStatusFinished   RideStatus = "finished"
)

// CanTransitionTo reports whether next is a legal successor of s.
// The machine only moves forward; finished is terminal.
func (s RideStatus) CanTransitionTo(next RideStatus) bool {
	switch s {
	case RideStatusWaiting:
		return next == RideStatusInProgress
	case RideStatusInProgress:
		return next == RideStatusFinished
	default:
		return false
	}
}

// Ride is a single rider-to-driver engagement from request to settlement.
type Ride struct {
	ID            string
	RiderID       string
	DriverID      string // empty until matched
	StartLocation Point
	EndLocation   *Point // requested destination until finished, final point after
	StartTime     time.Time
	EndTime       *time.Time
	Status        RideStatus
	TotalCharged  *Amount
	Lifecycle
}

// Finish moves the ride to finished and populates the end fields together.
// It does not persist anything.
func (r *Ride) Finish(at time.Time, final Point, fare Amount) error {
	if !r.Status.CanTransitionTo(RideStatusFinished) {
		return ErrIllegalTransition
	}
	end := at
	loc := final
	total := fare
	r.EndTime = &end
	r.EndLocation = &loc
	r.TotalCharged = &total
	r.Status = RideStatusFinished
	return nil
}
