package domain

import "time"

// Role distinguishes riders from drivers.
type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// User represents a rider or a driver. Accounts are provisioned elsewhere;
// this service only reads them and updates driver positions.
type User struct {
	ID                string
	Name              string
	Email             string
	Role              Role
	Location          *Point
	LocationUpdatedAt *time.Time
	Lifecycle
}

// IsAvailableDriver reports whether the user can be matched to a ride.
func (u *User) IsAvailableDriver() bool {
	return u.Role == RoleDriver && u.Location != nil && !u.Deleted()
}
