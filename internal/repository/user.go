package repository

import (
	"context"
	"time"

	"ridepay/internal/domain"
)

// UserRepository defines the persistence operations for riders and drivers.
// Accounts are provisioned elsewhere; only driver positions are written here.
type UserRepository interface {
	// GetByID retrieves a live user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByIDAndRole retrieves a live user by ID, requiring the given role.
	GetByIDAndRole(ctx context.Context, id string, role domain.Role) (*domain.User, error)

	// UpdateLocation sets a driver's last known position. A nil point clears it.
	UpdateLocation(ctx context.Context, id string, point *domain.Point, at time.Time) error

	// ListLocatedDrivers returns every live driver with a known position.
	ListLocatedDrivers(ctx context.Context) ([]*domain.User, error)
}
