package repository

import (
	"context"

	"ridepay/internal/domain"
)

// DriverLocator answers nearest-available-driver queries.
type DriverLocator interface {
	// FindNearestAvailableDriver returns the live driver with a known position
	// closest to point by great-circle distance, ties broken by lowest id.
	// Returns nil, nil when no driver qualifies.
	FindNearestAvailableDriver(ctx context.Context, point domain.Point) (*domain.User, error)
}
