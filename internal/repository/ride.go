package repository

import (
	"context"
	"time"

	"ridepay/internal/domain"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride. Returns ErrDuplicate when the rider already
	// holds an in-progress ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a live ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// HasInProgress reports whether the rider holds an in-progress ride.
	HasInProgress(ctx context.Context, riderID string) (bool, error)

	// ClaimFinish marks an in-progress ride as being finished by token.
	// It succeeds only if no other claim is held or the held one is older
	// than lease. Returns false when the claim was not acquired.
	ClaimFinish(ctx context.Context, rideID, token string, now time.Time, lease time.Duration) (bool, error)

	// Finish writes the terminal fields of a ride still claimed by token.
	// Returns ErrClaimLost otherwise.
	Finish(ctx context.Context, ride *domain.Ride, token string) error
}

// Settlement records the outcome of a charge and finishes the ride atomically.
type Settlement interface {
	// Settle inserts txn and finishes ride under claim token in one
	// transaction. Returns ErrClaimLost when the claim is gone.
	Settle(ctx context.Context, ride *domain.Ride, txn *domain.Transaction, token string) error
}
