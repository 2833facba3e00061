package repository

import (
	"context"
	"time"

	"ridepay/internal/domain"
)

// PaymentMethodRepository defines the persistence operations for payment methods.
type PaymentMethodRepository interface {
	// Create persists a new payment method.
	Create(ctx context.Context, method *domain.PaymentMethod) error

	// CountByUser returns the number of live methods the user holds.
	CountByUser(ctx context.Context, userID string) (int, error)

	// FindDefaultByUser retrieves the most recently created live default method.
	// Returns nil if the user has none.
	FindDefaultByUser(ctx context.Context, userID string) (*domain.PaymentMethod, error)
}

// TransactionRepository defines the persistence operations for charge records.
type TransactionRepository interface {
	// Create persists a new transaction.
	Create(ctx context.Context, txn *domain.Transaction) error

	// GetByRideID retrieves the transaction settling a ride.
	GetByRideID(ctx context.Context, rideID string) (*domain.Transaction, error)

	// ListFailedSince returns failed transactions created at or after since,
	// oldest first.
	ListFailedSince(ctx context.Context, since time.Time, limit int) ([]*domain.Transaction, error)
}
