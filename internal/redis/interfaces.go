package redis

import (
	"context"
	"time"

	"ridepay/internal/domain"
)

// LocationIndex defines the interface for maintaining the driver geo index.
type LocationIndex interface {
	UpdateLocation(ctx context.Context, driverID string, p domain.Point) error
	RemoveLocation(ctx context.Context, driverID string) error
	Rebuild(ctx context.Context, drivers []*domain.User) error
}

// ProvisioningLocker defines the interface for per-rider provisioning locks.
type ProvisioningLocker interface {
	AcquireProvisioningLock(ctx context.Context, riderID string, ttl time.Duration) (string, error)
	ReleaseProvisioningLock(ctx context.Context, riderID, token string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationIndex      = (*LocationStore)(nil)
	_ ProvisioningLocker = (*LockStore)(nil)
)
