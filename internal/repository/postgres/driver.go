package postgres

import (
	"context"
	"database/sql"
	"errors"

	"ridepay/internal/domain"
)

// DriverLocator implements repository.DriverLocator with a PostGIS
// nearest-neighbour query over users.location.
type DriverLocator struct {
	q Querier
}

// NewDriverLocator creates a new PostGIS driver locator.
func NewDriverLocator(db *sql.DB) *DriverLocator {
	return &DriverLocator{q: db}
}

// FindNearestAvailableDriver returns the closest live driver with a known
// position by spherical distance, ties broken by lowest id.
// Returns nil if no driver qualifies.
func (l *DriverLocator) FindNearestAvailableDriver(ctx context.Context, point domain.Point) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = 'driver' AND location IS NOT NULL AND deleted_at IS NULL
		ORDER BY ST_Distance(location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, false), id
		LIMIT 1
	`

	driver, err := scanUser(l.q.QueryRowContext(ctx, query, point.Lng, point.Lat))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return driver, nil
}
