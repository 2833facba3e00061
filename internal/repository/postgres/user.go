package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ridepay/internal/domain"
	"ridepay/internal/repository"
)

const userColumns = `id, name, email, role, ST_X(location), ST_Y(location), last_location_update, created_at, updated_at, deleted_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	q Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{q: db}
}

// GetByID retrieves a live user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	return scanUserRow(r.q.QueryRowContext(ctx, query, id))
}

// GetByIDAndRole retrieves a live user by ID, requiring the given role.
func (r *UserRepository) GetByIDAndRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND role = $2 AND deleted_at IS NULL`
	return scanUserRow(r.q.QueryRowContext(ctx, query, id, role))
}

// UpdateLocation sets a driver's last known position. A nil point clears it.
func (r *UserRepository) UpdateLocation(ctx context.Context, id string, point *domain.Point, at time.Time) error {
	var (
		result sql.Result
		err    error
	)
	if point == nil {
		query := `
			UPDATE users SET location = NULL, last_location_update = $2, updated_at = $2
			WHERE id = $1 AND role = 'driver' AND deleted_at IS NULL
		`
		result, err = r.q.ExecContext(ctx, query, id, at)
	} else {
		query := `
			UPDATE users SET location = ST_SetSRID(ST_MakePoint($2, $3), 4326), last_location_update = $4, updated_at = $4
			WHERE id = $1 AND role = 'driver' AND deleted_at IS NULL
		`
		result, err = r.q.ExecContext(ctx, query, id, point.Lng, point.Lat, at)
	}
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListLocatedDrivers returns every live driver with a known position.
func (r *UserRepository) ListLocatedDrivers(ctx context.Context) ([]*domain.User, error) {
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE role = 'driver' AND location IS NOT NULL AND deleted_at IS NULL
		ORDER BY id
	`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUserRow(row *sql.Row) (*domain.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return user, err
}

func scanUser(s scanner) (*domain.User, error) {
	var (
		user       domain.User
		loc        nullPoint
		locUpdated sql.NullTime
		deletedAt  sql.NullTime
	)
	lng, lat := loc.dest()
	if err := s.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		lng,
		lat,
		&locUpdated,
		&user.CreatedAt,
		&user.UpdatedAt,
		&deletedAt,
	); err != nil {
		return nil, err
	}
	user.Location = loc.point()
	user.LocationUpdatedAt = timePtr(locUpdated)
	user.DeletedAt = timePtr(deletedAt)
	return &user, nil
}
