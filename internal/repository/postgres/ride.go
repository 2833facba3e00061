package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ridepay/internal/domain"
	"ridepay/internal/repository"
)

const rideColumns = `id, rider_id, driver_id, ST_X(start_location), ST_Y(start_location), ST_X(end_location), ST_Y(end_location),
	start_time, end_time, status, total_charged, created_at, updated_at, deleted_at`

const oneInProgressPerRider = "rides_one_in_progress_per_rider"

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

// Create persists a new ride. The partial unique index on in-progress rides
// turns a concurrent second ride for the same rider into ErrDuplicate.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (id, rider_id, driver_id, start_location, end_location, start_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326),
			CASE WHEN $6::float8 IS NULL THEN NULL ELSE ST_SetSRID(ST_MakePoint($6, $7), 4326) END,
			$8, $9, $10, $11)
	`

	var driverID sql.NullString
	if ride.DriverID != "" {
		driverID = sql.NullString{String: ride.DriverID, Valid: true}
	}

	var endLng, endLat sql.NullFloat64
	if ride.EndLocation != nil {
		endLng = sql.NullFloat64{Float64: ride.EndLocation.Lng, Valid: true}
		endLat = sql.NullFloat64{Float64: ride.EndLocation.Lat, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.RiderID,
		driverID,
		ride.StartLocation.Lng,
		ride.StartLocation.Lat,
		endLng,
		endLat,
		ride.StartTime,
		ride.Status,
		ride.CreatedAt,
		ride.UpdatedAt,
	)
	if isUniqueViolation(err, oneInProgressPerRider) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a live ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1 AND deleted_at IS NULL`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// HasInProgress reports whether the rider holds an in-progress ride.
func (r *RideRepository) HasInProgress(ctx context.Context, riderID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM rides WHERE rider_id = $1 AND status = 'in_progress' AND deleted_at IS NULL
		)
	`
	var exists bool
	err := r.q.QueryRowContext(ctx, query, riderID).Scan(&exists)
	return exists, err
}

// ClaimFinish marks an in-progress ride as being finished by token. An
// existing claim is only taken over once it is older than lease.
func (r *RideRepository) ClaimFinish(ctx context.Context, rideID, token string, now time.Time, lease time.Duration) (bool, error) {
	query := `
		UPDATE rides
		SET finish_claim = $2, finish_claimed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'in_progress' AND deleted_at IS NULL
			AND (finish_claim IS NULL OR finish_claimed_at < $4)
	`

	result, err := r.q.ExecContext(ctx, query, rideID, token, now, now.Add(-lease))
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

// Finish writes the terminal fields of a ride still claimed by token.
func (r *RideRepository) Finish(ctx context.Context, ride *domain.Ride, token string) error {
	if ride.EndTime == nil || ride.EndLocation == nil || ride.TotalCharged == nil {
		return domain.ErrIllegalTransition
	}

	query := `
		UPDATE rides
		SET status = $2, end_location = ST_SetSRID(ST_MakePoint($3, $4), 4326), end_time = $5,
			total_charged = $6, finish_claim = NULL, finish_claimed_at = NULL, updated_at = $7
		WHERE id = $1 AND status = 'in_progress' AND finish_claim = $8 AND deleted_at IS NULL
	`

	result, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.Status,
		ride.EndLocation.Lng,
		ride.EndLocation.Lat,
		*ride.EndTime,
		int64(*ride.TotalCharged),
		ride.UpdatedAt,
		token,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrClaimLost
	}
	return nil
}

func scanRide(s scanner) (*domain.Ride, error) {
	var (
		ride         domain.Ride
		driverID     sql.NullString
		end          nullPoint
		endTime      sql.NullTime
		totalCharged sql.NullInt64
		deletedAt    sql.NullTime
	)
	endLng, endLat := end.dest()
	if err := s.Scan(
		&ride.ID,
		&ride.RiderID,
		&driverID,
		&ride.StartLocation.Lng,
		&ride.StartLocation.Lat,
		endLng,
		endLat,
		&ride.StartTime,
		&endTime,
		&ride.Status,
		&totalCharged,
		&ride.CreatedAt,
		&ride.UpdatedAt,
		&deletedAt,
	); err != nil {
		return nil, err
	}

	ride.DriverID = driverID.String
	ride.EndLocation = end.point()
	ride.EndTime = timePtr(endTime)
	if totalCharged.Valid {
		amount := domain.Amount(totalCharged.Int64)
		ride.TotalCharged = &amount
	}
	ride.DeletedAt = timePtr(deletedAt)
	return &ride, nil
}
