package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ridepay/internal/domain"
	"ridepay/internal/logger"
	"ridepay/internal/redis"
	"ridepay/internal/repository"
)

// DriverService maintains driver positions in Postgres and the geo index.
type DriverService struct {
	users repository.UserRepository
	index redis.LocationIndex
	log   *zap.Logger
	now   func() time.Time
}

// NewDriverService creates a new DriverService. index may be nil when
// matching runs on PostGIS alone.
func NewDriverService(users repository.UserRepository, index redis.LocationIndex, log *zap.Logger) *DriverService {
	return &DriverService{
		users: users,
		index: index,
		log:   logger.OrNop(log),
		now:   time.Now,
	}
}

// UpdateLocationRequest contains the parameters for updating driver location.
type UpdateLocationRequest struct {
	DriverID string
	Point    domain.Point
}

// UpdateLocation records a driver's latest position. Postgres is written
// first; a failed index update is logged and repaired by the next sync.
func (s *DriverService) UpdateLocation(ctx context.Context, req UpdateLocationRequest) error {
	if _, err := uuid.Parse(req.DriverID); err != nil {
		return fmt.Errorf("%w: driver id", ErrInvalidRequest)
	}
	if err := req.Point.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	p := req.Point
	if err := s.users.UpdateLocation(ctx, req.DriverID, &p, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDriverNotFound
		}
		return err
	}

	if s.index != nil {
		if err := s.index.UpdateLocation(ctx, req.DriverID, p); err != nil {
			logger.FromContext(ctx, s.log).Warn("driver geo index not updated", zap.String("driver_id", req.DriverID), zap.Error(err))
		}
	}
	return nil
}

// RetireLocation clears a driver's position so they are no longer matched.
func (s *DriverService) RetireLocation(ctx context.Context, driverID string) error {
	if _, err := uuid.Parse(driverID); err != nil {
		return fmt.Errorf("%w: driver id", ErrInvalidRequest)
	}

	if err := s.users.UpdateLocation(ctx, driverID, nil, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDriverNotFound
		}
		return err
	}

	if s.index != nil {
		if err := s.index.RemoveLocation(ctx, driverID); err != nil {
			logger.FromContext(ctx, s.log).Warn("driver geo index not updated", zap.String("driver_id", driverID), zap.Error(err))
		}
	}
	return nil
}

// SyncIndex rebuilds the geo index from Postgres.
func (s *DriverService) SyncIndex(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	drivers, err := s.users.ListLocatedDrivers(ctx)
	if err != nil {
		return fmt.Errorf("list drivers: %w", err)
	}
	if err := s.index.Rebuild(ctx, drivers); err != nil {
		return fmt.Errorf("rebuild geo index: %w", err)
	}
	logger.FromContext(ctx, s.log).Info("driver geo index rebuilt", zap.Int("drivers", len(drivers)))
	return nil
}
