package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ridepay/internal/domain"
	"ridepay/internal/events"
	"ridepay/internal/gateway"
	"ridepay/internal/logger"
	"ridepay/internal/repository"
)

const (
	defaultFinishClaimLease = 2 * time.Minute
	settleTimeout           = 15 * time.Second
	publishTimeout          = 2 * time.Second
)

// SourceResolver finds the payment source a ride is charged to.
type SourceResolver interface {
	ResolveUsableSource(ctx context.Context, riderID string) (*domain.PaymentMethod, error)
}

// RideConfig controls ride orchestration.
type RideConfig struct {
	// FinishClaimLease bounds how long a crashed finish attempt blocks
	// others. It must exceed the gateway timeout.
	FinishClaimLease time.Duration
}

// RideService orchestrates the ride lifecycle: matching, finishing,
// charging and settlement.
type RideService struct {
	users      repository.UserRepository
	rides      repository.RideRepository
	settlement repository.Settlement
	locator    repository.DriverLocator
	sources    SourceResolver
	gateway    PaymentGateway
	publisher  events.Publisher
	cfg        RideConfig
	log        *zap.Logger
	now        func() time.Time

	publishTimeout time.Duration
}

// NewRideService creates a new RideService.
func NewRideService(
	users repository.UserRepository,
	rides repository.RideRepository,
	settlement repository.Settlement,
	locator repository.DriverLocator,
	sources SourceResolver,
	gw PaymentGateway,
	publisher events.Publisher,
	cfg RideConfig,
	log *zap.Logger,
) *RideService {
	if cfg.FinishClaimLease <= 0 {
		cfg.FinishClaimLease = defaultFinishClaimLease
	}
	return &RideService{
		users:      users,
		rides:      rides,
		settlement: settlement,
		locator:    locator,
		sources:    sources,
		gateway:    gw,
		publisher:  publisher,
		cfg:        cfg,
		log:        logger.OrNop(log),
		now:        time.Now,

		publishTimeout: publishTimeout,
	}
}

// ChargeReference is the processor reference used for a ride's charge. It is
// stable per ride so the processor rejects a second charge for the same ride.
func ChargeReference(rideID string) string {
	return "RIDE-" + rideID
}

// CreateRideRequest contains the parameters for requesting a ride.
type CreateRideRequest struct {
	RiderID string
	Start   domain.Point
	End     domain.Point
}

// CreateRide matches the rider to the nearest available driver and persists
// an in-progress ride. Nothing is persisted when no driver is available.
func (s *RideService) CreateRide(ctx context.Context, req CreateRideRequest) (*domain.Ride, error) {
	if _, err := uuid.Parse(req.RiderID); err != nil {
		return nil, fmt.Errorf("%w: rider id", ErrInvalidRequest)
	}
	if err := req.Start.Validate(); err != nil {
		return nil, fmt.Errorf("%w: start point: %w", ErrInvalidRequest, err)
	}
	if err := req.End.Validate(); err != nil {
		return nil, fmt.Errorf("%w: end point: %w", ErrInvalidRequest, err)
	}
	if req.Start.Equal(req.End) {
		return nil, fmt.Errorf("%w: start and end points are identical", ErrInvalidRequest)
	}

	rider, err := s.users.GetByIDAndRole(ctx, req.RiderID, domain.RoleRider)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRiderNotFound
		}
		return nil, err
	}

	busy, err := s.rides.HasInProgress(ctx, rider.ID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, ErrRideAlreadyInProgress
	}

	driver, err := s.locator.FindNearestAvailableDriver(ctx, req.Start)
	if err != nil {
		return nil, fmt.Errorf("find nearest driver: %w", err)
	}
	if driver == nil {
		return nil, ErrNoDriversAvailable
	}

	now := s.now()
	end := req.End
	ride := &domain.Ride{
		ID:            uuid.New().String(),
		RiderID:       rider.ID,
		DriverID:      driver.ID,
		StartLocation: req.Start,
		EndLocation:   &end,
		StartTime:     now,
		Status:        domain.RideStatusInProgress,
	}
	ride.Touch(now)

	if err := s.rides.Create(ctx, ride); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrRideAlreadyInProgress
		}
		return nil, err
	}

	logger.FromContext(ctx, s.log).Info("ride created",
		zap.String("ride_id", ride.ID),
		zap.String("rider_id", ride.RiderID),
		zap.String("driver_id", ride.DriverID),
	)
	s.emit(ctx, events.New(events.RideCreated, events.RideCreatedPayload{Ride: *ride}))

	return ride, nil
}

// FinishRideRequest contains the parameters for finishing a ride.
type FinishRideRequest struct {
	RideID     string
	FinalPoint domain.Point
}

// FinishRideResult is the settled outcome of a finished ride.
type FinishRideResult struct {
	Ride        *domain.Ride
	Transaction *domain.Transaction
	Fare        FareBreakdown
}

// FinishRide prices, charges and settles an in-progress ride.
//
// Failures before the charge leave the ride in progress and retryable. Once
// the charge is attempted the ride is always finished and a transaction is
// always recorded; if the charge did not go through, the result is returned
// together with an error wrapping ErrPaymentNotCompleted.
func (s *RideService) FinishRide(ctx context.Context, req FinishRideRequest) (*FinishRideResult, error) {
	if _, err := uuid.Parse(req.RideID); err != nil {
		return nil, fmt.Errorf("%w: ride id", ErrInvalidRequest)
	}
	if err := req.FinalPoint.Validate(); err != nil {
		return nil, fmt.Errorf("%w: final point: %w", ErrInvalidRequest, err)
	}

	ride, err := s.rides.GetByID(ctx, req.RideID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRideNotFoundOrNotInProgress
		}
		return nil, err
	}
	if ride.Status != domain.RideStatusInProgress {
		return nil, ErrRideNotFoundOrNotInProgress
	}
	log := logger.FromContext(ctx, s.log).With(zap.String("ride_id", ride.ID), zap.String("rider_id", ride.RiderID))

	endTime := s.now()
	fare, err := ComputeFare(ride.StartLocation, req.FinalPoint, ride.StartTime, endTime)
	if err != nil {
		return nil, err
	}
	if fare.Total <= 0 {
		return nil, ErrInvalidFareComputed
	}

	if err := ride.Finish(endTime, req.FinalPoint, fare.Total); err != nil {
		return nil, err
	}
	ride.Touch(endTime)

	rider, err := s.users.GetByIDAndRole(ctx, ride.RiderID, domain.RoleRider)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRiderNotFound
		}
		return nil, err
	}

	method, err := s.sources.ResolveUsableSource(ctx, rider.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve payment source: %w", err)
	}
	if method == nil {
		return nil, ErrNoPaymentSourceFound
	}

	claim := uuid.New().String()
	claimed, err := s.rides.ClaimFinish(ctx, ride.ID, claim, endTime, s.cfg.FinishClaimLease)
	if err != nil {
		return nil, fmt.Errorf("claim ride: %w", err)
	}
	if !claimed {
		return nil, ErrRideNotFoundOrNotInProgress
	}

	// From here on the outcome must be recorded even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	reference := ChargeReference(ride.ID)
	result, chargeErr := s.gateway.Charge(ctx, gateway.ChargeRequest{
		Amount:          fare.Total,
		CustomerEmail:   rider.Email,
		Reference:       reference,
		PaymentSourceID: method.PaymentSourceID,
	})

	txn := &domain.Transaction{
		ID:        uuid.New().String(),
		RideID:    ride.ID,
		UserID:    rider.ID,
		Amount:    fare.Total,
		Status:    domain.TransactionStatusFailed,
		Reference: reference,
	}
	if chargeErr == nil && result.Succeeded {
		txn.Status = domain.TransactionStatusSuccessful
		txn.ProcessorTransactionID = result.TransactionID
	}
	txn.Touch(s.now())

	if chargeErr != nil {
		log.Error("charge failed",
			zap.String("step", "charge"),
			zap.String("reference", reference),
			zap.Bool("validation", gateway.IsValidation(chargeErr)),
			zap.Bool("transport", gateway.IsTransport(chargeErr)),
			zap.Error(chargeErr),
		)
	}

	settleCtx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	if err := s.settlement.Settle(settleCtx, ride, txn, claim); err != nil {
		log.Error("charge attempted but settlement not recorded",
			zap.String("step", "settle"),
			zap.String("reference", reference),
			zap.String("transaction_status", string(txn.Status)),
			zap.String("processor_transaction_id", txn.ProcessorTransactionID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("settle ride: %w", err)
	}

	log.Info("ride finished",
		zap.Int64("fare", int64(fare.Total)),
		zap.String("transaction_status", string(txn.Status)),
	)

	outcome := events.ChargeOutcome{
		TransactionID:          txn.ID,
		ProcessorTransactionID: txn.ProcessorTransactionID,
		Status:                 txn.Status,
		Reference:              reference,
	}
	if chargeErr != nil {
		outcome.Error = chargeErr.Error()
	}
	s.emit(ctx, events.New(events.RideFinished, events.RideFinishedPayload{
		Ride:   *ride,
		Fare:   fare.Total,
		Charge: outcome,
	}))

	res := &FinishRideResult{Ride: ride, Transaction: txn, Fare: fare}
	switch {
	case chargeErr != nil:
		return res, fmt.Errorf("%w: %w", ErrPaymentNotCompleted, chargeErr)
	case txn.Status != domain.TransactionStatusSuccessful:
		return res, ErrPaymentNotCompleted
	default:
		return res, nil
	}
}

// GetRide retrieves a ride by ID.
func (s *RideService) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if _, err := uuid.Parse(rideID); err != nil {
		return nil, fmt.Errorf("%w: ride id", ErrInvalidRequest)
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRideNotFound
		}
		return nil, err
	}
	return ride, nil
}

// emit publishes e without letting a saturated queue hold the caller past
// publishTimeout. The ride is already stored, so a dropped event is logged only.
func (s *RideService) emit(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, e); err != nil {
		logger.FromContext(ctx, s.log).Warn("event not published",
			zap.String("event", string(e.Name)),
			zap.String("ride_id", e.RideID()),
			zap.Error(err),
		)
	}
}
