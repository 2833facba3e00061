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
	"ridepay/internal/redis"
	"ridepay/internal/repository"
	"ridepay/internal/secret"
)

const defaultProvisioningLockTTL = 30 * time.Second

// PaymentSourceConfig controls payment source provisioning.
type PaymentSourceConfig struct {
	// Sandbox allows tokenizing the processor's test card when no card
	// token is supplied.
	Sandbox bool
	// FallbackRiderID, when set, lends that rider's default method to riders
	// without one. Demo deployments only.
	FallbackRiderID string
	LockTTL         time.Duration
}

// PaymentSourceService ensures riders hold a usable payment source.
type PaymentSourceService struct {
	users   repository.UserRepository
	methods repository.PaymentMethodRepository
	gateway PaymentGateway
	cipher  *secret.Cipher
	locker  redis.ProvisioningLocker
	cfg     PaymentSourceConfig
	log     *zap.Logger
	now     func() time.Time
}

// NewPaymentSourceService creates a new PaymentSourceService. locker may be
// nil, in which case concurrent provisioning is only guarded by the method count.
func NewPaymentSourceService(
	users repository.UserRepository,
	methods repository.PaymentMethodRepository,
	gw PaymentGateway,
	cipher *secret.Cipher,
	locker redis.ProvisioningLocker,
	cfg PaymentSourceConfig,
	log *zap.Logger,
) *PaymentSourceService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultProvisioningLockTTL
	}
	return &PaymentSourceService{
		users:   users,
		methods: methods,
		gateway: gw,
		cipher:  cipher,
		locker:  locker,
		cfg:     cfg,
		log:     logger.OrNop(log),
		now:     time.Now,
	}
}

// EnsurePaymentSource provisions a default payment source for a rider that
// has none. It is a no-op when the rider already holds a method or another
// worker is provisioning the same rider.
func (s *PaymentSourceService) EnsurePaymentSource(ctx context.Context, rider *domain.User) error {
	if rider == nil || rider.ID == "" {
		return ErrInvalidRequest
	}
	log := logger.FromContext(ctx, s.log).With(zap.String("rider_id", rider.ID))

	count, err := s.methods.CountByUser(ctx, rider.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	// Without sandbox tokenization a card token can only come from the rider.
	if !s.cfg.Sandbox {
		return ErrNoCardToken
	}

	if s.locker != nil {
		token, err := s.locker.AcquireProvisioningLock(ctx, rider.ID, s.cfg.LockTTL)
		switch {
		case err != nil:
			log.Warn("provisioning lock unavailable, continuing without it", zap.Error(err))
		case token == "":
			log.Debug("payment source provisioning already running")
			return nil
		default:
			defer func() {
				if err := s.locker.ReleaseProvisioningLock(context.WithoutCancel(ctx), rider.ID, token); err != nil {
					log.Warn("release provisioning lock", zap.Error(err))
				}
			}()
			if count, err = s.methods.CountByUser(ctx, rider.ID); err != nil {
				return err
			}
			if count > 0 {
				return nil
			}
		}
	}

	cardToken, err := s.sandboxCardToken(ctx)
	if err != nil {
		return err
	}

	acceptance, err := s.gateway.AcceptanceToken(ctx)
	if err != nil {
		return fmt.Errorf("resolve acceptance token: %w", err)
	}

	method, err := s.provision(ctx, rider, acceptance, cardToken)
	if err != nil {
		return err
	}
	log.Info("payment source provisioned", zap.String("payment_method_id", method.ID))
	return nil
}

// HandleRideCreated provisions a payment source for the rider of a new ride
// ahead of the finish. Failures that a retry cannot fix are logged and dropped.
func (s *PaymentSourceService) HandleRideCreated(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.RideCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", e.Payload, e.Name)
	}

	rider, err := s.users.GetByIDAndRole(ctx, p.Ride.RiderID, domain.RoleRider)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.FromContext(ctx, s.log).Warn("ride created for unknown rider", zap.String("ride_id", p.Ride.ID), zap.String("rider_id", p.Ride.RiderID))
			return nil
		}
		return err
	}

	err = s.EnsurePaymentSource(ctx, rider)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoCardToken), gateway.IsValidation(err):
		logger.FromContext(ctx, s.log).Info("payment source not provisioned",
			zap.String("ride_id", p.Ride.ID),
			zap.String("rider_id", rider.ID),
			zap.Error(err),
		)
		return nil
	default:
		return err
	}
}

// CreatePaymentSourceRequest contains the parameters for registering a payment source.
type CreatePaymentSourceRequest struct {
	RiderID         string
	AcceptanceToken string
	CardToken       string
}

// CreatePaymentSource registers a new default payment source for a rider.
// An empty acceptance token is resolved from the processor.
func (s *PaymentSourceService) CreatePaymentSource(ctx context.Context, req CreatePaymentSourceRequest) (*domain.PaymentMethod, error) {
	if _, err := uuid.Parse(req.RiderID); err != nil {
		return nil, fmt.Errorf("%w: rider id", ErrInvalidRequest)
	}

	rider, err := s.users.GetByIDAndRole(ctx, req.RiderID, domain.RoleRider)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRiderNotFound
		}
		return nil, err
	}

	cardToken := req.CardToken
	if cardToken == "" {
		if cardToken, err = s.sandboxCardToken(ctx); err != nil {
			return nil, err
		}
	}

	acceptance := req.AcceptanceToken
	if acceptance == "" {
		if acceptance, err = s.gateway.AcceptanceToken(ctx); err != nil {
			return nil, fmt.Errorf("resolve acceptance token: %w", err)
		}
	}

	return s.provision(ctx, rider, acceptance, cardToken)
}

// ResolveUsableSource returns the rider's authoritative default method: the
// most recently created one whose token still decrypts. When the rider has
// none and a fallback rider is configured, the fallback's method is used.
// Returns nil if nothing is usable.
func (s *PaymentSourceService) ResolveUsableSource(ctx context.Context, riderID string) (*domain.PaymentMethod, error) {
	method, err := s.usableDefault(ctx, riderID)
	if err != nil || method != nil {
		return method, err
	}

	fallback := s.cfg.FallbackRiderID
	if fallback == "" || fallback == riderID {
		return nil, nil
	}

	method, err = s.usableDefault(ctx, fallback)
	if err != nil {
		return nil, err
	}
	if method != nil {
		logger.FromContext(ctx, s.log).Warn("charging fallback rider's payment source",
			zap.String("rider_id", riderID),
			zap.String("fallback_rider_id", fallback),
			zap.String("payment_method_id", method.ID),
		)
	}
	return method, nil
}

// DecryptToken returns the plaintext processor token of a method.
func (s *PaymentSourceService) DecryptToken(method *domain.PaymentMethod) (string, error) {
	return secret.Decrypt(s.cipher, method.Token)
}

func (s *PaymentSourceService) usableDefault(ctx context.Context, userID string) (*domain.PaymentMethod, error) {
	method, err := s.methods.FindDefaultByUser(ctx, userID)
	if err != nil || method == nil {
		return nil, err
	}
	if _, err := s.DecryptToken(method); err != nil {
		logger.FromContext(ctx, s.log).Error("default payment method token unreadable",
			zap.String("rider_id", userID),
			zap.String("payment_method_id", method.ID),
			zap.Error(err),
		)
		return nil, nil
	}
	return method, nil
}

func (s *PaymentSourceService) sandboxCardToken(ctx context.Context) (string, error) {
	if !s.cfg.Sandbox {
		return "", ErrNoCardToken
	}
	token, err := s.gateway.TokenizeCard(ctx, gateway.SandboxCard)
	if err != nil {
		return "", fmt.Errorf("tokenize sandbox card: %w", err)
	}
	return token, nil
}

func (s *PaymentSourceService) provision(ctx context.Context, rider *domain.User, acceptance, cardToken string) (*domain.PaymentMethod, error) {
	source, err := s.gateway.CreatePaymentSource(ctx, gateway.CreatePaymentSourceRequest{
		Type:            string(domain.PaymentMethodCard),
		Token:           cardToken,
		CustomerEmail:   rider.Email,
		AcceptanceToken: acceptance,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment source: %w", err)
	}

	token := source.Token
	if token == "" {
		token = cardToken
	}
	encrypted, err := secret.Encrypt(s.cipher, token)
	if err != nil {
		return nil, fmt.Errorf("encrypt payment token: %w", err)
	}

	method := &domain.PaymentMethod{
		ID:              uuid.New().String(),
		UserID:          rider.ID,
		Token:           encrypted,
		PaymentSourceID: source.ID,
		Type:            domain.PaymentMethodCard,
		Default:         true,
	}
	method.Touch(s.now())

	if err := s.methods.Create(ctx, method); err != nil {
		logger.FromContext(ctx, s.log).Error("payment source created at processor but not stored",
			zap.String("rider_id", rider.ID),
			zap.String("payment_source_id", source.ID),
			zap.String("step", "persist_payment_method"),
			zap.Error(err),
		)
		return nil, fmt.Errorf("store payment method: %w", err)
	}
	return method, nil
}
