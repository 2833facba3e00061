package service

import (
	"errors"

	"ridepay/internal/domain"
	"ridepay/internal/gateway"
	"ridepay/internal/repository"
)

var (
	// ErrInvalidRequest is returned when input is malformed or out of range.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidRideState is returned when ride timestamps cannot produce a fare.
	ErrInvalidRideState = errors.New("invalid ride state")

	// ErrInvalidFareComputed is returned when a computed fare is not positive.
	ErrInvalidFareComputed = errors.New("invalid fare computed")

	// ErrRiderNotFound is returned when no live rider has the given id.
	ErrRiderNotFound = errors.New("rider not found")

	// ErrDriverNotFound is returned when no live driver has the given id.
	ErrDriverNotFound = errors.New("driver not found")

	// ErrRideNotFound is returned when no live ride has the given id.
	ErrRideNotFound = errors.New("ride not found")

	// ErrNoDriversAvailable is returned when no driver can be matched.
	ErrNoDriversAvailable = errors.New("no drivers available")

	// ErrNoPaymentSourceFound is returned when the rider has no usable payment source.
	ErrNoPaymentSourceFound = errors.New("no payment source found")

	// ErrNoCardToken is returned when a payment source is requested without a
	// card token and sandbox tokenization is disabled.
	ErrNoCardToken = errors.New("card token required")

	// ErrRideAlreadyInProgress is returned when the rider already holds an in-progress ride.
	ErrRideAlreadyInProgress = errors.New("rider already has a ride in progress")

	// ErrRideNotFoundOrNotInProgress is returned when finishing a ride that is
	// unknown, already finished or being finished by another request.
	ErrRideNotFoundOrNotInProgress = errors.New("ride not found or not in progress")

	// ErrPaymentNotCompleted is returned alongside a finished ride whose charge failed.
	ErrPaymentNotCompleted = errors.New("payment could not be completed")
)

// Class groups errors by how a caller should react to them.
type Class int

const (
	ClassInternal Class = iota
	ClassValidation
	ClassNotFound
	ClassConflict
	ClassDependency
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassNotFound:
		return "not_found"
	case ClassConflict:
		return "conflict"
	case ClassDependency:
		return "dependency"
	default:
		return "internal"
	}
}

// ErrorClass classifies err. Unknown errors are internal.
func ErrorClass(err error) Class {
	var gwErr *gateway.Error
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrPaymentNotCompleted), errors.As(err, &gwErr):
		return ClassDependency
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidRideState),
		errors.Is(err, ErrInvalidFareComputed),
		errors.Is(err, ErrNoCardToken),
		errors.Is(err, domain.ErrInvalidPoint):
		return ClassValidation
	case errors.Is(err, ErrRiderNotFound),
		errors.Is(err, ErrDriverNotFound),
		errors.Is(err, ErrRideNotFound),
		errors.Is(err, ErrNoDriversAvailable),
		errors.Is(err, ErrNoPaymentSourceFound),
		errors.Is(err, repository.ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrRideAlreadyInProgress),
		errors.Is(err, ErrRideNotFoundOrNotInProgress),
		errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, repository.ErrClaimLost),
		errors.Is(err, domain.ErrIllegalTransition):
		return ClassConflict
	default:
		return ClassInternal
	}
}
