package domain

import (
	"errors"

	"ridepay/internal/secret"
)

// ErrIllegalTransition is returned when a ride status change is not allowed.
var ErrIllegalTransition = errors.New("illegal ride status transition")

// Amount is a monetary value in the payment processor's base unit.
type Amount int64

// PaymentMethodType is the processor-side instrument type.
type PaymentMethodType string

const (
	PaymentMethodCard PaymentMethodType = "CARD"
)

// PaymentMethod is a rider's reusable processor payment source.
type PaymentMethod struct {
	ID              string
	UserID          string
	Token           secret.Encrypted[string]
	PaymentSourceID string
	Type            PaymentMethodType
	Default         bool
	Lifecycle
}

// TransactionStatus is the outcome of one charge attempt.
type TransactionStatus string

const (
	TransactionStatusSuccessful TransactionStatus = "successful"
	TransactionStatusFailed     TransactionStatus = "failed"
)

// Transaction is the immutable record of one charge attempt against a ride.
type Transaction struct {
	ID                     string
	RideID                 string
	UserID                 string
	Amount                 Amount
	Status                 TransactionStatus
	ProcessorTransactionID string
	Reference              string
	Lifecycle
}
