package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ridepay/internal/domain"
)

// Name identifies a signal emitted by the ride orchestrator.
type Name string

const (
	RideCreated  Name = "ride.created"
	RideFinished Name = "ride.finished"
)

// Event is a single emitted signal. Payload is one of the *Payload types below.
type Event struct {
	ID         string
	Name       Name
	OccurredAt time.Time
	Payload    any

	// CorrelationID ties the event to the request that caused it. Publish
	// fills it from the context when empty.
	CorrelationID string
}

// RideCreatedPayload accompanies RideCreated.
type RideCreatedPayload struct {
	Ride domain.Ride
}

// RideFinishedPayload accompanies RideFinished.
type RideFinishedPayload struct {
	Ride   domain.Ride
	Fare   domain.Amount
	Charge ChargeOutcome
}

// ChargeOutcome summarises the settlement charge of a finished ride.
type ChargeOutcome struct {
	TransactionID          string
	ProcessorTransactionID string
	Status                 domain.TransactionStatus
	Reference              string
	Error                  string
}

// Succeeded reports whether the processor accepted the charge.
func (c ChargeOutcome) Succeeded() bool {
	return c.Status == domain.TransactionStatusSuccessful
}

// Handler consumes an event. Returning an error asks for redelivery.
type Handler func(ctx context.Context, e Event) error

// Publisher emits events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// New builds an event with a fresh id.
func New(name Name, payload any) Event {
	return Event{
		ID:         uuid.New().String(),
		Name:       name,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// RideID extracts the ride id of a ride payload, or "" for unknown payloads.
func (e Event) RideID() string {
	switch p := e.Payload.(type) {
	case RideCreatedPayload:
		return p.Ride.ID
	case RideFinishedPayload:
		return p.Ride.ID
	default:
		return ""
	}
}
