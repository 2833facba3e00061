package service

import (
	"context"

	"ridepay/internal/gateway"
)

// PaymentGateway is the subset of the processor client the services use.
type PaymentGateway interface {
	AcceptanceToken(ctx context.Context) (string, error)
	TokenizeCard(ctx context.Context, card gateway.Card) (string, error)
	CreatePaymentSource(ctx context.Context, req gateway.CreatePaymentSourceRequest) (*gateway.PaymentSource, error)
	Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error)
	GetTransaction(ctx context.Context, id string) (*gateway.TransactionDetails, error)
	FindTransactionsByReference(ctx context.Context, reference string) ([]gateway.TransactionDetails, error)
}

var _ PaymentGateway = (*gateway.Client)(nil)
