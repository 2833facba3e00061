package gateway

import (
	"bytes"
	"encoding/json"

	"ridepay/internal/domain"
)

// Card is raw card data exchanged for a token. It never leaves this package
// except as a tokenization request.
type Card struct {
	Number     string `json:"number"`
	CVC        string `json:"cvc"`
	ExpMonth   string `json:"exp_month"`
	ExpYear    string `json:"exp_year"`
	CardHolder string `json:"card_holder"`
}

// SandboxCard is the processor's documented approved test card.
var SandboxCard = Card{
	Number:     "4242424242424242",
	CVC:        "789",
	ExpMonth:   "12",
	ExpYear:    "29",
	CardHolder: "Pedro Pérez",
}

// CreatePaymentSourceRequest registers a reusable payment source.
type CreatePaymentSourceRequest struct {
	Type            string `json:"type"`
	Token           string `json:"token"`
	CustomerEmail   string `json:"customer_email"`
	AcceptanceToken string `json:"acceptance_token"`
}

// PaymentSource is the processor's handle on a tokenized instrument.
type PaymentSource struct {
	ID     string
	Token  string
	Type   string
	Status string
}

// ChargeRequest describes one charge against a payment source.
type ChargeRequest struct {
	Amount          domain.Amount
	CustomerEmail   string
	Reference       string
	PaymentSourceID string
}

// ChargeResult is the processor's answer to a charge. Succeeded is true
// whenever the processor assigned a transaction id.
type ChargeResult struct {
	TransactionID string
	Status        string
	Succeeded     bool
}

// TransactionDetails is the processor-side view of a transaction.
type TransactionDetails struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
	Reference     string `json:"reference"`
	AmountInCents int64  `json:"amount_in_cents"`
	Currency      string `json:"currency"`
	CreatedAt     string `json:"created_at"`
}

// flexibleID accepts both numeric and string identifiers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type merchantData struct {
	PresignedAcceptance struct {
		AcceptanceToken string `json:"acceptance_token"`
		Permalink       string `json:"permalink"`
		Type            string `json:"type"`
	} `json:"presigned_acceptance"`
}

type tokenData struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type paymentSourceData struct {
	ID     flexibleID `json:"id"`
	Token  string     `json:"token"`
	Type   string     `json:"type"`
	Status string     `json:"status"`
}

type paymentMethodParams struct {
	Installments int `json:"installments"`
}

type chargeBody struct {
	AmountInCents   int64               `json:"amount_in_cents"`
	Currency        string              `json:"currency"`
	CustomerEmail   string              `json:"customer_email"`
	PaymentMethod   paymentMethodParams `json:"payment_method"`
	Reference       string              `json:"reference"`
	PaymentSourceID json.Number         `json:"payment_source_id"`
	Signature       string              `json:"signature,omitempty"`
}

type transactionData struct {
	ID            flexibleID `json:"id"`
	Status        string     `json:"status"`
	StatusMessage string     `json:"status_message"`
	Reference     string     `json:"reference"`
	AmountInCents int64      `json:"amount_in_cents"`
	Currency      string     `json:"currency"`
	CreatedAt     string     `json:"created_at"`
}

func (t transactionData) details() TransactionDetails {
	return TransactionDetails{
		ID:            string(t.ID),
		Status:        t.Status,
		StatusMessage: t.StatusMessage,
		Reference:     t.Reference,
		AmountInCents: t.AmountInCents,
		Currency:      t.Currency,
		CreatedAt:     t.CreatedAt,
	}
}

type errorBody struct {
	Error struct {
		Type     string          `json:"type"`
		Reason   string          `json:"reason"`
		Messages json.RawMessage `json:"messages"`
	} `json:"error"`
}
