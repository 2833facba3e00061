package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

const maxResponseBytes = 1 << 20

// Config holds processor credentials and client settings.
type Config struct {
	BaseURL         string
	PublicKey       string
	PrivateKey      string
	IntegritySecret string
	Currency        string
	Timeout         time.Duration
}

// Client is a stateless adapter over the payment processor's HTTP API.
// It never retries; every call is bounded by Config.Timeout.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewHTTPClient returns an http.Client whose transport reports external
// segments to New Relic when a transaction is present in the request context.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: newrelic.NewRoundTripper(http.DefaultTransport)}
}

// NewClient creates a new Client. A nil httpClient uses NewHTTPClient.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	if cfg.Currency == "" {
		cfg.Currency = "COP"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpClient}
}

// AcceptanceToken fetches the merchant's current presigned acceptance token.
func (c *Client) AcceptanceToken(ctx context.Context) (string, error) {
	const op = "acceptance_token"

	var out envelope[merchantData]
	if err := c.do(ctx, op, http.MethodGet, "/merchants/"+url.PathEscape(c.cfg.PublicKey), c.cfg.PublicKey, nil, &out); err != nil {
		return "", err
	}
	token := out.Data.PresignedAcceptance.AcceptanceToken
	if token == "" {
		return "", &Error{Kind: KindTransport, Op: op, Message: "response carried no acceptance token"}
	}
	return token, nil
}

// TokenizeCard exchanges raw card data for a reusable card token.
func (c *Client) TokenizeCard(ctx context.Context, card Card) (string, error) {
	const op = "tokenize_card"

	var out envelope[tokenData]
	if err := c.do(ctx, op, http.MethodPost, "/tokens/cards", c.cfg.PublicKey, card, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", &Error{Kind: KindTransport, Op: op, Message: "response carried no token id"}
	}
	return out.Data.ID, nil
}

// CreatePaymentSource registers a reusable payment source for future charges.
func (c *Client) CreatePaymentSource(ctx context.Context, req CreatePaymentSourceRequest) (*PaymentSource, error) {
	const op = "create_payment_source"

	if req.Token == "" || req.AcceptanceToken == "" || req.CustomerEmail == "" {
		return nil, &Error{Kind: KindValidation, Op: op, Message: "token, acceptance token and customer email are required"}
	}
	if req.Type == "" {
		req.Type = "CARD"
	}

	var out envelope[paymentSourceData]
	if err := c.do(ctx, op, http.MethodPost, "/payment_sources", c.cfg.PrivateKey, req, &out); err != nil {
		return nil, err
	}
	if out.Data.ID == "" {
		return nil, &Error{Kind: KindTransport, Op: op, Message: "response carried no payment source id"}
	}
	return &PaymentSource{
		ID:     string(out.Data.ID),
		Token:  out.Data.Token,
		Type:   out.Data.Type,
		Status: out.Data.Status,
	}, nil
}

// Charge executes a charge against a payment source. The amount is expressed
// in base units and sent to the processor in cents.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	const op = "charge"

	if req.Amount <= 0 {
		return nil, &Error{Kind: KindValidation, Op: op, Message: "amount must be positive"}
	}
	if req.Reference == "" || req.CustomerEmail == "" {
		return nil, &Error{Kind: KindValidation, Op: op, Message: "reference and customer email are required"}
	}
	if _, err := strconv.ParseInt(req.PaymentSourceID, 10, 64); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Message: "payment source id must be numeric", Err: err}
	}

	body := chargeBody{
		AmountInCents:   int64(req.Amount) * 100,
		Currency:        c.cfg.Currency,
		CustomerEmail:   req.CustomerEmail,
		PaymentMethod:   paymentMethodParams{Installments: 1},
		Reference:       req.Reference,
		PaymentSourceID: json.Number(req.PaymentSourceID),
	}
	if c.cfg.IntegritySecret != "" {
		body.Signature = Signature(body.Reference, body.AmountInCents, body.Currency, c.cfg.IntegritySecret)
	}

	var out envelope[transactionData]
	if err := c.do(ctx, op, http.MethodPost, "/transactions", c.cfg.PrivateKey, body, &out); err != nil {
		return nil, err
	}
	id := string(out.Data.ID)
	return &ChargeResult{
		TransactionID: id,
		Status:        out.Data.Status,
		Succeeded:     id != "",
	}, nil
}

// GetTransaction fetches a transaction by processor id. Used for
// reconciliation only.
func (c *Client) GetTransaction(ctx context.Context, id string) (*TransactionDetails, error) {
	const op = "get_transaction"

	if id == "" {
		return nil, &Error{Kind: KindValidation, Op: op, Message: "transaction id is required"}
	}

	var out envelope[transactionData]
	if err := c.do(ctx, op, http.MethodGet, "/transactions/"+url.PathEscape(id), c.cfg.PrivateKey, nil, &out); err != nil {
		return nil, err
	}
	details := out.Data.details()
	return &details, nil
}

// FindTransactionsByReference lists processor transactions carrying reference.
// It recovers charges whose response never reached us.
func (c *Client) FindTransactionsByReference(ctx context.Context, reference string) ([]TransactionDetails, error) {
	const op = "find_transactions"

	if reference == "" {
		return nil, &Error{Kind: KindValidation, Op: op, Message: "reference is required"}
	}

	var out envelope[[]transactionData]
	path := "/transactions?" + url.Values{"reference": {reference}}.Encode()
	if err := c.do(ctx, op, http.MethodGet, path, c.cfg.PrivateKey, nil, &out); err != nil {
		return nil, err
	}
	result := make([]TransactionDetails, 0, len(out.Data))
	for _, t := range out.Data {
		result = append(result, t.details())
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, op, method, path, key string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: KindValidation, Op: op, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &Error{Kind: KindTransport, Op: op, Message: "timeout", Err: err}
		}
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(op, resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Kind: KindTransport, Op: op, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
		}
	}
	return nil
}

func decodeError(op string, status int, raw []byte) *Error {
	gwErr := &Error{Kind: KindHTTP, Op: op, StatusCode: status}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		gwErr.Message = http.StatusText(status)
		return gwErr
	}

	gwErr.Type = body.Error.Type
	gwErr.Message = body.Error.Reason
	if len(body.Error.Messages) > 0 {
		var fields map[string][]string
		if err := json.Unmarshal(body.Error.Messages, &fields); err == nil {
			gwErr.Fields = fields
		} else if gwErr.Message == "" {
			gwErr.Message = string(body.Error.Messages)
		}
	}
	if gwErr.Message == "" && len(gwErr.Fields) > 0 {
		gwErr.Message = fmt.Sprintf("%d invalid field(s)", len(gwErr.Fields))
	}

	if status == http.StatusUnprocessableEntity || gwErr.Type == "INPUT_VALIDATION_ERROR" {
		gwErr.Kind = KindValidation
	}
	return gwErr
}
