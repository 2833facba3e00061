package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridepay/internal/domain"
	"ridepay/internal/service"
)

// PaymentSourceService registers rider payment sources.
type PaymentSourceService interface {
	CreatePaymentSource(ctx context.Context, req service.CreatePaymentSourceRequest) (*domain.PaymentMethod, error)
}

// PaymentSourceHandler handles HTTP requests for rider payment sources.
type PaymentSourceHandler struct {
	paymentSourceService PaymentSourceService
}

// NewPaymentSourceHandler creates a new PaymentSourceHandler.
func NewPaymentSourceHandler(paymentSourceService PaymentSourceService) *PaymentSourceHandler {
	return &PaymentSourceHandler{paymentSourceService: paymentSourceService}
}

// CreatePaymentSourceRequest is the HTTP request body for registering a
// payment source. Both tokens are optional; see PaymentSourceService.
type CreatePaymentSourceRequest struct {
	AcceptanceToken string `json:"acceptance_token"`
	CardToken       string `json:"card_token"`
}

// PaymentMethodResponse is the HTTP representation of a payment method. The
// processor token is never returned.
type PaymentMethodResponse struct {
	ID              string `json:"id"`
	RiderID         string `json:"rider_id"`
	PaymentSourceID string `json:"payment_source_id"`
	Type            string `json:"type"`
	Default         bool   `json:"default_method"`
	CreatedAt       string `json:"created_at"`
}

// CreatePaymentSource handles POST /v1/riders/:id/payment-sources
func (h *PaymentSourceHandler) CreatePaymentSource(c *gin.Context) {
	var req CreatePaymentSourceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	method, err := h.paymentSourceService.CreatePaymentSource(c.Request.Context(), service.CreatePaymentSourceRequest{
		RiderID:         c.Param("id"),
		AcceptanceToken: req.AcceptanceToken,
		CardToken:       req.CardToken,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, PaymentMethodResponse{
		ID:              method.ID,
		RiderID:         method.UserID,
		PaymentSourceID: method.PaymentSourceID,
		Type:            string(method.Type),
		Default:         method.Default,
		CreatedAt:       formatTime(&method.CreatedAt),
	})
}
