package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridepay/internal/domain"
	"ridepay/internal/service"
)

// RideService is the ride orchestration used by RideHandler.
type RideService interface {
	CreateRide(ctx context.Context, req service.CreateRideRequest) (*domain.Ride, error)
	FinishRide(ctx context.Context, req service.FinishRideRequest) (*service.FinishRideResult, error)
	GetRide(ctx context.Context, rideID string) (*domain.Ride, error)
}

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService RideService) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// CreateRideRequest is the HTTP request body for creating a ride.
type CreateRideRequest struct {
	RiderID       string      `json:"rider_id" binding:"required"`
	StartLocation Coordinates `json:"start_location" binding:"required,len=2"`
	EndLocation   Coordinates `json:"end_location" binding:"required,len=2"`
}

// FinishRideRequest is the HTTP request body for finishing a ride.
type FinishRideRequest struct {
	FinalLocation Coordinates `json:"final_location" binding:"required,len=2"`
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	ID            string      `json:"id"`
	RiderID       string      `json:"rider_id"`
	DriverID      string      `json:"driver_id,omitempty"`
	Status        string      `json:"status"`
	StartLocation Coordinates `json:"start_location"`
	EndLocation   Coordinates `json:"end_location,omitempty"`
	StartTime     string      `json:"start_time"`
	EndTime       string      `json:"end_time,omitempty"`
	TotalCharged  *int64      `json:"total_charged,omitempty"`
}

// TransactionResponse is the HTTP representation of a charge attempt.
type TransactionResponse struct {
	ID                     string `json:"id"`
	Status                 string `json:"status"`
	Amount                 int64  `json:"amount"`
	Reference              string `json:"reference"`
	ProcessorTransactionID string `json:"wompi_transaction_id"`
}

// FareResponse itemises the fare of a finished ride.
type FareResponse struct {
	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`
	Base        float64 `json:"base"`
	Distance    float64 `json:"distance"`
	Time        float64 `json:"time"`
	Total       int64   `json:"total"`
}

// FinishRideResponse is the HTTP response for finishing a ride. Error is set
// when the ride was finished but the charge did not go through.
type FinishRideResponse struct {
	Ride        RideResponse        `json:"ride"`
	Transaction TransactionResponse `json:"transaction"`
	Fare        FareResponse        `json:"fare"`
	Error       string              `json:"error,omitempty"`
}

func newRideResponse(r *domain.Ride) RideResponse {
	resp := RideResponse{
		ID:            r.ID,
		RiderID:       r.RiderID,
		DriverID:      r.DriverID,
		Status:        string(r.Status),
		StartLocation: coordinates(r.StartLocation),
		StartTime:     r.StartTime.UTC().Format(time.RFC3339),
		EndTime:       formatTime(r.EndTime),
	}
	if r.EndLocation != nil {
		resp.EndLocation = coordinates(*r.EndLocation)
	}
	if r.TotalCharged != nil {
		total := int64(*r.TotalCharged)
		resp.TotalCharged = &total
	}
	return resp
}

func newFinishRideResponse(res *service.FinishRideResult) FinishRideResponse {
	return FinishRideResponse{
		Ride: newRideResponse(res.Ride),
		Transaction: TransactionResponse{
			ID:                     res.Transaction.ID,
			Status:                 string(res.Transaction.Status),
			Amount:                 int64(res.Transaction.Amount),
			Reference:              res.Transaction.Reference,
			ProcessorTransactionID: res.Transaction.ProcessorTransactionID,
		},
		Fare: FareResponse{
			DistanceKm:  res.Fare.DistanceKm,
			DurationMin: res.Fare.DurationMin,
			Base:        res.Fare.Base,
			Distance:    res.Fare.DistanceComponent,
			Time:        res.Fare.TimeComponent,
			Total:       int64(res.Fare.Total),
		},
	}
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ride, err := h.rideService.CreateRide(c.Request.Context(), service.CreateRideRequest{
		RiderID: req.RiderID,
		Start:   req.StartLocation.Point(),
		End:     req.EndLocation.Point(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, newRideResponse(ride))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rideService.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newRideResponse(ride))
}

// FinishRide handles PATCH /v1/rides/:id/finish
func (h *RideHandler) FinishRide(c *gin.Context) {
	var req FinishRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	res, err := h.rideService.FinishRide(c.Request.Context(), service.FinishRideRequest{
		RideID:     c.Param("id"),
		FinalPoint: req.FinalLocation.Point(),
	})
	switch {
	case err == nil:
		respondJSON(c, http.StatusOK, newFinishRideResponse(res))
	case res != nil && errors.Is(err, service.ErrPaymentNotCompleted):
		// The ride is settled; only the money did not move.
		_ = c.Error(err)
		body := newFinishRideResponse(res)
		body.Error = err.Error()
		respondJSON(c, http.StatusBadGateway, body)
	default:
		respondError(c, err)
	}
}
