package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridepay/internal/service"
)

// DriverService maintains driver positions.
type DriverService interface {
	UpdateLocation(ctx context.Context, req service.UpdateLocationRequest) error
	RetireLocation(ctx context.Context, driverID string) error
}

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	driverService DriverService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(driverService DriverService) *DriverHandler {
	return &DriverHandler{driverService: driverService}
}

// UpdateLocationRequest is the HTTP request body for updating driver location.
type UpdateLocationRequest struct {
	Location Coordinates `json:"location" binding:"required,len=2"`
}

// UpdateLocation handles POST /v1/drivers/:id/location
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	err := h.driverService.UpdateLocation(c.Request.Context(), service.UpdateLocationRequest{
		DriverID: c.Param("id"),
		Point:    req.Location.Point(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RetireLocation handles DELETE /v1/drivers/:id/location
func (h *DriverHandler) RetireLocation(c *gin.Context) {
	if err := h.driverService.RetireLocation(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
