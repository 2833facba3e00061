package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridepay/internal/domain"
	"ridepay/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Coordinates is a [longitude, latitude] pair.
type Coordinates []float64

// Point converts the pair to a domain point. Callers bind with len=2.
func (c Coordinates) Point() domain.Point {
	return domain.Point{Lng: c[0], Lat: c[1]}
}

func coordinates(p domain.Point) Coordinates {
	return Coordinates{p.Lng, p.Lat}
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	class := service.ErrorClass(err)
	_ = c.Error(err)
	c.JSON(statusForClass(class), ErrorResponse{Error: err.Error(), Code: class.String()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: service.ClassValidation.String()})
}

func statusForClass(class service.Class) int {
	switch class {
	case service.ClassValidation:
		return http.StatusBadRequest
	case service.ClassNotFound:
		return http.StatusNotFound
	case service.ClassConflict:
		return http.StatusConflict
	case service.ClassDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
