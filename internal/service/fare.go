package service

import (
	"math"
	"time"

	"ridepay/internal/domain"
)

// Fare constants, in the processor's base monetary unit.
const (
	BaseFee        = 3500
	PricePerKm     = 1000
	PricePerMinute = 200
)

// FareBreakdown itemises a computed fare.
type FareBreakdown struct {
	DistanceKm        float64
	DurationMin       float64
	Base              float64
	DistanceComponent float64
	TimeComponent     float64
	Total             domain.Amount
}

// ComputeFare prices a ride from its endpoints and timestamps. Distance is
// the haversine distance rounded to two decimals; duration is fractional
// minutes. The total is rounded half away from zero.
func ComputeFare(start, end domain.Point, startTime, endTime time.Time) (FareBreakdown, error) {
	if startTime.IsZero() || endTime.IsZero() || endTime.Before(startTime) {
		return FareBreakdown{}, ErrInvalidRideState
	}

	km := domain.RoundKm(start.DistanceKm(end))
	minutes := endTime.Sub(startTime).Minutes()

	b := FareBreakdown{
		DistanceKm:        km,
		DurationMin:       minutes,
		Base:              BaseFee,
		DistanceComponent: km * PricePerKm,
		TimeComponent:     minutes * PricePerMinute,
	}
	b.Total = domain.Amount(math.Round(b.Base + b.DistanceComponent + b.TimeComponent))
	return b, nil
}

// CalculateFare returns only the total of ComputeFare.
func CalculateFare(start, end domain.Point, startTime, endTime time.Time) (domain.Amount, error) {
	b, err := ComputeFare(start, end, startTime, endTime)
	if err != nil {
		return 0, err
	}
	return b.Total, nil
}
