package domain

import "time"

// Receipt summarises a finished ride for the rider.
type Receipt struct {
	ID                     string
	RideID                 string
	RiderID                string
	DriverID               string
	Start                  Point
	End                    Point
	DistanceKm             float64
	Duration               time.Duration
	BaseFare               float64
	DistanceFare           float64
	TimeFare               float64
	TotalFare              Amount
	PaymentStatus          TransactionStatus
	ProcessorTransactionID string
	StartedAt              time.Time
	EndedAt                time.Time
	CreatedAt              time.Time
}
