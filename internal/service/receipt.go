package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ridepay/internal/domain"
	"ridepay/internal/events"
	"ridepay/internal/logger"
)

// ReceiptService handles receipt generation.
type ReceiptService struct {
	notificationService *NotificationService
	log                 *zap.Logger
}

// NewReceiptService creates a new ReceiptService.
func NewReceiptService(notificationService *NotificationService, log *zap.Logger) *ReceiptService {
	return &ReceiptService{
		notificationService: notificationService,
		log:                 logger.OrNop(log),
	}
}

// HandleRideFinished builds the receipt of a finished ride and notifies the rider.
func (s *ReceiptService) HandleRideFinished(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.RideFinishedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", e.Payload, e.Name)
	}

	receipt, err := s.GenerateReceipt(&p.Ride, p.Charge)
	if err != nil {
		return err
	}

	logger.FromContext(ctx, s.log).Debug("receipt generated",
		zap.String("ride_id", receipt.RideID),
		zap.String("receipt", s.FormatReceipt(receipt)),
	)

	if s.notificationService != nil {
		return s.notificationService.NotifyReceiptReady(ctx, receipt)
	}
	return nil
}

// GenerateReceipt itemises the fare of a finished ride.
func (s *ReceiptService) GenerateReceipt(ride *domain.Ride, charge events.ChargeOutcome) (*domain.Receipt, error) {
	if ride == nil || ride.Status != domain.RideStatusFinished || ride.EndLocation == nil || ride.EndTime == nil || ride.TotalCharged == nil {
		return nil, ErrInvalidRideState
	}

	fare, err := ComputeFare(ride.StartLocation, *ride.EndLocation, ride.StartTime, *ride.EndTime)
	if err != nil {
		return nil, err
	}

	return &domain.Receipt{
		ID:                     uuid.New().String(),
		RideID:                 ride.ID,
		RiderID:                ride.RiderID,
		DriverID:               ride.DriverID,
		Start:                  ride.StartLocation,
		End:                    *ride.EndLocation,
		DistanceKm:             fare.DistanceKm,
		Duration:               ride.EndTime.Sub(ride.StartTime),
		BaseFare:               fare.Base,
		DistanceFare:           fare.DistanceComponent,
		TimeFare:               fare.TimeComponent,
		TotalFare:              *ride.TotalCharged,
		PaymentStatus:          charge.Status,
		ProcessorTransactionID: charge.ProcessorTransactionID,
		StartedAt:              ride.StartTime,
		EndedAt:                *ride.EndTime,
		CreatedAt:              time.Now(),
	}, nil
}

// FormatReceipt formats the receipt as a string (for email/print).
func (s *ReceiptService) FormatReceipt(receipt *domain.Receipt) string {
	return `
=====================================
        RIDE RECEIPT
=====================================
Receipt ID: ` + receipt.ID + `
Ride ID: ` + receipt.RideID + `
Date: ` + receipt.EndedAt.Format("Jan 02, 2006 3:04 PM") + `

RIDE DETAILS
-------------------------------------
From:     (` + formatCoord(receipt.Start.Lat) + `, ` + formatCoord(receipt.Start.Lng) + `)
To:       (` + formatCoord(receipt.End.Lat) + `, ` + formatCoord(receipt.End.Lng) + `)
Duration: ` + formatDuration(receipt.Duration) + `
Distance: ` + formatFloat(receipt.DistanceKm) + ` km

FARE BREAKDOWN
-------------------------------------
Base:      ` + formatFloat(receipt.BaseFare) + `
Distance:  ` + formatFloat(receipt.DistanceFare) + `
Time:      ` + formatFloat(receipt.TimeFare) + `
-------------------------------------
TOTAL:     ` + fmt.Sprintf("%d", receipt.TotalFare) + `

PAYMENT
-------------------------------------
Status: ` + string(receipt.PaymentStatus) + `
Processor ref: ` + receipt.ProcessorTransactionID + `

=====================================
     Thank you for riding with us!
=====================================
`
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

func formatCoord(f float64) string {
	return fmt.Sprintf("%.6f", f)
}

func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	return fmt.Sprintf("%d min", minutes)
}
