package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ridepay/internal/domain"
	"ridepay/internal/events"
	"ridepay/internal/logger"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationDriverAssigned NotificationType = "DRIVER_ASSIGNED"
	NotificationRideFinished   NotificationType = "RIDE_FINISHED"
	NotificationPaymentSuccess NotificationType = "PAYMENT_SUCCESS"
	NotificationPaymentFailed  NotificationType = "PAYMENT_FAILED"
	NotificationReceiptReady   NotificationType = "RECEIPT_READY"
)

// Notification represents a notification to be sent.
type Notification struct {
	Type        NotificationType
	RecipientID string
	Title       string
	Message     string
	Data        map[string]any
	CreatedAt   time.Time
}

// Sender delivers a notification to its recipient.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the log. It stands in for push, SMS and
// email channels.
type LogSender struct {
	log *zap.Logger
}

// NewLogSender creates a new LogSender.
func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: logger.OrNop(log)}
}

// Send logs the notification.
func (s *LogSender) Send(ctx context.Context, n Notification) error {
	logger.FromContext(ctx, s.log).Info("notification",
		zap.String("type", string(n.Type)),
		zap.String("recipient_id", n.RecipientID),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
	)
	return nil
}

// NotificationService turns ride events into rider notifications.
type NotificationService struct {
	sender Sender
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(sender Sender) *NotificationService {
	return &NotificationService{sender: sender}
}

// HandleRideCreated tells the rider which driver was assigned.
func (s *NotificationService) HandleRideCreated(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.RideCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", e.Payload, e.Name)
	}
	return s.sender.Send(ctx, Notification{
		Type:        NotificationDriverAssigned,
		RecipientID: p.Ride.RiderID,
		Title:       "Driver Assigned",
		Message:     "A driver is on the way to your pickup point",
		Data: map[string]any{
			"ride_id":   p.Ride.ID,
			"driver_id": p.Ride.DriverID,
		},
		CreatedAt: e.OccurredAt,
	})
}

// HandleRideFinished tells the rider the ride ended and whether the charge
// went through.
func (s *NotificationService) HandleRideFinished(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.RideFinishedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", e.Payload, e.Name)
	}

	n := Notification{
		RecipientID: p.Ride.RiderID,
		Data: map[string]any{
			"ride_id":        p.Ride.ID,
			"fare":           int64(p.Fare),
			"transaction_id": p.Charge.TransactionID,
		},
		CreatedAt: e.OccurredAt,
	}
	if p.Charge.Succeeded() {
		n.Type = NotificationPaymentSuccess
		n.Title = "Payment Successful"
		n.Message = fmt.Sprintf("Your ride is complete. We charged %d.", p.Fare)
	} else {
		n.Type = NotificationPaymentFailed
		n.Title = "Payment Failed"
		n.Message = fmt.Sprintf("Your ride is complete but the charge of %d could not be completed.", p.Fare)
	}
	return s.sender.Send(ctx, n)
}

// NotifyReceiptReady tells the rider that a receipt is available.
func (s *NotificationService) NotifyReceiptReady(ctx context.Context, receipt *domain.Receipt) error {
	return s.sender.Send(ctx, Notification{
		Type:        NotificationReceiptReady,
		RecipientID: receipt.RiderID,
		Title:       "Receipt Ready",
		Message:     fmt.Sprintf("Your receipt for %d is ready", receipt.TotalFare),
		Data: map[string]any{
			"receipt_id": receipt.ID,
			"ride_id":    receipt.RideID,
			"total_fare": int64(receipt.TotalFare),
		},
		CreatedAt: receipt.CreatedAt,
	})
}
