package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ridepay/internal/domain"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a writer that picks the topic per message and keys
// partitions by ride id, keeping each ride's signals in order.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// KafkaSink forwards events to Kafka for subscribers outside this process.
type KafkaSink struct {
	writer MessageWriter
	prefix string
}

// NewKafkaSink creates a sink publishing to "<prefix>.<event name>".
func NewKafkaSink(writer MessageWriter, prefix string) *KafkaSink {
	return &KafkaSink{writer: writer, prefix: prefix}
}

// Topic returns the Kafka topic for an event name.
func (s *KafkaSink) Topic(name Name) string {
	if s.prefix == "" {
		return string(name)
	}
	return s.prefix + "." + string(name)
}

// Handle is an events.Handler writing e to Kafka.
func (s *KafkaSink) Handle(ctx context.Context, e Event) error {
	value, err := json.Marshal(encode(e))
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Name, err)
	}
	msg := kafka.Message{
		Topic: s.Topic(e.Name),
		Key:   []byte(e.RideID()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(e.ID)},
			{Key: "event_name", Value: []byte(e.Name)},
		},
	}
	if e.CorrelationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "correlation_id", Value: []byte(e.CorrelationID)})
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s to kafka: %w", e.Name, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

type message struct {
	ID         string       `json:"id"`
	Name       Name         `json:"name"`
	OccurredAt time.Time    `json:"occurred_at"`
	Ride       *rideMessage `json:"ride,omitempty"`
	Fare       *int64       `json:"fare,omitempty"`
	Charge     *chargeMsg   `json:"charge,omitempty"`

	CorrelationID string `json:"correlation_id,omitempty"`
}

type pointMessage struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

type rideMessage struct {
	ID            string        `json:"id"`
	RiderID       string        `json:"rider_id"`
	DriverID      string        `json:"driver_id"`
	Status        string        `json:"status"`
	StartLocation pointMessage  `json:"start_location"`
	EndLocation   *pointMessage `json:"end_location,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	TotalCharged  *int64        `json:"total_charged,omitempty"`
}

type chargeMsg struct {
	TransactionID          string `json:"transaction_id"`
	ProcessorTransactionID string `json:"processor_transaction_id"`
	Status                 string `json:"status"`
	Reference              string `json:"reference"`
	Error                  string `json:"error,omitempty"`
}

func encode(e Event) message {
	m := message{ID: e.ID, Name: e.Name, OccurredAt: e.OccurredAt, CorrelationID: e.CorrelationID}
	switch p := e.Payload.(type) {
	case RideCreatedPayload:
		m.Ride = encodeRide(p.Ride)
	case RideFinishedPayload:
		m.Ride = encodeRide(p.Ride)
		fare := int64(p.Fare)
		m.Fare = &fare
		m.Charge = &chargeMsg{
			TransactionID:          p.Charge.TransactionID,
			ProcessorTransactionID: p.Charge.ProcessorTransactionID,
			Status:                 string(p.Charge.Status),
			Reference:              p.Charge.Reference,
			Error:                  p.Charge.Error,
		}
	}
	return m
}

func encodeRide(r domain.Ride) *rideMessage {
	rm := &rideMessage{
		ID:            r.ID,
		RiderID:       r.RiderID,
		DriverID:      r.DriverID,
		Status:        string(r.Status),
		StartLocation: pointMessage{Lng: r.StartLocation.Lng, Lat: r.StartLocation.Lat},
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
	}
	if r.EndLocation != nil {
		rm.EndLocation = &pointMessage{Lng: r.EndLocation.Lng, Lat: r.EndLocation.Lat}
	}
	if r.TotalCharged != nil {
		total := int64(*r.TotalCharged)
		rm.TotalCharged = &total
	}
	return rm
}
