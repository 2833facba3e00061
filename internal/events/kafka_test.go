package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"ridepay/internal/domain"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestKafkaSink_WritesRideFinished(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	sink := NewKafkaSink(w, "ridepay")

	end := domain.Point{Lng: -76.5360452, Lat: 3.4216413}
	endTime := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	total := domain.Amount(17970)
	e := New(RideFinished, RideFinishedPayload{
		Ride: domain.Ride{
			ID:           "ride-1",
			RiderID:      "rider-1",
			DriverID:     "driver-1",
			Status:       domain.RideStatusFinished,
			EndLocation:  &end,
			EndTime:      &endTime,
			TotalCharged: &total,
		},
		Fare: 17970,
		Charge: ChargeOutcome{
			TransactionID:          "tx-1",
			ProcessorTransactionID: "wompi-1",
			Status:                 domain.TransactionStatusSuccessful,
			Reference:              "RIDE-ride-1",
		},
	})
	e.CorrelationID = "req-7"

	if err := sink.Handle(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "ridepay.ride.finished" {
		t.Errorf("unexpected topic %q", msg.Topic)
	}
	if string(msg.Key) != "ride-1" {
		t.Errorf("expected ride id as key, got %q", msg.Key)
	}

	var correlation string
	for _, h := range msg.Headers {
		if h.Key == "correlation_id" {
			correlation = string(h.Value)
		}
	}
	if correlation != "req-7" {
		t.Errorf("expected correlation_id header, got %q", correlation)
	}

	var body struct {
		Name          string `json:"name"`
		CorrelationID string `json:"correlation_id"`
		Fare          int64  `json:"fare"`
		Ride          struct {
			TotalCharged int64 `json:"total_charged"`
			EndLocation  struct {
				Lat float64 `json:"lat"`
			} `json:"end_location"`
		} `json:"ride"`
		Charge        struct {
			Status string `json:"status"`
		} `json:"charge"`
	}
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Name != "ride.finished" || body.CorrelationID != "req-7" || body.Fare != 17970 || body.Ride.TotalCharged != 17970 {
		t.Errorf("unexpected body %+v", body)
	}
	if body.Ride.EndLocation.Lat != 3.4216413 {
		t.Errorf("unexpected end location %+v", body.Ride.EndLocation)
	}
	if body.Charge.Status != "successful" {
		t.Errorf("unexpected charge status %q", body.Charge.Status)
	}
}

func TestKafkaSink_PropagatesWriteErrors(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{err: errors.New("broker down")}
	sink := NewKafkaSink(w, "")

	err := sink.Handle(context.Background(), New(RideCreated, RideCreatedPayload{Ride: domain.Ride{ID: "r"}}))
	if err == nil {
		t.Fatal("expected error so the dispatcher retries")
	}
	if sink.Topic(RideCreated) != "ride.created" {
		t.Errorf("unexpected topic without prefix %q", sink.Topic(RideCreated))
	}
	_ = sink.Close()
	if !w.closed {
		t.Error("expected writer to be closed")
	}
}
