package service

import (
	"errors"
	"testing"
	"time"

	"ridepay/internal/domain"
)

func TestCalculateFare(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		start    domain.Point
		end      domain.Point
		duration time.Duration
		want     domain.Amount
	}{
		{"one hour across town", pickup, dropoff, time.Hour, 17970},
		{"fractional minutes", pickup, dropoff, 12*time.Minute + 30*time.Second, 8470},
		{"same point no time", pickup, pickup, 0, BaseFee},
		{"one degree of longitude at the equator", domain.Point{Lng: 0, Lat: 0}, domain.Point{Lng: 1, Lat: 0}, 0, 114690},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := CalculateFare(tc.start, tc.end, t0, t0.Add(tc.duration))
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected fare %d, got %d", tc.want, got)
			}
		})
	}
}

func TestComputeFare_Breakdown(t *testing.T) {
	t.Parallel()

	b, err := ComputeFare(pickup, dropoff, t0, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if b.DistanceKm != 2.47 {
		t.Errorf("expected 2.47 km, got %v", b.DistanceKm)
	}
	if b.DurationMin != 60 {
		t.Errorf("expected 60 minutes, got %v", b.DurationMin)
	}
	if b.Base != BaseFee || b.DistanceComponent != 2470 || b.TimeComponent != 12000 {
		t.Errorf("unexpected breakdown: %+v", b)
	}
}

func TestCalculateFare_IsSymmetricInDirection(t *testing.T) {
	t.Parallel()

	there, err := CalculateFare(pickup, dropoff, t0, t0.Add(20*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	back, err := CalculateFare(dropoff, pickup, t0, t0.Add(20*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if there != back {
		t.Errorf("expected equal fares, got %d and %d", there, back)
	}
}

func TestCalculateFare_InvalidTimestamps(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		startTime time.Time
		endTime   time.Time
	}{
		{"end before start", t0, t0.Add(-time.Second)},
		{"missing start", time.Time{}, t0},
		{"missing end", t0, time.Time{}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := CalculateFare(pickup, dropoff, tc.startTime, tc.endTime)
			if !errors.Is(err, ErrInvalidRideState) {
				t.Errorf("expected ErrInvalidRideState, got %v", err)
			}
		})
	}
}
