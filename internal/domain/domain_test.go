package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

var (
	rideStart = Point{Lng: -76.5368824, Lat: 3.4438444}
	rideEnd   = Point{Lng: -76.5360452, Lat: 3.4216413}
)

func TestPoint_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		p     Point
		valid bool
	}{
		{"origin", Point{0, 0}, true},
		{"corners", Point{180, -90}, true},
		{"cali", rideStart, true},
		{"lng too big", Point{180.0001, 0}, false},
		{"lng too small", Point{-181, 0}, false},
		{"lat too big", Point{0, 90.5}, false},
		{"lat too small", Point{0, -91}, false},
		{"nan", Point{math.NaN(), 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidPoint) {
				t.Errorf("expected ErrInvalidPoint, got %v", err)
			}
		})
	}
}

func TestPoint_DistanceKm(t *testing.T) {
	t.Parallel()

	if d := rideStart.DistanceKm(rideStart); d != 0 {
		t.Errorf("expected 0 for identical points, got %f", d)
	}

	oneDegree := Point{0, 0}.DistanceKm(Point{1, 0})
	if math.Abs(oneDegree-111.1949) > 0.001 {
		t.Errorf("expected ~111.195km per degree at the equator, got %f", oneDegree)
	}

	nyParis := Point{-74.0, 40.7}.DistanceKm(Point{2.35, 48.85})
	if math.Abs(nyParis-5837.8) > 0.1 {
		t.Errorf("expected ~5837.8km, got %f", nyParis)
	}

	if got := RoundKm(rideStart.DistanceKm(rideEnd)); got != 2.47 {
		t.Errorf("expected 2.47km, got %f", got)
	}
}

func TestPoint_DistanceIsSymmetric(t *testing.T) {
	t.Parallel()

	points := []Point{
		rideStart, rideEnd,
		{0, 0}, {179.9, 89.9}, {-179.9, -89.9}, {120.5, -33.2}, {-0.1, 51.5},
	}
	for _, a := range points {
		for _, b := range points {
			if ab, ba := a.DistanceKm(b), b.DistanceKm(a); math.Abs(ab-ba) > 1e-9 {
				t.Errorf("distance(%v,%v)=%f != distance(%v,%v)=%f", a, b, ab, b, a, ba)
			}
		}
	}
}

func TestRideStatus_Transitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to RideStatus
		ok       bool
	}{
		{RideStatusWaiting, RideStatusInProgress, true},
		{RideStatusInProgress, RideStatusFinished, true},
		{RideStatusWaiting, RideStatusFinished, false},
		{RideStatusInProgress, RideStatusWaiting, false},
		{RideStatusFinished, RideStatusInProgress, false},
		{RideStatusFinished, RideStatusFinished, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.ok {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.ok, got)
		}
	}
}

func TestRide_FinishPopulatesEndFieldsTogether(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ride := &Ride{ID: "ride-1", Status: RideStatusInProgress, StartLocation: rideStart, StartTime: start}

	if err := ride.Finish(start.Add(time.Hour), rideEnd, 17970); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ride.Status != RideStatusFinished {
		t.Errorf("expected finished, got %s", ride.Status)
	}
	if ride.EndTime == nil || ride.EndLocation == nil || ride.TotalCharged == nil {
		t.Fatal("expected end fields to be populated")
	}
	if *ride.TotalCharged != 17970 {
		t.Errorf("expected 17970, got %d", *ride.TotalCharged)
	}

	if err := ride.Finish(start.Add(2*time.Hour), rideStart, 1); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition on second finish, got %v", err)
	}
	if *ride.TotalCharged != 17970 {
		t.Error("second finish must not overwrite the settled fare")
	}
}

func TestUser_IsAvailableDriver(t *testing.T) {
	t.Parallel()

	now := time.Now()
	loc := &Point{1, 1}

	tests := []struct {
		name string
		u    User
		want bool
	}{
		{"driver with position", User{Role: RoleDriver, Location: loc}, true},
		{"driver without position", User{Role: RoleDriver}, false},
		{"rider with position", User{Role: RoleRider, Location: loc}, false},
		{"retired driver", User{Role: RoleDriver, Location: loc, Lifecycle: Lifecycle{DeletedAt: &now}}, false},
	}
	for _, tt := range tests {
		if got := tt.u.IsAvailableDriver(); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
