package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ridepay/internal/domain"
)

func newDriverService(t *testing.T) (*DriverService, *MockUserRepository, *MockLocationIndex) {
	t.Helper()

	users := NewMockUserRepository()
	users.AddUser(&domain.User{ID: testDriverID, Role: domain.RoleDriver})
	users.AddUser(&domain.User{ID: testRiderID, Role: domain.RoleRider})
	index := NewMockLocationIndex()
	svc := NewDriverService(users, index, nil)
	svc.now = func() time.Time { return t0 }
	return svc, users, index
}

func TestDriverLocation_Update_WritesStoreAndIndex(t *testing.T) {
	t.Parallel()

	svc, users, index := newDriverService(t)

	err := svc.UpdateLocation(context.Background(), UpdateLocationRequest{DriverID: testDriverID, Point: pickup})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	d := users.GetUser(testDriverID)
	if d.Location == nil || !d.Location.Equal(pickup) {
		t.Errorf("expected stored location %v, got %v", pickup, d.Location)
	}
	if d.LocationUpdatedAt == nil || !d.LocationUpdatedAt.Equal(t0) {
		t.Errorf("expected location timestamp %v, got %v", t0, d.LocationUpdatedAt)
	}
	if p, ok := index.Position(testDriverID); !ok || !p.Equal(pickup) {
		t.Errorf("expected indexed position %v, got %v", pickup, p)
	}
}

func TestDriverLocation_Update_Fails(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		req     UpdateLocationRequest
		wantErr error
	}{
		{"malformed id", UpdateLocationRequest{DriverID: "driver-1", Point: pickup}, ErrInvalidRequest},
		{"out of range", UpdateLocationRequest{DriverID: testDriverID, Point: domain.Point{Lng: 0, Lat: 95}}, ErrInvalidRequest},
		{"unknown driver", UpdateLocationRequest{DriverID: "6f1d7c2e-0d4b-4b7a-9a55-1f2f6b1a0999", Point: pickup}, ErrDriverNotFound},
		{"rider id", UpdateLocationRequest{DriverID: testRiderID, Point: pickup}, ErrDriverNotFound},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc, _, index := newDriverService(t)
			err := svc.UpdateLocation(context.Background(), tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if _, ok := index.Position(tc.req.DriverID); ok {
				t.Error("expected index to be untouched")
			}
		})
	}
}

func TestDriverLocation_IndexFailure_DoesNotFailUpdate(t *testing.T) {
	t.Parallel()

	svc, users, index := newDriverService(t)
	index.UpdateError = errors.New("redis down")

	if err := svc.UpdateLocation(context.Background(), UpdateLocationRequest{DriverID: testDriverID, Point: pickup}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if users.GetUser(testDriverID).Location == nil {
		t.Error("expected Postgres location to be written")
	}
}

func TestDriverLocation_Retire(t *testing.T) {
	t.Parallel()

	svc, users, index := newDriverService(t)
	if err := svc.UpdateLocation(context.Background(), UpdateLocationRequest{DriverID: testDriverID, Point: pickup}); err != nil {
		t.Fatal(err)
	}

	if err := svc.RetireLocation(context.Background(), testDriverID); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if users.GetUser(testDriverID).Location != nil {
		t.Error("expected location to be cleared")
	}
	if _, ok := index.Position(testDriverID); ok {
		t.Error("expected driver to be removed from the index")
	}
	if err := svc.RetireLocation(context.Background(), testRiderID); !errors.Is(err, ErrDriverNotFound) {
		t.Errorf("expected ErrDriverNotFound, got %v", err)
	}
}

func TestDriverLocation_SyncIndex(t *testing.T) {
	t.Parallel()

	svc, users, index := newDriverService(t)
	loc := dropoff
	users.AddUser(&domain.User{ID: "6f1d7c2e-0d4b-4b7a-9a55-1f2f6b1a0004", Role: domain.RoleDriver, Location: &loc})

	if err := svc.SyncIndex(context.Background()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if atomic.LoadInt32(&index.RebuildCount) != 1 {
		t.Error("expected index rebuild")
	}
	if _, ok := index.Position("6f1d7c2e-0d4b-4b7a-9a55-1f2f6b1a0004"); !ok {
		t.Error("expected located driver in index")
	}
	if _, ok := index.Position(testDriverID); ok {
		t.Error("expected unlocated driver to be absent")
	}
}

func TestDriverLocation_WithoutIndex(t *testing.T) {
	t.Parallel()

	users := NewMockUserRepository()
	users.AddUser(&domain.User{ID: testDriverID, Role: domain.RoleDriver})
	svc := NewDriverService(users, nil, nil)

	if err := svc.UpdateLocation(context.Background(), UpdateLocationRequest{DriverID: testDriverID, Point: pickup}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if err := svc.SyncIndex(context.Background()); err != nil {
		t.Errorf("expected sync to be a no-op, got %v", err)
	}
}
