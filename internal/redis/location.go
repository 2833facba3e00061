package redis

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ridepay/internal/domain"
	"ridepay/internal/logger"
	"ridepay/internal/repository"
)

const (
	driverLocationKey = "drivers:locations"

	// Half the Earth's circumference: every indexed driver is in range.
	searchRadiusKm = 20038.0
	candidateCount = 10
)

// DriverLookup re-validates index hits against the source of truth.
type DriverLookup interface {
	GetByIDAndRole(ctx context.Context, id string, role domain.Role) (*domain.User, error)
}

type geoClient interface {
	GeoAdd(ctx context.Context, key string, geoLocation ...*redis.GeoLocation) *redis.IntCmd
	GeoSearchLocation(ctx context.Context, key string, q *redis.GeoSearchLocationQuery) *redis.GeoSearchLocationCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// LocationStore is a Redis GEO index of driver positions. It can answer
// nearest-driver queries in place of PostGIS; Postgres stays authoritative.
type LocationStore struct {
	client geoClient
	users  DriverLookup
	log    *zap.Logger
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client geoClient, users DriverLookup, log *zap.Logger) *LocationStore {
	return &LocationStore{client: client, users: users, log: logger.OrNop(log)}
}

// UpdateLocation stores a driver's position using GEOADD.
func (s *LocationStore) UpdateLocation(ctx context.Context, driverID string, p domain.Point) error {
	return s.client.GeoAdd(ctx, driverLocationKey, &redis.GeoLocation{
		Name:      driverID,
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

// RemoveLocation removes a driver from the geo index.
func (s *LocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	return s.client.ZRem(ctx, driverLocationKey, driverID).Err()
}

// Rebuild replaces the index with the given drivers' positions.
func (s *LocationStore) Rebuild(ctx context.Context, drivers []*domain.User) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, driverLocationKey)
		for _, d := range drivers {
			if d.Location == nil {
				continue
			}
			pipe.GeoAdd(ctx, driverLocationKey, &redis.GeoLocation{
				Name:      d.ID,
				Longitude: d.Location.Lng,
				Latitude:  d.Location.Lat,
			})
		}
		return nil
	})
	return err
}

// FindNearestAvailableDriver returns the closest indexed driver that is still
// a live driver with a known position, ties broken by lowest id. Stale index
// entries are dropped. Returns nil if no driver qualifies.
//
// Candidates are fetched a page at a time. Entries at the farthest distance of
// a full page may continue past it, so only strictly nearer ones are decided
// on; the page grows until the answer is settled or the index is exhausted.
func (s *LocationStore) FindNearestAvailableDriver(ctx context.Context, p domain.Point) (*domain.User, error) {
	count := candidateCount
	checked := make(map[string]bool)

	for {
		candidates, err := s.search(ctx, p, count)
		if err != nil {
			return nil, err
		}
		exhausted := len(candidates) < count

		ids := orderCandidates(candidates)
		if !exhausted {
			ids = ids[:nearerThanBoundary(candidates)]
			if len(ids) == 0 {
				count *= 2
				continue
			}
		}

		pending := make([]string, 0, len(ids))
		for _, id := range ids {
			if !checked[id] {
				pending = append(pending, id)
			}
		}

		driver, stale, err := s.firstLive(ctx, pending)
		for _, id := range stale {
			checked[id] = true
		}
		s.dropStale(ctx, stale)
		if err != nil || driver != nil {
			return driver, err
		}
		if exhausted {
			return nil, nil
		}
		// Every decided candidate was stale. Grow the page so the search
		// advances even if the stale entries could not be removed.
		count += len(ids)
	}
}

func (s *LocationStore) search(ctx context.Context, p domain.Point, count int) ([]redis.GeoLocation, error) {
	return s.client.GeoSearchLocation(ctx, driverLocationKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     searchRadiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      count,
		},
		WithDist: true,
	}).Result()
}

func (s *LocationStore) dropStale(ctx context.Context, stale []string) {
	if len(stale) == 0 {
		return
	}
	members := make([]any, len(stale))
	for i, id := range stale {
		members[i] = id
	}
	if err := s.client.ZRem(ctx, driverLocationKey, members...).Err(); err != nil {
		s.log.Warn("stale drivers not removed from geo index",
			zap.Strings("driver_ids", stale),
			zap.Error(err),
		)
	}
}

// nearerThanBoundary returns how many of the sorted candidates lie strictly
// nearer than the last one.
func nearerThanBoundary(sorted []redis.GeoLocation) int {
	if len(sorted) == 0 {
		return 0
	}
	boundary := sorted[len(sorted)-1].Dist
	n := 0
	for n < len(sorted) && sorted[n].Dist < boundary {
		n++
	}
	return n
}

// orderCandidates sorts by distance, then by id.
func orderCandidates(candidates []redis.GeoLocation) []string {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Dist != candidates[j].Dist {
			return candidates[i].Dist < candidates[j].Dist
		}
		return candidates[i].Name < candidates[j].Name
	})
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Name
	}
	return ids
}

func (s *LocationStore) firstLive(ctx context.Context, ids []string) (*domain.User, []string, error) {
	var stale []string
	for _, id := range ids {
		user, err := s.users.GetByIDAndRole(ctx, id, domain.RoleDriver)
		if errors.Is(err, repository.ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, stale, err
		}
		if !user.IsAvailableDriver() {
			stale = append(stale, id)
			continue
		}
		return user, stale, nil
	}
	return nil, stale, nil
}
