package domain

import (
	"errors"
	"math"
)

const earthRadiusKm = 6371.0

// ErrInvalidPoint is returned when a coordinate is outside the WGS84 ranges.
var ErrInvalidPoint = errors.New("invalid point")

// Point is a WGS84 position. Longitude comes first, matching GeoJSON and PostGIS.
type Point struct {
	Lng float64
	Lat float64
}

// Validate checks longitude is within [-180, 180] and latitude within [-90, 90].
func (p Point) Validate() error {
	if math.IsNaN(p.Lng) || math.IsNaN(p.Lat) {
		return ErrInvalidPoint
	}
	if p.Lng < -180 || p.Lng > 180 || p.Lat < -90 || p.Lat > 90 {
		return ErrInvalidPoint
	}
	return nil
}

// Equal reports whether both coordinates match exactly.
func (p Point) Equal(o Point) bool {
	return p.Lng == o.Lng && p.Lat == o.Lat
}

// DistanceKm returns the great-circle (haversine) distance to o in kilometres.
func (p Point) DistanceKm(o Point) float64 {
	rLat1 := degreesToRadians(p.Lat)
	rLat2 := degreesToRadians(o.Lat)
	dLat := rLat2 - rLat1
	dLng := degreesToRadians(o.Lng - p.Lng)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// RoundKm rounds a distance to two decimal places.
func RoundKm(km float64) float64 {
	return math.Round(km*100) / 100
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
