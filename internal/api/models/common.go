// Package models provides request and response models for the RideFinder API.
package models

import (
	"time"

	"github.com/ridefinder/ridefinder/internal/geo"
)

// Position is a coordinate on the wire, ordered [lon, lat] as in GeoJSON.
type Position [2]float64

// PositionOf converts a coordinate to its wire form.
func PositionOf(c geo.Coordinate) Position {
	return Position{c.Lon, c.Lat}
}

// Coordinate converts p to the internal representation.
func (p Position) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: p[1], Lon: p[0]}
}

// HealthStatus represents the health status of a service.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// Timestamp is a helper type for time.Time with custom JSON formatting.
type Timestamp time.Time

// MarshalJSON implements json.Marshaler for Timestamp.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).Format(time.RFC3339) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for Timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	parsed, err := time.Parse(`"`+time.RFC3339+`"`, string(data))
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}
