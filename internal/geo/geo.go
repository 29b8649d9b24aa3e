// Package geo provides coordinate primitives and great-circle distance on a spherical earth.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusKm is the mean earth radius used by Distance.
const EarthRadiusKm = 6371.0

// ErrOutOfRange indicates a latitude or longitude outside its valid interval.
var ErrOutOfRange = errors.New("coordinate out of range")

// Coordinate is a point in decimal degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Validate checks that the latitude is within [-90, 90] and the longitude within [-180, 180].
// NaN values are rejected.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f not in [-90, 90]", ErrOutOfRange, c.Lat)
	}
	if math.IsNaN(c.Lon) || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %f not in [-180, 180]", ErrOutOfRange, c.Lon)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%f, %f)", c.Lat, c.Lon)
}

// Distance returns the haversine great-circle distance between a and b in kilometers.
func Distance(a, b Coordinate) float64 {
	if a == b {
		return 0
	}

	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	sinDLat := math.Sin(radians(b.Lat-a.Lat) / 2)
	sinDLon := math.Sin(radians(b.Lon-a.Lon) / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon

	// Rounding can push h slightly outside [0, 1] for near-antipodal points.
	h = math.Max(0, math.Min(1, h))

	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PathLength sums Distance over consecutive coordinates.
func PathLength(coords []Coordinate) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += Distance(coords[i-1], coords[i])
	}
	return total
}

// BoundingBox is an axis-aligned lat/lon rectangle.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Contains reports whether c lies inside the box, edges included.
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

// RadiusBox returns the smallest lat/lon box containing every point within radiusKm of center.
// ok is false when the circle reaches a pole or crosses the antimeridian; the box is not
// representable as a single rectangle in those cases.
func RadiusBox(center Coordinate, radiusKm float64) (box BoundingBox, ok bool) {
	angular := radiusKm / EarthRadiusKm
	lat := radians(center.Lat)

	minLat := lat - angular
	maxLat := lat + angular
	if minLat <= -math.Pi/2 || maxLat >= math.Pi/2 {
		return BoundingBox{}, false
	}

	s := math.Sin(angular) / math.Cos(lat)
	if s >= 1 {
		return BoundingBox{}, false
	}
	dLon := math.Asin(s)

	lon := radians(center.Lon)
	minLon := lon - dLon
	maxLon := lon + dLon
	if minLon < -math.Pi || maxLon > math.Pi {
		return BoundingBox{}, false
	}

	return BoundingBox{
		MinLat: degrees(minLat),
		MinLon: degrees(minLon),
		MaxLat: degrees(maxLat),
		MaxLon: degrees(maxLon),
	}, true
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
