// Package polyline implements the encoded polyline algorithm format.
// The format is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"fmt"
	"math"
)

// DefaultPrecision is the number of decimal places used by Google and OSRM.
const DefaultPrecision = 5

// ErrTruncated is returned by Decode when the input ends inside a value or
// holds a latitude without its longitude.
var ErrTruncated = errors.New("polyline: truncated input")

// Coordinate represents a geographic point with latitude and longitude.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Encode encodes coords with the given number of decimal places.
// A precision of 0 or less selects DefaultPrecision.
func Encode(coords []Coordinate, precision int) string {
	if len(coords) == 0 {
		return ""
	}
	factor := scale(precision)

	encoded := make([]byte, 0, len(coords)*8)
	var prevLat, prevLon int64
	for _, c := range coords {
		lat := int64(math.Round(c.Lat * factor))
		lon := int64(math.Round(c.Lon * factor))

		encoded = appendValue(encoded, lat-prevLat)
		encoded = appendValue(encoded, lon-prevLon)

		prevLat, prevLon = lat, lon
	}
	return string(encoded)
}

// Decode decodes an encoded polyline with the given number of decimal places.
// A precision of 0 or less selects DefaultPrecision.
func Decode(encoded string, precision int) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}
	factor := scale(precision)

	var coords []Coordinate
	var lat, lon int64
	for i := 0; i < len(encoded); {
		dLat, next, err := readValue(encoded, i)
		if err != nil {
			return nil, err
		}
		if next >= len(encoded) {
			return nil, ErrTruncated
		}
		dLon, next, err := readValue(encoded, next)
		if err != nil {
			return nil, err
		}
		i = next

		lat += dLat
		lon += dLon
		coords = append(coords, Coordinate{Lat: float64(lat) / factor, Lon: float64(lon) / factor})
	}
	return coords, nil
}

func scale(precision int) float64 {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	return math.Pow10(precision)
}

func appendValue(buf []byte, value int64) []byte {
	v := uint64(value) << 1
	if value < 0 {
		v = ^v
	}
	for v >= 0x20 {
		buf = append(buf, byte(0x20|(v&0x1f))+63)
		v >>= 5
	}
	return append(buf, byte(v)+63)
}

func readValue(encoded string, i int) (int64, int, error) {
	var result uint64
	var shift uint
	for {
		if i >= len(encoded) {
			return 0, i, ErrTruncated
		}
		b := int(encoded[i]) - 63
		i++
		if b < 0 || b > 0x3f {
			return 0, i, fmt.Errorf("polyline: invalid byte %q at offset %d", encoded[i-1], i-1)
		}
		if shift > 60 {
			return 0, i, fmt.Errorf("polyline: value overflow at offset %d", i-1)
		}
		result |= uint64(b&0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^int64(result >> 1), i, nil
	}
	return int64(result >> 1), i, nil
}
