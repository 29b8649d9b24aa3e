package geo_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridefinder/ridefinder/internal/geo"
)

func TestDistance_SamePointIsZero(t *testing.T) {
	points := []geo.Coordinate{
		{Lat: 0, Lon: 0},
		{Lat: 52.3676, Lon: 4.9041},
		{Lat: -89.9, Lon: 179.9},
	}
	for _, p := range points {
		assert.Equal(t, 0.0, geo.Distance(p, p))
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pairs := [][2]geo.Coordinate{
		{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}},
		{{Lat: 52.3676, Lon: 4.9041}, {Lat: 52.0907, Lon: 5.1214}},
		{{Lat: -33.8688, Lon: 151.2093}, {Lat: 40.7128, Lon: -74.0060}},
		{{Lat: 89, Lon: -179}, {Lat: -89, Lon: 179}},
	}
	for _, p := range pairs {
		assert.Equal(t, geo.Distance(p[0], p[1]), geo.Distance(p[1], p[0]))
	}
}

func TestDistance_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		a, b     geo.Coordinate
		expected float64
		delta    float64
	}{
		{
			name:     "one degree of longitude at the equator",
			a:        geo.Coordinate{Lat: 0, Lon: 0},
			b:        geo.Coordinate{Lat: 0, Lon: 1},
			expected: 2 * math.Pi * geo.EarthRadiusKm / 360,
			delta:    1e-9,
		},
		{
			name:     "Amsterdam to Utrecht",
			a:        geo.Coordinate{Lat: 52.3676, Lon: 4.9041},
			b:        geo.Coordinate{Lat: 52.0907, Lon: 5.1214},
			expected: 34.0,
			delta:    1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, geo.Distance(tt.a, tt.b), tt.delta)
		})
	}
}

func TestDistance_Antipodal(t *testing.T) {
	half := math.Pi * geo.EarthRadiusKm

	d := geo.Distance(geo.Coordinate{Lat: 0, Lon: 0}, geo.Coordinate{Lat: 0, Lon: 180})
	assert.False(t, math.IsNaN(d))
	assert.InDelta(t, half, d, 1e-6)

	d = geo.Distance(geo.Coordinate{Lat: 90, Lon: 0}, geo.Coordinate{Lat: -90, Lon: 0})
	assert.False(t, math.IsNaN(d))
	assert.InDelta(t, half, d, 1e-6)
}

func TestPathLength(t *testing.T) {
	coords := []geo.Coordinate{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 0, Lon: 2}}
	expected := geo.Distance(coords[0], coords[1]) + geo.Distance(coords[1], coords[2])

	assert.InDelta(t, expected, geo.PathLength(coords), 1e-12)
	assert.Equal(t, 0.0, geo.PathLength(coords[:1]))
	assert.Equal(t, 0.0, geo.PathLength(nil))
}

func TestCoordinate_Validate(t *testing.T) {
	valid := []geo.Coordinate{
		{Lat: 90, Lon: 180},
		{Lat: -90, Lon: -180},
		{Lat: 0, Lon: 0},
	}
	for _, c := range valid {
		assert.NoError(t, c.Validate(), "%v should be valid", c)
	}

	invalid := []geo.Coordinate{
		{Lat: 90.0001, Lon: 0},
		{Lat: -91, Lon: 0},
		{Lat: 0, Lon: 180.5},
		{Lat: 0, Lon: -181},
		{Lat: math.NaN(), Lon: 0},
	}
	for _, c := range invalid {
		err := c.Validate()
		require.Error(t, err, "%v should be invalid", c)
		assert.ErrorIs(t, err, geo.ErrOutOfRange)
	}
}

func TestRadiusBox_ContainsCircle(t *testing.T) {
	center := geo.Coordinate{Lat: 52.37, Lon: 4.90}
	radius := 50.0

	box, ok := geo.RadiusBox(center, radius)
	require.True(t, ok)
	assert.True(t, box.Contains(center))

	// Points on the circle in the cardinal directions must be inside the box.
	north := geo.Coordinate{Lat: center.Lat + radius/geo.EarthRadiusKm*180/math.Pi*0.999, Lon: center.Lon}
	assert.True(t, box.Contains(north))

	// A point well beyond the radius must fall outside.
	far := geo.Coordinate{Lat: center.Lat, Lon: center.Lon + 2}
	assert.Greater(t, geo.Distance(center, far), radius)
	assert.False(t, box.Contains(far))
}

func TestRadiusBox_Unrepresentable(t *testing.T) {
	_, ok := geo.RadiusBox(geo.Coordinate{Lat: 89.9, Lon: 0}, 50)
	assert.False(t, ok, "circle reaching the pole")

	_, ok = geo.RadiusBox(geo.Coordinate{Lat: 0, Lon: 179.9}, 50)
	assert.False(t, ok, "circle crossing the antimeridian")
}
