package models

import (
	"math"

	"github.com/ridefinder/ridefinder/internal/routing"
	"github.com/ridefinder/ridefinder/pkg/polyline"
)

// RouteComputeRequest is the request body for computing routes.
// Coordinates are [lon, lat].
type RouteComputeRequest struct {
	StartCoords []float64 `json:"startCoords"`
	EndCoords   []float64 `json:"endCoords"`
	K           *int      `json:"k,omitempty"` // "K" is accepted as well
}

// RouteComputeResponse is the response for route computation.
type RouteComputeResponse struct {
	Routes       []RouteResult    `json:"routes"`
	GraphVersion string           `json:"graphVersion,omitempty"`
	Snapped      SnappedEndpoints `json:"snapped"`
	GeneratedAt  Timestamp        `json:"generatedAt"`
}

// RouteResult is one ranked route.
type RouteResult struct {
	// ID is the 1-based rank.
	ID int `json:"id"`

	// Distance is the route length in kilometers, rounded to three decimals.
	Distance float64 `json:"distance"`

	// Path lists the route's coordinates as [lon, lat].
	Path []Position `json:"path"`

	// Polyline is the path in encoded polyline format (precision 5).
	Polyline string `json:"polyline"`
}

// SnappedEndpoints are the road network nodes the request endpoints were snapped to.
type SnappedEndpoints struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// RouteResultOf converts a computed route to its wire form.
func RouteResultOf(route routing.Route) RouteResult {
	path := make([]Position, len(route.Coordinates))
	line := make([]polyline.Coordinate, len(route.Coordinates))
	for i, c := range route.Coordinates {
		path[i] = PositionOf(c)
		line[i] = polyline.Coordinate{Lat: c.Lat, Lon: c.Lon}
	}

	return RouteResult{
		ID:       route.Rank,
		Distance: math.Round(route.Distance*1000) / 1000,
		Path:     path,
		Polyline: polyline.Encode(line, polyline.DefaultPrecision),
	}
}
