package graph

import (
	"errors"

	"github.com/ridefinder/ridefinder/internal/geo"
)

// DefaultSearchRadiusKm is the snapping radius used when none is given.
const DefaultSearchRadiusKm = 50.0

// ErrNodeNotFound indicates the graph has no node within the search radius.
var ErrNodeNotFound = errors.New("no graph node within search radius")

// Locator snaps arbitrary coordinates to graph nodes.
type Locator interface {
	// Nearest returns the node closest to query and its distance in kilometers.
	// A non-positive maxRadiusKm means DefaultSearchRadiusKm. Equally distant
	// nodes resolve to the lowest NodeID.
	Nearest(query geo.Coordinate, maxRadiusKm float64) (NodeID, float64, error)
}

// LinearLocator checks every node.
type LinearLocator struct {
	g *Graph
}

// NewLinearLocator returns a locator scanning g.
func NewLinearLocator(g *Graph) *LinearLocator {
	return &LinearLocator{g: g}
}

// Nearest implements Locator.
func (l *LinearLocator) Nearest(query geo.Coordinate, maxRadiusKm float64) (NodeID, float64, error) {
	radius := searchRadius(maxRadiusKm)

	best := NodeID(-1)
	bestDist := 0.0
	for i, c := range l.g.coords {
		d := geo.Distance(query, c)
		if best < 0 || d < bestDist {
			best, bestDist = NodeID(i), d
		}
	}

	if best < 0 || bestDist > radius {
		return 0, 0, ErrNodeNotFound
	}
	return best, bestDist, nil
}

func searchRadius(km float64) float64 {
	if km <= 0 {
		return DefaultSearchRadiusKm
	}
	return km
}
