// Package routing computes the K shortest loopless routes between two coordinates
// over the road graph.
package routing

import (
	"errors"
	"fmt"

	"github.com/ridefinder/ridefinder/internal/geo"
	"github.com/ridefinder/ridefinder/internal/graph"
)

// Sentinel errors for routing operations.
var (
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrInvalidK indicates the requested number of routes is not positive or above the limit.
	ErrInvalidK = errors.New("invalid number of routes")
	// ErrNoNearbyNode indicates an endpoint has no road within the search radius.
	ErrNoNearbyNode = errors.New("no road network node near coordinate")
	// ErrComputeTimeout indicates route computation exceeded its deadline.
	ErrComputeTimeout = errors.New("route computation timed out")
)

// Path is a loopless node sequence and its total length in kilometers.
type Path struct {
	Nodes    []graph.NodeID
	Distance float64
}

// ExcludedEdges is a set of directed edges a search may not traverse.
// Excluding a -> b leaves b -> a usable. A nil set excludes nothing.
type ExcludedEdges map[graph.EdgeKey]struct{}

// Add excludes from -> to.
func (e ExcludedEdges) Add(from, to graph.NodeID) {
	e[graph.EdgeKey{From: from, To: to}] = struct{}{}
}

// Contains reports whether from -> to is excluded.
func (e ExcludedEdges) Contains(from, to graph.NodeID) bool {
	_, ok := e[graph.EdgeKey{From: from, To: to}]
	return ok
}

// Route is a ranked result with its geometry.
type Route struct {
	Rank        int // 1-based, ascending distance
	Distance    float64
	Coordinates []geo.Coordinate
}

// Request asks for up to K routes from Start to End.
type Request struct {
	Start geo.Coordinate
	End   geo.Coordinate
	K     int // zero selects the service default
}

// Result is the outcome of a route computation. Routes is empty when the endpoints
// are not connected.
type Result struct {
	Routes       []Route
	GraphVersion string
	SnappedStart geo.Coordinate
	SnappedEnd   geo.Coordinate
	Cached       bool
}

// Error provides detailed information about a rejected or failed computation.
type Error struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrComputeTimeout)
}

// NoNearbyNodeError reports which endpoints could not be snapped to the road network.
type NoNearbyNodeError struct {
	StartFound bool
	EndFound   bool
	RadiusKm   float64
}

func (e *NoNearbyNodeError) Error() string {
	var which string
	switch {
	case !e.StartFound && !e.EndFound:
		which = "start and end"
	case !e.StartFound:
		which = "start"
	default:
		which = "end"
	}
	return fmt.Sprintf("no road network node within %g km of %s", e.RadiusKm, which)
}

// Is makes NoNearbyNodeError match ErrNoNearbyNode.
func (e *NoNearbyNodeError) Is(target error) bool {
	return target == ErrNoNearbyNode
}
