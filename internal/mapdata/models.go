// Package mapdata loads raw road-network map data (points and ways) from files,
// remote endpoints and PostgreSQL.
package mapdata

import (
	"context"
	"errors"

	"github.com/ridefinder/ridefinder/internal/geo"
)

// ErrDataLoad indicates the map-data source is missing or unreadable as a whole.
// Individual malformed elements never produce this error; they are skipped.
var ErrDataLoad = errors.New("map data load failure")

// Source provides map data and a version string that changes whenever the data does.
type Source interface {
	// Name identifies the source for logging and status reporting.
	Name() string
	// Version returns an opaque version of the current data.
	// An empty version means the source cannot tell; callers reuse loaded data until told otherwise.
	Version(ctx context.Context) (string, error)
	// Load reads the full dataset.
	Load(ctx context.Context) (*Dataset, error)
}

// Point is a map point element.
type Point struct {
	ID         int64
	Coordinate geo.Coordinate
}

// Way is an ordered list of point ids.
type Way struct {
	ID      int64
	NodeIDs []int64
}

// Dataset is the decoded content of a map-data source.
type Dataset struct {
	Points []Point
	Ways   []Way

	// Skipped counts malformed elements dropped while decoding.
	Skipped int
	// Ignored counts elements of kinds the road graph does not use (relations, areas, ...).
	Ignored int
}

// LoadError describes a failed load of a whole source.
type LoadError struct {
	Source string // Source name
	Op     string // Operation that failed (open, decode, fetch, query)
	Err    error  // Underlying error
}

func (e *LoadError) Error() string {
	return "load " + e.Source + ": " + e.Op + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is makes every LoadError match ErrDataLoad.
func (e *LoadError) Is(target error) bool {
	return target == ErrDataLoad
}

func loadError(source, op string, err error) error {
	return &LoadError{Source: source, Op: op, Err: err}
}
