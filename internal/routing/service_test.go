package routing_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridefinder/ridefinder/internal/geo"
	"github.com/ridefinder/ridefinder/internal/graph"
	"github.com/ridefinder/ridefinder/internal/mapdata"
	"github.com/ridefinder/ridefinder/internal/routing"
)

// staticGraphs serves a fixed snapshot.
type staticGraphs struct {
	snap  *graph.Snapshot
	err   error
	calls atomic.Int32
}

func (s *staticGraphs) Snapshot(_ context.Context) (*graph.Snapshot, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func snapshotOf(g *graph.Graph, version string) *graph.Snapshot {
	return &graph.Snapshot{
		Graph:   g,
		Locator: graph.NewGridIndex(g, 0),
		Source:  "test",
		Version: version,
	}
}

func newTestService(graphs routing.SnapshotProvider, cfg routing.ServiceConfig) *routing.Service {
	cfg.Graphs = graphs
	cfg.Logger = zerolog.Nop()
	return routing.NewService(cfg)
}

func TestService_Compute(t *testing.T) {
	g := lattice(3, 0.01)
	svc := newTestService(&staticGraphs{snap: snapshotOf(g, "v1")}, routing.ServiceConfig{})

	res, err := svc.Compute(context.Background(), routing.Request{
		Start: c(0.0001, -0.0001),
		End:   c(0.0201, 0.0199),
	})
	require.NoError(t, err)

	assert.Equal(t, "v1", res.GraphVersion)
	assert.Equal(t, c(0, 0), res.SnappedStart)
	assert.Equal(t, c(0.02, 0.02), res.SnappedEnd)
	assert.False(t, res.Cached)

	require.Len(t, res.Routes, 3, "default K")
	for i, r := range res.Routes {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, c(0, 0), r.Coordinates[0])
		assert.Equal(t, c(0.02, 0.02), r.Coordinates[len(r.Coordinates)-1])
		assert.InDelta(t, geo.PathLength(r.Coordinates), r.Distance, 1e-9)
		if i > 0 {
			assert.LessOrEqual(t, res.Routes[i-1].Distance, r.Distance)
		}
	}
}

func TestService_Compute_CachesPerGraphVersion(t *testing.T) {
	g := lattice(3, 0.01)
	req := routing.Request{Start: c(0, 0), End: c(0.02, 0.02), K: 2}

	t.Run("versioned graph", func(t *testing.T) {
		svc := newTestService(&staticGraphs{snap: snapshotOf(g, "v1")}, routing.ServiceConfig{})

		first, err := svc.Compute(context.Background(), req)
		require.NoError(t, err)
		second, err := svc.Compute(context.Background(), req)
		require.NoError(t, err)

		assert.False(t, first.Cached)
		assert.True(t, second.Cached)
		assert.Equal(t, first.Routes, second.Routes)
		assert.Equal(t, 1, svc.CacheStats().Entries)
	})

	t.Run("unversioned graph", func(t *testing.T) {
		svc := newTestService(&staticGraphs{snap: snapshotOf(g, "")}, routing.ServiceConfig{})

		_, err := svc.Compute(context.Background(), req)
		require.NoError(t, err)
		second, err := svc.Compute(context.Background(), req)
		require.NoError(t, err)

		assert.False(t, second.Cached)
	})

	t.Run("cache disabled", func(t *testing.T) {
		svc := newTestService(&staticGraphs{snap: snapshotOf(g, "v1")}, routing.ServiceConfig{CacheSize: -1})

		_, err := svc.Compute(context.Background(), req)
		require.NoError(t, err)
		second, err := svc.Compute(context.Background(), req)
		require.NoError(t, err)

		assert.False(t, second.Cached)
		assert.Equal(t, routing.CacheStats{}, svc.CacheStats())
	})
}

func TestService_Compute_InvalidInput(t *testing.T) {
	graphs := &staticGraphs{snap: snapshotOf(lattice(2, 0.01), "v1")}
	svc := newTestService(graphs, routing.ServiceConfig{MaxK: 5})

	tests := []struct {
		name     string
		req      routing.Request
		wantErr  error
		wantCode string
	}{
		{
			name:     "start latitude out of range",
			req:      routing.Request{Start: c(91, 0), End: c(0, 0)},
			wantErr:  routing.ErrInvalidCoordinates,
			wantCode: "INVALID_START",
		},
		{
			name:     "end longitude out of range",
			req:      routing.Request{Start: c(0, 0), End: c(0, -181)},
			wantErr:  routing.ErrInvalidCoordinates,
			wantCode: "INVALID_END",
		},
		{
			name:     "negative k",
			req:      routing.Request{Start: c(0, 0), End: c(0, 0.01), K: -1},
			wantErr:  routing.ErrInvalidK,
			wantCode: "INVALID_K",
		},
		{
			name:     "k above limit",
			req:      routing.Request{Start: c(0, 0), End: c(0, 0.01), K: 6},
			wantErr:  routing.ErrInvalidK,
			wantCode: "INVALID_K",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Compute(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)

			var routingErr *routing.Error
			require.True(t, errors.As(err, &routingErr))
			assert.Equal(t, tt.wantCode, routingErr.Code)
		})
	}

	assert.Zero(t, graphs.calls.Load(), "invalid requests never touch the graph")
}

func TestService_Compute_NoNearbyNode(t *testing.T) {
	svc := newTestService(&staticGraphs{snap: snapshotOf(lattice(2, 0.01), "v1")}, routing.ServiceConfig{
		SearchRadiusKm: 5,
	})

	tests := []struct {
		name       string
		req        routing.Request
		startFound bool
		endFound   bool
	}{
		{name: "start far away", req: routing.Request{Start: c(10, 10), End: c(0, 0)}, startFound: false, endFound: true},
		{name: "end far away", req: routing.Request{Start: c(0, 0), End: c(-10, 0)}, startFound: true, endFound: false},
		{name: "both far away", req: routing.Request{Start: c(10, 10), End: c(-10, 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Compute(context.Background(), tt.req)
			require.ErrorIs(t, err, routing.ErrNoNearbyNode)

			var nearErr *routing.NoNearbyNodeError
			require.True(t, errors.As(err, &nearErr))
			assert.Equal(t, tt.startFound, nearErr.StartFound)
			assert.Equal(t, tt.endFound, nearErr.EndFound)
			assert.Equal(t, 5.0, nearErr.RadiusKm)
		})
	}
}

func TestService_Compute_NoPath(t *testing.T) {
	g := buildGraph(
		[]geo.Coordinate{c(0, 0), c(0, 0.01)},
		[]geo.Coordinate{c(0.1, 0), c(0.1, 0.01)},
	)
	svc := newTestService(&staticGraphs{snap: snapshotOf(g, "v1")}, routing.ServiceConfig{})

	res, err := svc.Compute(context.Background(), routing.Request{Start: c(0, 0), End: c(0.1, 0.01)})
	require.NoError(t, err)
	assert.Empty(t, res.Routes)
}

func TestService_Compute_DataLoadFailure(t *testing.T) {
	loadErr := &mapdata.LoadError{Source: "test", Op: "open", Err: errors.New("missing")}
	svc := newTestService(&staticGraphs{err: loadErr}, routing.ServiceConfig{})

	_, err := svc.Compute(context.Background(), routing.Request{Start: c(0, 0), End: c(0, 0.01)})
	assert.ErrorIs(t, err, mapdata.ErrDataLoad)
}

func TestService_Compute_Timeout(t *testing.T) {
	svc := newTestService(&staticGraphs{snap: snapshotOf(lattice(4, 0.01), "v1")}, routing.ServiceConfig{
		ComputeTimeout: time.Second,
	})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := svc.Compute(ctx, routing.Request{Start: c(0, 0), End: c(0.03, 0.03), K: 5})
	require.ErrorIs(t, err, routing.ErrComputeTimeout)

	var routingErr *routing.Error
	require.True(t, errors.As(err, &routingErr))
	assert.True(t, routingErr.IsRetryable())
}

func TestNewService_Defaults(t *testing.T) {
	svc := routing.NewService(routing.ServiceConfig{Logger: zerolog.Nop()})

	assert.Equal(t, graph.DefaultSearchRadiusKm, svc.SearchRadiusKm())
	assert.Equal(t, 3, svc.DefaultK())
	assert.Equal(t, 10, svc.MaxK())

	capped := routing.NewService(routing.ServiceConfig{Logger: zerolog.Nop(), DefaultK: 8, MaxK: 4})
	assert.Equal(t, 4, capped.DefaultK())
}

func TestNoNearbyNodeError_Message(t *testing.T) {
	err := &routing.NoNearbyNodeError{StartFound: true, RadiusKm: 50}
	assert.Equal(t, "no road network node within 50 km of end", err.Error())
}
