package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/tinylru"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/ridefinder/ridefinder/internal/graph"
)

const instrumentationName = "github.com/ridefinder/ridefinder/internal/routing"

// SnapshotProvider supplies the current road graph.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*graph.Snapshot, error)
}

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Graphs provides the road graph. Usually a *graph.Cache.
	Graphs SnapshotProvider

	// Logger for service operations.
	Logger zerolog.Logger

	// SearchRadiusKm bounds endpoint snapping (default: graph.DefaultSearchRadiusKm).
	SearchRadiusKm float64

	// DefaultK is the number of routes returned when a request does not say (default: 3).
	DefaultK int

	// MaxK is the largest accepted K (default: 10).
	MaxK int

	// ComputeTimeout bounds the K-shortest-paths search (default: 10 seconds).
	ComputeTimeout time.Duration

	// CacheSize is the number of results kept per graph version (default: 256).
	// A negative value disables result caching.
	CacheSize int
}

// Service computes ranked routes over the current road graph.
type Service struct {
	graphs         SnapshotProvider
	logger         zerolog.Logger
	searchRadiusKm float64
	defaultK       int
	maxK           int
	computeTimeout time.Duration

	results   *tinylru.LRU
	cacheSize int

	tracer          trace.Tracer
	computeDuration metric.Float64Histogram
	computeTotal    metric.Int64Counter
}

type resultKey struct {
	version string
	start   graph.NodeID
	end     graph.NodeID
	k       int
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	searchRadiusKm := cfg.SearchRadiusKm
	if searchRadiusKm <= 0 {
		searchRadiusKm = graph.DefaultSearchRadiusKm
	}

	maxK := cfg.MaxK
	if maxK <= 0 {
		maxK = 10
	}

	defaultK := cfg.DefaultK
	if defaultK <= 0 {
		defaultK = 3
	}
	if defaultK > maxK {
		defaultK = maxK
	}

	computeTimeout := cfg.ComputeTimeout
	if computeTimeout == 0 {
		computeTimeout = 10 * time.Second
	}

	s := &Service{
		graphs:         cfg.Graphs,
		logger:         cfg.Logger,
		searchRadiusKm: searchRadiusKm,
		defaultK:       defaultK,
		maxK:           maxK,
		computeTimeout: computeTimeout,
		tracer:         otel.Tracer(instrumentationName),
	}

	if cfg.CacheSize >= 0 {
		size := cfg.CacheSize
		if size == 0 {
			size = 256
		}
		s.results = &tinylru.LRU{}
		s.results.Resize(size)
		s.cacheSize = size
	}

	if err := s.initMetrics(otel.Meter(instrumentationName)); err != nil {
		s.logger.Warn().Err(err).Msg("routing metrics disabled")
		_ = s.initMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	}

	return s
}

func (s *Service) initMetrics(meter metric.Meter) error {
	var err error

	s.computeDuration, err = meter.Float64Histogram(
		"routing.compute.duration",
		metric.WithDescription("Duration of route computations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	s.computeTotal, err = meter.Int64Counter(
		"routing.compute.total",
		metric.WithDescription("Total number of route computations by result"),
		metric.WithUnit("{request}"),
	)
	return err
}

// SearchRadiusKm returns the snapping radius in kilometers.
func (s *Service) SearchRadiusKm() float64 {
	return s.searchRadiusKm
}

// DefaultK returns the number of routes computed when a request leaves K at zero.
func (s *Service) DefaultK() int {
	return s.defaultK
}

// MaxK returns the largest accepted K.
func (s *Service) MaxK() int {
	return s.maxK
}

// Compute snaps both endpoints to the road graph and returns up to K ranked routes.
func (s *Service) Compute(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "routing.Compute")
	defer span.End()

	res, err := s.compute(ctx, req)

	outcome := resultLabel(res, err)
	s.computeDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("result", outcome)))
	s.computeTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", outcome)))

	span.SetAttributes(attribute.String("routing.result", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("routing.routes", len(res.Routes)),
		attribute.Bool("routing.cached", res.Cached),
	)
	return res, nil
}

func (s *Service) compute(ctx context.Context, req Request) (*Result, error) {
	if err := req.Start.Validate(); err != nil {
		return nil, &Error{
			Code:    "INVALID_START",
			Message: "invalid start coordinates",
			Err:     fmt.Errorf("%w: %w", ErrInvalidCoordinates, err),
		}
	}
	if err := req.End.Validate(); err != nil {
		return nil, &Error{
			Code:    "INVALID_END",
			Message: "invalid end coordinates",
			Err:     fmt.Errorf("%w: %w", ErrInvalidCoordinates, err),
		}
	}

	k := req.K
	if k == 0 {
		k = s.defaultK
	}
	if k < 0 || k > s.maxK {
		return nil, &Error{
			Code:    "INVALID_K",
			Message: fmt.Sprintf("k must be between 1 and %d", s.maxK),
			Err:     ErrInvalidK,
		}
	}

	snap, err := s.graphs.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	startID, endID, err := s.snap(ctx, snap, req)
	if err != nil {
		return nil, err
	}

	result := &Result{
		GraphVersion: snap.Version,
		SnappedStart: snap.Graph.Coordinate(startID),
		SnappedEnd:   snap.Graph.Coordinate(endID),
	}

	key := resultKey{version: snap.Version, start: startID, end: endID, k: k}
	if routes, ok := s.cached(key); ok {
		s.logger.Debug().
			Str("graph_version", snap.Version).
			Int("k", k).
			Msg("cache hit for routes")
		result.Routes = routes
		result.Cached = true
		return result, nil
	}

	paths, err := s.search(ctx, snap.Graph, startID, endID, k)
	if err != nil {
		return nil, err
	}

	result.Routes = make([]Route, len(paths))
	for i, p := range paths {
		result.Routes[i] = Route{
			Rank:        i + 1,
			Distance:    p.Distance,
			Coordinates: snap.Graph.Coordinates(p.Nodes),
		}
	}

	s.store(key, result.Routes)

	s.logger.Debug().
		Str("graph_version", snap.Version).
		Int("k", k).
		Int("routes", len(result.Routes)).
		Msg("computed routes")

	return result, nil
}

// snap resolves both endpoints, reporting every endpoint that could not be snapped.
func (s *Service) snap(ctx context.Context, snap *graph.Snapshot, req Request) (graph.NodeID, graph.NodeID, error) {
	_, span := s.tracer.Start(ctx, "routing.Snap")
	defer span.End()

	startID, startDist, startErr := snap.Locator.Nearest(req.Start, s.searchRadiusKm)
	endID, endDist, endErr := snap.Locator.Nearest(req.End, s.searchRadiusKm)

	for _, err := range []error{startErr, endErr} {
		if err != nil && !errors.Is(err, graph.ErrNodeNotFound) {
			return 0, 0, err
		}
	}
	if startErr != nil || endErr != nil {
		return 0, 0, &NoNearbyNodeError{
			StartFound: startErr == nil,
			EndFound:   endErr == nil,
			RadiusKm:   s.searchRadiusKm,
		}
	}

	span.SetAttributes(
		attribute.Float64("routing.snap.start_km", startDist),
		attribute.Float64("routing.snap.end_km", endDist),
	)
	return startID, endID, nil
}

func (s *Service) search(ctx context.Context, g *graph.Graph, start, end graph.NodeID, k int) ([]Path, error) {
	ctx, span := s.tracer.Start(ctx, "routing.KShortestPaths",
		trace.WithAttributes(attribute.Int("routing.k", k)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.computeTimeout)
	defer cancel()

	paths, err := KShortestPathsContext(ctx, g, start, end, k)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn().
				Dur("timeout", s.computeTimeout).
				Int("k", k).
				Int("found", len(paths)).
				Msg("route computation timed out")
			return nil, &Error{
				Code:    "COMPUTE_TIMEOUT",
				Message: "route computation exceeded its deadline",
				Err:     ErrComputeTimeout,
			}
		}
		return nil, err
	}
	return paths, nil
}

// cached returns stored routes for key. Results are only cached for versioned graphs.
func (s *Service) cached(key resultKey) ([]Route, bool) {
	if s.results == nil || key.version == "" {
		return nil, false
	}
	v, ok := s.results.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]Route), true
}

func (s *Service) store(key resultKey, routes []Route) {
	if s.results == nil || key.version == "" {
		return
	}
	s.results.Set(key, routes)
}

// CacheStats returns result cache statistics.
func (s *Service) CacheStats() CacheStats {
	if s.results == nil {
		return CacheStats{}
	}
	return CacheStats{Entries: s.results.Len(), Capacity: s.cacheSize}
}

// CacheStats contains result cache statistics.
type CacheStats struct {
	Entries  int
	Capacity int
}

func resultLabel(res *Result, err error) string {
	switch {
	case err == nil && res.Cached:
		return "cached"
	case err == nil && len(res.Routes) == 0:
		return "no_path"
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoNearbyNode):
		return "no_nearby_node"
	case errors.Is(err, ErrComputeTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidCoordinates), errors.Is(err, ErrInvalidK):
		return "invalid"
	default:
		return "error"
	}
}
