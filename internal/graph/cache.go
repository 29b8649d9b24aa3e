package graph

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ridefinder/ridefinder/internal/mapdata"
)

const meterName = "github.com/ridefinder/ridefinder/internal/graph"

// Snapshot is a fully built graph together with its locator. Snapshots are immutable.
type Snapshot struct {
	Graph         *Graph
	Locator       Locator
	Source        string
	Version       string // empty when the source cannot report one
	Stats         BuildStats
	BuiltAt       time.Time
	BuildDuration time.Duration
}

// CacheConfig holds configuration for the graph cache.
type CacheConfig struct {
	// Source provides the map data.
	Source mapdata.Source

	// Logger for cache operations.
	Logger zerolog.Logger

	// CheckInterval is how often the source version is rechecked (default: 30 seconds).
	CheckInterval time.Duration

	// BuildTimeout bounds a single version check plus load and build (default: 10 minutes).
	// Builds are not tied to the request that triggered them.
	BuildTimeout time.Duration

	// CellSizeDeg is the locator grid cell size (default: DefaultCellSizeDeg).
	CellSizeDeg float64
}

// Cache owns the current Snapshot and rebuilds it when the source version changes.
// At most one refresh runs at a time. While it runs, callers that already have a
// snapshot to serve get it immediately; the rest wait for the refresh and share its result.
type Cache struct {
	source        mapdata.Source
	logger        zerolog.Logger
	checkInterval time.Duration
	buildTimeout  time.Duration
	cellSize      float64

	mu          sync.RWMutex
	snapshot    *Snapshot
	checkedAt   time.Time
	invalidated bool
	generation  uint64 // bumped by Invalidate
	inflight    *refreshCall

	buildDuration metric.Float64Histogram
	builds        metric.Int64Counter
}

// refreshCall is a refresh in progress. snap and err are set before done is closed.
type refreshCall struct {
	force bool
	done  chan struct{}
	snap  *Snapshot
	err   error
}

func (r *refreshCall) wait(ctx context.Context) (*Snapshot, error) {
	select {
	case <-r.done:
		return r.snap, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NewCache creates a graph cache. Nothing is loaded until the first Snapshot call.
func NewCache(cfg CacheConfig) *Cache {
	checkInterval := cfg.CheckInterval
	if checkInterval == 0 {
		checkInterval = 30 * time.Second
	}
	buildTimeout := cfg.BuildTimeout
	if buildTimeout <= 0 {
		buildTimeout = 10 * time.Minute
	}

	c := &Cache{
		source:        cfg.Source,
		logger:        cfg.Logger,
		checkInterval: checkInterval,
		buildTimeout:  buildTimeout,
		cellSize:      cfg.CellSizeDeg,
	}

	if err := c.initMetrics(otel.Meter(meterName)); err != nil {
		c.logger.Warn().Err(err).Msg("graph cache metrics disabled")
		_ = c.initMetrics(noop.NewMeterProvider().Meter(meterName))
	}

	return c
}

func (c *Cache) initMetrics(meter metric.Meter) error {
	var err error

	c.buildDuration, err = meter.Float64Histogram(
		"graph.build.duration",
		metric.WithDescription("Duration of map data load and graph build in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	c.builds, err = meter.Int64Counter(
		"graph.build.total",
		metric.WithDescription("Total number of graph build attempts"),
		metric.WithUnit("{build}"),
	)
	if err != nil {
		return err
	}

	_, err = meter.Int64ObservableGauge(
		"graph.nodes",
		metric.WithDescription("Nodes in the current road graph"),
		metric.WithUnit("{node}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if snap := c.Current(); snap != nil {
				o.Observe(int64(snap.Stats.Nodes))
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}

	_, err = meter.Int64ObservableGauge(
		"graph.edges",
		metric.WithDescription("Undirected segments in the current road graph"),
		metric.WithUnit("{edge}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if snap := c.Current(); snap != nil {
				o.Observe(int64(snap.Stats.Edges))
			}
			return nil
		}),
	)
	return err
}

// SourceName returns the name of the underlying map-data source.
func (c *Cache) SourceName() string {
	return c.source.Name()
}

// Current returns the loaded snapshot without checking the source, or nil if none is loaded.
func (c *Cache) Current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Snapshot returns the current graph, rebuilding it first when the source version changed.
// If the source fails while a previous snapshot exists, the previous snapshot is served.
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	if c.fresh() {
		snap := c.snapshot
		c.mu.RUnlock()
		return snap, nil
	}
	c.mu.RUnlock()

	return c.refresh(ctx, false)
}

// Invalidate forces the next Snapshot call to rebuild regardless of the source version.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = true
	c.generation++

	c.logger.Info().Str("source", c.source.Name()).Msg("graph cache invalidated")
}

// Reload rebuilds the graph now. Unlike Snapshot, a failure is returned even when an
// older snapshot exists; the older snapshot stays in place.
func (c *Cache) Reload(ctx context.Context) (*Snapshot, error) {
	return c.refresh(ctx, true)
}

// fresh reports whether the snapshot can be served without consulting the source.
// Callers must hold c.mu.
func (c *Cache) fresh() bool {
	return c.snapshot != nil && !c.invalidated && time.Since(c.checkedAt) < c.checkInterval
}

// refresh starts a refresh or joins the one in flight. A forced refresh never settles
// for the result of an unforced one, which may have skipped the rebuild.
func (c *Cache) refresh(ctx context.Context, force bool) (*Snapshot, error) {
	for {
		c.mu.Lock()
		if !force && c.fresh() {
			snap := c.snapshot
			c.mu.Unlock()
			return snap, nil
		}

		call := c.inflight
		if call == nil {
			call = &refreshCall{force: force, done: make(chan struct{})}
			c.inflight = call
			c.mu.Unlock()

			go c.run(context.WithoutCancel(ctx), call)
			return call.wait(ctx)
		}
		current := c.snapshot
		c.mu.Unlock()

		if !force && current != nil {
			return current, nil
		}
		if force && !call.force {
			select {
			case <-call.done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return call.wait(ctx)
	}
}

// run performs a refresh detached from the caller's cancellation, bounded by buildTimeout.
func (c *Cache) run(ctx context.Context, call *refreshCall) {
	ctx, cancel := context.WithTimeout(ctx, c.buildTimeout)
	defer cancel()

	call.snap, call.err = c.update(ctx, call.force)

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(call.done)
}

// update checks the source version and rebuilds when needed. c.mu is only held to
// read and swap state, never across source or build work.
func (c *Cache) update(ctx context.Context, force bool) (*Snapshot, error) {
	c.mu.RLock()
	current, invalidated, generation := c.snapshot, c.invalidated, c.generation
	c.mu.RUnlock()

	version, err := c.source.Version(ctx)
	if err != nil {
		return c.staleOrError(err, force)
	}

	if !force && current != nil && !invalidated && (version == "" || version == current.Version) {
		c.mu.Lock()
		c.checkedAt = time.Now()
		c.mu.Unlock()
		return current, nil
	}

	snap, err := c.build(ctx, version)
	if err != nil {
		return c.staleOrError(err, force)
	}

	c.mu.Lock()
	c.snapshot = snap
	c.checkedAt = snap.BuiltAt
	// An Invalidate that arrived mid-build still applies to the next call.
	if c.generation == generation {
		c.invalidated = false
	}
	c.mu.Unlock()
	return snap, nil
}

// staleOrError serves the previous snapshot when the source fails. The check time is
// still advanced so a failing source is not hammered on every request.
func (c *Cache) staleOrError(err error, force bool) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if force || c.snapshot == nil {
		return nil, err
	}

	c.logger.Warn().Err(err).
		Str("source", c.source.Name()).
		Str("version", c.snapshot.Version).
		Time("built_at", c.snapshot.BuiltAt).
		Msg("serving stale graph due to map data error")
	c.checkedAt = time.Now()
	return c.snapshot, nil
}

func (c *Cache) build(ctx context.Context, version string) (*Snapshot, error) {
	start := time.Now()

	ds, err := c.source.Load(ctx)
	if err != nil {
		c.builds.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
		c.logger.Error().Err(err).Str("source", c.source.Name()).Msg("failed to load map data")
		return nil, err
	}

	if ds.Skipped > 0 || ds.Ignored > 0 {
		c.logger.Debug().
			Int("skipped", ds.Skipped).
			Int("ignored", ds.Ignored).
			Msg("map data elements not used for the graph")
	}

	g, stats := Build(ds)
	locator := NewGridIndex(g, c.cellSize)
	elapsed := time.Since(start)

	c.buildDuration.Record(ctx, elapsed.Seconds())
	c.builds.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))

	c.logger.Info().
		Str("source", c.source.Name()).
		Str("version", version).
		Int("points", stats.Points).
		Int("ways", stats.Ways).
		Int("skipped_ways", stats.SkippedWays).
		Int("nodes", stats.Nodes).
		Int("edges", stats.Edges).
		Dur("duration", elapsed).
		Msg("graph built")

	return &Snapshot{
		Graph:         g,
		Locator:       locator,
		Source:        c.source.Name(),
		Version:       version,
		Stats:         stats,
		BuiltAt:       time.Now(),
		BuildDuration: elapsed,
	}, nil
}
