package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridefinder/ridefinder/internal/config"
	"github.com/ridefinder/ridefinder/internal/geo"
	"github.com/ridefinder/ridefinder/internal/graph"
	"github.com/ridefinder/ridefinder/internal/routing"
)

// fakeRoutes returns one route per call unless the start latitude is listed in fail.
type fakeRoutes struct {
	fail  map[float64]error
	delay time.Duration

	mu       sync.Mutex
	requests []routing.Request

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeRoutes) Compute(ctx context.Context, req routing.Request) (*routing.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fail[req.Start.Lat]; err != nil {
		return nil, err
	}
	return &routing.Result{Routes: []routing.Route{{Rank: 1, Distance: 1}}}, nil
}

func targets(n int) []WarmupTarget {
	out := make([]WarmupTarget, n)
	for i := range out {
		out[i] = WarmupTarget{
			Name:  "target",
			Start: geo.Coordinate{Lat: float64(i), Lon: 4.9},
			End:   geo.Coordinate{Lat: float64(i) + 0.1, Lon: 4.9},
		}
	}
	return out
}

func TestDefaultWarmupConfig(t *testing.T) {
	cfg := DefaultWarmupConfig()

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Empty(t, cfg.Targets)
}

func TestWarmupConfigFrom_SwapsLonLat(t *testing.T) {
	cfg := WarmupConfigFrom(config.WarmupConfig{
		Pairs: []config.WarmupPair{{
			Name:  "amsterdam-utrecht",
			Start: [2]float64{4.9041, 52.3676},
			End:   [2]float64{5.1102, 52.0894},
			K:     2,
		}},
	})

	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, geo.Coordinate{Lat: 52.3676, Lon: 4.9041}, cfg.Targets[0].Start)
	assert.Equal(t, geo.Coordinate{Lat: 52.0894, Lon: 5.1102}, cfg.Targets[0].End)
	assert.Equal(t, 2, cfg.Targets[0].K)
	assert.Equal(t, 3, cfg.Concurrency, "zero keeps the default")
}

func TestWarmupJob_Run(t *testing.T) {
	routes := &fakeRoutes{fail: map[float64]error{2: routing.ErrNoNearbyNode}}
	job := NewWarmupJob(WarmupJobConfig{
		Config: WarmupConfig{Targets: targets(5), Concurrency: 2},
		Routes: routes,
		Logger: zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 5, result.TotalTargets)
	assert.Equal(t, 4, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 4, result.RoutesFound)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, "no road network node")
	assert.Len(t, routes.requests, 5)
}

func TestWarmupJob_BoundsConcurrency(t *testing.T) {
	routes := &fakeRoutes{delay: 20 * time.Millisecond}
	job := NewWarmupJob(WarmupJobConfig{
		Config: WarmupConfig{Targets: targets(8), Concurrency: 2},
		Routes: routes,
		Logger: zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 8, result.Successful)
	assert.LessOrEqual(t, routes.maxInFlight.Load(), int32(2))
}

func TestWarmupJob_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	routes := &fakeRoutes{}
	job := NewWarmupJob(WarmupJobConfig{
		Config: WarmupConfig{Targets: targets(3)},
		Routes: routes,
		Logger: zerolog.Nop(),
	})

	result := job.Run(ctx)

	assert.Equal(t, 3, result.Failed)
	assert.Empty(t, routes.requests)
}

func TestWarmupJob_Timeout(t *testing.T) {
	routes := &fakeRoutes{delay: time.Second}
	job := NewWarmupJob(WarmupJobConfig{
		Config: WarmupConfig{Targets: targets(1), Timeout: 10 * time.Millisecond},
		Routes: routes,
		Logger: zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Errors[0].Error, context.DeadlineExceeded.Error())
}

func TestWarmupJob_GetMetrics(t *testing.T) {
	job := NewWarmupJob(WarmupJobConfig{
		Config: WarmupConfig{Targets: targets(2)},
		Routes: &fakeRoutes{},
		Logger: zerolog.Nop(),
	})

	_ = job.Run(context.Background())
	_ = job.Run(context.Background())

	m := job.GetMetrics()
	assert.Equal(t, int64(2), m.TotalRuns)
	assert.Equal(t, int64(4), m.SuccessfulRoutes)
	assert.Equal(t, int64(4), m.RoutesFound)
	assert.NotZero(t, m.LastRunAt)
}

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) Reload(context.Context) (*graph.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &graph.Snapshot{Version: "v2", Stats: graph.BuildStats{Nodes: 3, Edges: 2}}, nil
}

func TestJobs_Dispatch(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		reloadErr   error
		failTargets bool
		wantErr     error
		wantAnyErr  bool
		wantReloads int
		wantWarmups int
	}{
		{name: "reload then warm-up", body: `{"job_type":"graph_reload"}`, wantReloads: 1, wantWarmups: 2},
		{name: "reload without warm-up", body: `{"job_type":"graph_reload","skip_warmup":true}`, wantReloads: 1},
		{name: "warm-up only", body: `{"job_type":"graph_warmup"}`, wantWarmups: 2},
		{name: "reload failure skips warm-up", body: `{"job_type":"graph_reload"}`, reloadErr: errors.New("boom"), wantAnyErr: true, wantReloads: 1},
		{name: "warm-up failures", body: `{"job_type":"graph_warmup"}`, failTargets: true, wantAnyErr: true, wantWarmups: 2},
		{name: "unknown job", body: `{"job_type":"provider_refresh"}`, wantErr: ErrUnknownJob},
		{name: "malformed", body: `not json`, wantErr: ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routes := &fakeRoutes{}
			if tt.failTargets {
				routes.fail = map[float64]error{0: errors.New("x"), 1: errors.New("y")}
			}
			reloader := &fakeReloader{err: tt.reloadErr}
			jobs := &Jobs{
				Graphs: reloader,
				Warmup: NewWarmupJob(WarmupJobConfig{
					Config: WarmupConfig{Targets: targets(2)},
					Routes: routes,
					Logger: zerolog.Nop(),
				}),
				Logger: zerolog.Nop(),
			}

			_, err := jobs.Dispatch(context.Background(), []byte(tt.body))

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantAnyErr:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantReloads, reloader.calls)
			assert.Len(t, routes.requests, tt.wantWarmups)
		})
	}
}

func TestJobs_NoWarmupConfigured(t *testing.T) {
	jobs := &Jobs{Graphs: &fakeReloader{}, Logger: zerolog.Nop()}

	assert.NoError(t, jobs.Run(context.Background(), JobMessage{JobType: JobGraphWarmup}))
	assert.NoError(t, jobs.Run(context.Background(), JobMessage{JobType: JobGraphReload}))
}

func TestHandleResult(t *testing.T) {
	logger := zerolog.Nop()
	start := time.Now()

	assert.True(t, handleResult(logger, start, JobGraphReload, nil))
	assert.True(t, handleResult(logger, start, "other", ErrUnknownJob))
	assert.False(t, handleResult(logger, start, "", ErrMalformedMessage))
	assert.False(t, handleResult(logger, start, JobGraphReload, errors.New("reload graph: boom")))
}
