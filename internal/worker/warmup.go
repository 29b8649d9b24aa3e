package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridefinder/ridefinder/internal/routing"
)

// RouteComputer computes routes. Implemented by *routing.Service.
type RouteComputer interface {
	Compute(ctx context.Context, req routing.Request) (*routing.Result, error)
}

// WarmupJob precomputes configured routes so the first user requests hit the result cache.
type WarmupJob struct {
	config WarmupConfig
	routes RouteComputer
	logger zerolog.Logger

	metrics *WarmupMetrics
}

// WarmupMetrics tracks warm-up job statistics.
type WarmupMetrics struct {
	mu sync.RWMutex

	TotalRuns        int64
	SuccessfulRoutes int64
	FailedRoutes     int64
	RoutesFound      int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// WarmupJobConfig holds configuration for creating a WarmupJob.
type WarmupJobConfig struct {
	Config WarmupConfig
	Routes RouteComputer
	Logger zerolog.Logger
}

// NewWarmupJob creates a warm-up job.
func NewWarmupJob(cfg WarmupJobConfig) *WarmupJob {
	config := cfg.Config
	defaults := DefaultWarmupConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &WarmupJob{
		config:  config,
		routes:  cfg.Routes,
		logger:  cfg.Logger,
		metrics: &WarmupMetrics{},
	}
}

// WarmupResult contains the result of a warm-up run.
type WarmupResult struct {
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	TotalTargets int
	Successful   int
	Failed       int
	RoutesFound  int
	Errors       []WarmupError
}

// WarmupError records a target that could not be computed.
type WarmupError struct {
	Target string
	Error  string
}

// Run computes every configured target with a bounded pool of workers.
func (j *WarmupJob) Run(ctx context.Context) *WarmupResult {
	startTime := time.Now()
	targets := j.config.Targets
	result := &WarmupResult{
		StartTime:    startTime,
		TotalTargets: len(targets),
	}

	j.logger.Info().
		Int("total_targets", result.TotalTargets).
		Int("concurrency", j.config.Concurrency).
		Msg("starting route warm-up")

	targetsChan := make(chan WarmupTarget, len(targets))
	resultsChan := make(chan targetResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.warmupWorker(ctx, targetsChan, resultsChan)
		}()
	}

	for _, t := range targets {
		targetsChan <- t
	}
	close(targetsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for tr := range resultsChan {
		if tr.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, WarmupError{Target: tr.target.Name, Error: tr.err.Error()})
			continue
		}
		result.Successful++
		result.RoutesFound += tr.routes
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("routes_found", result.RoutesFound).
		Msg("route warm-up completed")

	return result
}

type targetResult struct {
	target WarmupTarget
	routes int
	err    error
}

func (j *WarmupJob) warmupWorker(ctx context.Context, targets <-chan WarmupTarget, results chan<- targetResult) {
	for target := range targets {
		if err := ctx.Err(); err != nil {
			results <- targetResult{target: target, err: err}
			continue
		}
		results <- j.warmTarget(ctx, target)
	}
}

func (j *WarmupJob) warmTarget(ctx context.Context, target WarmupTarget) targetResult {
	targetCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	res, err := j.routes.Compute(targetCtx, routing.Request{
		Start: target.Start,
		End:   target.End,
		K:     target.K,
	})
	if err != nil {
		j.logger.Warn().Err(err).Str("target", target.Name).Msg("warm-up route failed")
		return targetResult{target: target, err: err}
	}

	if len(res.Routes) == 0 {
		j.logger.Debug().Str("target", target.Name).Msg("warm-up target has no path")
	}
	return targetResult{target: target, routes: len(res.Routes)}
}

func (j *WarmupJob) updateMetrics(result *WarmupResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.SuccessfulRoutes += int64(result.Successful)
	j.metrics.FailedRoutes += int64(result.Failed)
	j.metrics.RoutesFound += int64(result.RoutesFound)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *WarmupJob) GetMetrics() WarmupMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return WarmupMetrics{
		TotalRuns:        j.metrics.TotalRuns,
		SuccessfulRoutes: j.metrics.SuccessfulRoutes,
		FailedRoutes:     j.metrics.FailedRoutes,
		RoutesFound:      j.metrics.RoutesFound,
		LastRunAt:        j.metrics.LastRunAt,
		LastRunDuration:  j.metrics.LastRunDuration,
		TotalDuration:    j.metrics.TotalDuration,
	}
}
