// Package worker runs background jobs for RideFinder: graph reloads triggered
// over Pub/Sub and route warm-up after a reload.
package worker

import (
	"time"

	"github.com/ridefinder/ridefinder/internal/config"
	"github.com/ridefinder/ridefinder/internal/geo"
)

// WarmupTarget is a route precomputed after each graph load.
type WarmupTarget struct {
	// Name is the human-readable name of the target, used in logs.
	Name string

	Start geo.Coordinate
	End   geo.Coordinate

	// K is the number of routes to compute. Zero uses the routing default.
	K int
}

// WarmupConfig holds configuration for the warm-up job.
type WarmupConfig struct {
	Targets []WarmupTarget

	// Concurrency is the number of routes computed in parallel.
	// Default: 3
	Concurrency int

	// Timeout bounds each route computation.
	// Default: 30 seconds
	Timeout time.Duration
}

// DefaultWarmupConfig returns the default warm-up configuration with no targets.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Concurrency: 3,
		Timeout:     30 * time.Second,
	}
}

// WarmupConfigFrom converts the service configuration, whose pairs are [lon, lat].
func WarmupConfigFrom(cfg config.WarmupConfig) WarmupConfig {
	wc := DefaultWarmupConfig()
	if cfg.Concurrency > 0 {
		wc.Concurrency = cfg.Concurrency
	}
	if cfg.Timeout > 0 {
		wc.Timeout = cfg.Timeout
	}
	for _, p := range cfg.Pairs {
		wc.Targets = append(wc.Targets, WarmupTarget{
			Name:  p.Name,
			Start: geo.Coordinate{Lat: p.Start[1], Lon: p.Start[0]},
			End:   geo.Coordinate{Lat: p.End[1], Lon: p.End[0]},
			K:     p.K,
		})
	}
	return wc
}
