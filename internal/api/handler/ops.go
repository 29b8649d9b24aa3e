// Package handler provides HTTP handlers for the RideFinder API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ridefinder/ridefinder/internal/api/models"
	"github.com/ridefinder/ridefinder/internal/api/response"
	"github.com/ridefinder/ridefinder/internal/graph"
	"github.com/ridefinder/ridefinder/internal/routing"
)

// GraphState exposes the currently loaded road graph without triggering a load.
type GraphState interface {
	Current() *graph.Snapshot
	SourceName() string
}

// CacheReporter reports route result cache occupancy.
type CacheReporter interface {
	CacheStats() routing.CacheStats
}

// SubsystemCheck reports the state of one dependency.
type SubsystemCheck func(ctx context.Context) models.SubsystemStatus

// OpsConfig holds dependencies for the ops endpoints.
type OpsConfig struct {
	Version    string
	BuildTime  string
	Graphs     GraphState
	Routes     CacheReporter    // optional
	Subsystems []SubsystemCheck // optional
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version    string
	buildTime  string
	graphs     GraphState
	routes     CacheReporter
	subsystems []SubsystemCheck
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:    cfg.Version,
		buildTime:  cfg.BuildTime,
		graphs:     cfg.Graphs,
		routes:     cfg.Routes,
		subsystems: cfg.Subsystems,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, r, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now().UTC()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready - ready once a road graph is loaded.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	snap := h.graphs.Current()
	if snap == nil {
		response.JSON(w, r, http.StatusServiceUnavailable, models.Health{
			Status:  models.HealthStatusFail,
			Time:    models.Timestamp(time.Now().UTC()),
			Details: map[string]interface{}{"graph": "not loaded"},
		})
		return
	}

	response.OK(w, r, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now().UTC()),
		Details: map[string]interface{}{
			"graphVersion": snap.Version,
			"nodes":        snap.Graph.NodeCount(),
		},
	})
}

// SystemStatus handles GET /v1/ops/status - graph and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now().UTC()),
		Subsystems: make([]models.SubsystemStatus, 0, len(h.subsystems)+1),
	}

	graphSub := models.SubsystemStatus{Name: "graph:" + h.graphs.SourceName(), Status: models.HealthStatusOK}
	if snap := h.graphs.Current(); snap != nil {
		gs := graphStatus(snap)
		status.Graph = &gs
	} else {
		graphSub.Status = models.HealthStatusFail
		graphSub.Detail = strPtr("no road graph loaded")
		status.Status = models.HealthStatusFail
	}
	status.Subsystems = append(status.Subsystems, graphSub)

	for _, check := range h.subsystems {
		sub := check(r.Context())
		if sub.Status != models.HealthStatusOK && status.Status == models.HealthStatusOK {
			status.Status = models.HealthStatusDegraded
		}
		status.Subsystems = append(status.Subsystems, sub)
	}

	if h.routes != nil {
		stats := h.routes.CacheStats()
		status.RouteCache = &models.RouteCacheStatus{Entries: stats.Entries, Capacity: stats.Capacity}
	}

	response.OK(w, r, status)
}

// CircuitCheck reports a circuit breaker as a subsystem: closed is OK,
// half-open is DEGRADED and open is FAIL.
func CircuitCheck(name string, breaker interface{ CircuitState() gobreaker.State }) SubsystemCheck {
	return func(context.Context) models.SubsystemStatus {
		state := breaker.CircuitState()
		sub := models.SubsystemStatus{Name: name, Status: models.HealthStatusOK, Detail: strPtr("circuit " + state.String())}
		switch state {
		case gobreaker.StateHalfOpen:
			sub.Status = models.HealthStatusDegraded
		case gobreaker.StateOpen:
			sub.Status = models.HealthStatusFail
		}
		return sub
	}
}

// PingCheck reports a dependency that can be pinged.
func PingCheck(name string, timeout time.Duration, pinger interface{ Ping(context.Context) error }) SubsystemCheck {
	return func(ctx context.Context) models.SubsystemStatus {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := pinger.Ping(ctx); err != nil {
			return models.SubsystemStatus{Name: name, Status: models.HealthStatusFail, Detail: strPtr(err.Error())}
		}
		return models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
	}
}

func graphStatus(snap *graph.Snapshot) models.GraphStatus {
	return models.GraphStatus{
		Source:          snap.Source,
		Version:         snap.Version,
		Points:          snap.Stats.Points,
		Ways:            snap.Stats.Ways,
		SkippedWays:     snap.Stats.SkippedWays,
		Nodes:           snap.Stats.Nodes,
		Edges:           snap.Stats.Edges,
		BuiltAt:         models.Timestamp(snap.BuiltAt),
		BuildDurationMs: snap.BuildDuration.Milliseconds(),
	}
}

func strPtr(s string) *string {
	return &s
}
