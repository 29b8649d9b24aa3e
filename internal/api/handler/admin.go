package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ridefinder/ridefinder/internal/api/middleware"
	"github.com/ridefinder/ridefinder/internal/api/models"
	"github.com/ridefinder/ridefinder/internal/api/response"
	"github.com/ridefinder/ridefinder/internal/graph"
)

// GraphReloader rebuilds the road graph on demand.
type GraphReloader interface {
	Reload(ctx context.Context) (*graph.Snapshot, error)
}

// AdminHandler handles administrative endpoints.
type AdminHandler struct {
	graphs GraphReloader
	logger zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(graphs GraphReloader, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		graphs: graphs,
		logger: logger.With().Str("handler", "admin").Logger(),
	}
}

// ReloadGraph handles POST /v1/admin/graph/reload - rebuild the road graph from its source.
// On failure the previous graph keeps serving.
func (h *AdminHandler) ReloadGraph(w http.ResponseWriter, r *http.Request) {
	snap, err := h.graphs.Reload(r.Context())
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("subject", middleware.GetSubject(r.Context())).
			Msg("graph reload failed")
		response.ServiceUnavailable(w, r, "graph reload failed: "+err.Error())
		return
	}

	h.logger.Info().
		Str("subject", middleware.GetSubject(r.Context())).
		Str("version", snap.Version).
		Int("nodes", snap.Stats.Nodes).
		Msg("graph reloaded")

	response.OK(w, r, models.GraphReloadResponse{Graph: graphStatus(snap)})
}
