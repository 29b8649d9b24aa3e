package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridefinder/ridefinder/internal/api/middleware"
	"github.com/ridefinder/ridefinder/internal/api/models"
	"github.com/ridefinder/ridefinder/internal/api/response"
	"github.com/ridefinder/ridefinder/internal/geo"
	"github.com/ridefinder/ridefinder/internal/mapdata"
	"github.com/ridefinder/ridefinder/internal/routing"
)

// RouteComputer computes ranked routes.
type RouteComputer interface {
	Compute(ctx context.Context, req routing.Request) (*routing.Result, error)
	MaxK() int
}

// RouteHandler handles routing endpoints.
type RouteHandler struct {
	routes RouteComputer
	logger zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(routes RouteComputer, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{
		routes: routes,
		logger: logger.With().Str("handler", "route").Logger(),
	}
}

// ComputeRoutes handles POST /v1/routes - compute up to K shortest routes.
func (h *RouteHandler) ComputeRoutes(w http.ResponseWriter, r *http.Request) {
	var input models.RouteComputeRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(w, r, "request body too large", nil)
			return
		}
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	req, fieldErrors := h.validate(input)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid route request", fieldErrors)
		return
	}

	result, err := h.routes.Compute(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := models.RouteComputeResponse{
		Routes:       make([]models.RouteResult, 0, len(result.Routes)),
		GraphVersion: result.GraphVersion,
		Snapped: models.SnappedEndpoints{
			Start: models.PositionOf(result.SnappedStart),
			End:   models.PositionOf(result.SnappedEnd),
		},
		GeneratedAt: models.Timestamp(time.Now().UTC()),
	}
	for _, route := range result.Routes {
		resp.Routes = append(resp.Routes, models.RouteResultOf(route))
	}

	response.OK(w, r, resp)
}

func (h *RouteHandler) validate(input models.RouteComputeRequest) (routing.Request, []models.FieldError) {
	var req routing.Request
	var errs []models.FieldError

	start, err := parsePosition("startCoords", input.StartCoords)
	if err != nil {
		errs = append(errs, *err)
	}
	end, err := parsePosition("endCoords", input.EndCoords)
	if err != nil {
		errs = append(errs, *err)
	}
	req.Start, req.End = start, end

	if input.K != nil {
		k := *input.K
		switch {
		case k <= 0:
			errs = append(errs, models.FieldError{Field: "k", Message: "must be at least 1", Code: "OUT_OF_RANGE"})
		case k > h.routes.MaxK():
			errs = append(errs, models.FieldError{
				Field:   "k",
				Message: fmt.Sprintf("must be at most %d", h.routes.MaxK()),
				Code:    "OUT_OF_RANGE",
			})
		default:
			req.K = k
		}
	}

	return req, errs
}

func parsePosition(field string, v []float64) (geo.Coordinate, *models.FieldError) {
	if v == nil {
		return geo.Coordinate{}, &models.FieldError{Field: field, Message: "is required", Code: "REQUIRED"}
	}
	if len(v) != 2 {
		return geo.Coordinate{}, &models.FieldError{Field: field, Message: "must be [lon, lat]", Code: "INVALID_FORMAT"}
	}
	c := models.Position{v[0], v[1]}.Coordinate()
	if err := c.Validate(); err != nil {
		return geo.Coordinate{}, &models.FieldError{Field: field, Message: err.Error(), Code: "OUT_OF_RANGE"}
	}
	return c, nil
}

func (h *RouteHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var nearby *routing.NoNearbyNodeError
	var rerr *routing.Error

	switch {
	case errors.As(err, &nearby):
		response.NoNearbyNode(w, r, nearby.Error(), nearby.StartFound, nearby.EndFound, nearby.RadiusKm)
	case errors.Is(err, routing.ErrComputeTimeout):
		h.logger.Warn().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("route computation timed out")
		response.ServiceUnavailableRetry(w, r, "route computation timed out", 1)
	case errors.Is(err, routing.ErrInvalidCoordinates), errors.Is(err, routing.ErrInvalidK):
		detail := err.Error()
		var fieldErrors []models.FieldError
		if errors.As(err, &rerr) {
			detail = rerr.Message
			fieldErrors = []models.FieldError{{Field: fieldFor(rerr.Code), Message: rerr.Message, Code: rerr.Code}}
		}
		response.BadRequest(w, r, detail, fieldErrors)
	case errors.Is(err, mapdata.ErrDataLoad):
		h.logger.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("road network unavailable")
		response.ServiceUnavailableRetry(w, r, "road network data is unavailable", 30)
	case errors.Is(err, context.Canceled):
		response.ServiceUnavailable(w, r, "request cancelled")
	default:
		h.logger.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("route computation failed")
		response.InternalError(w, r, "failed to compute routes")
	}
}

func fieldFor(code string) string {
	switch code {
	case "INVALID_START":
		return "startCoords"
	case "INVALID_END":
		return "endCoords"
	default:
		return "k"
	}
}
