package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridefinder/ridefinder/internal/api/models"
	"github.com/ridefinder/ridefinder/internal/geo"
)

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(
		models.ProblemTypeValidation,
		"Validation error",
		http.StatusBadRequest,
		"req_test123",
	).WithDetail("k must be positive").
		WithInstance("/v1/routes").
		WithErrors([]models.FieldError{{Field: "k", Message: "must be at least 1", Code: "OUT_OF_RANGE"}})

	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, "k must be positive", p.Detail)
	assert.Equal(t, "/v1/routes", p.Instance)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "OUT_OF_RANGE", p.Errors[0].Code)
	assert.Nil(t, p.StartFound)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid input", []models.FieldError{
		{Field: "startCoords", Message: "must be [lon, lat]"},
	})
	p.Instance = "/v1/routes"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	assert.Equal(t, "Validation error", result.Title)
	assert.Equal(t, "/v1/routes", result.Instance)
	assert.Equal(t, "req_test123", result.TraceID)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "startCoords", result.Errors[0].Field)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.NotContains(t, raw, "startFound")
}

func TestNewNoNearbyNode(t *testing.T) {
	p := models.NewNoNearbyNode("req_123", "no road near start", false, true, 50)

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, models.ProblemTypeNoNearbyNode, raw["type"])
	assert.Equal(t, false, raw["startFound"])
	assert.Equal(t, true, raw["endFound"])
	assert.Equal(t, 50.0, raw["searchRadiusKm"])
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		problem *models.Problem
		typ     string
		title   string
		status  int
	}{
		{models.NewBadRequest("req_1", "d", nil), models.ProblemTypeValidation, "Validation error", http.StatusBadRequest},
		{models.NewUnauthorized("req_1", "d"), models.ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized},
		{models.NewForbidden("req_1", "d"), models.ProblemTypeForbidden, "Forbidden", http.StatusForbidden},
		{models.NewNotFound("req_1", "d"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{models.NewMethodNotAllowed("req_1", "d"), models.ProblemTypeMethodNotAllowed, "Method not allowed", http.StatusMethodNotAllowed},
		{models.NewUnsupportedMediaType("req_1", "d"), models.ProblemTypeUnsupportedType, "Unsupported media type", http.StatusUnsupportedMediaType},
		{models.NewTooManyRequests("req_1", "d"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{models.NewInternalError("req_1", "d"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{models.NewServiceUnavailable("req_1", "d"), models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.problem.Type)
			assert.Equal(t, tt.title, tt.problem.Title)
			assert.Equal(t, tt.status, tt.problem.Status)
			assert.Equal(t, "d", tt.problem.Detail)
			assert.Equal(t, "req_1", tt.problem.TraceID)
		})
	}
}

func TestPosition_RoundTrip(t *testing.T) {
	c := geo.Coordinate{Lat: 52.37, Lon: 4.89}

	p := models.PositionOf(c)
	assert.Equal(t, models.Position{4.89, 52.37}, p)
	assert.Equal(t, c, p.Coordinate())

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `[4.89, 52.37]`, string(data))
}
