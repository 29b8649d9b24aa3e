package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridefinder/ridefinder/internal/api/models"
	"github.com/ridefinder/ridefinder/internal/auth"
	"github.com/ridefinder/ridefinder/internal/geo"
	"github.com/ridefinder/ridefinder/internal/routing"
)

// Two ways between node 1 and node 4: direct through 2, and a detour through 3.
const testMap = `{"elements":[
	{"type":"node","id":1,"lat":52.0,"lon":4.0},
	{"type":"node","id":2,"lat":52.0,"lon":4.01},
	{"type":"node","id":3,"lat":52.005,"lon":4.01},
	{"type":"node","id":4,"lat":52.0,"lon":4.02},
	{"type":"way","id":10,"nodes":[1,2,4]},
	{"type":"way","id":11,"nodes":[1,3,4]}
]}`

func writeMap(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roads.json")
	require.NoError(t, os.WriteFile(path, []byte(testMap), 0o600))
	return path
}

func TestRun_Routes(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{
		"routes", "-map", writeMap(t), "-from", "4.0,52.0", "-to", "4.0201, 52.0001", "-k", "5",
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	var out models.RouteComputeResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))

	require.Len(t, out.Routes, 2)
	assert.Equal(t, 1, out.Routes[0].ID)
	assert.Less(t, out.Routes[0].Distance, out.Routes[1].Distance)
	assert.Equal(t, models.Position{4.01, 52.0}, out.Routes[0].Path[1])
	assert.Equal(t, models.Position{4.02, 52.0}, out.Snapped.End)
	assert.NotEmpty(t, out.Routes[0].Polyline)
}

func TestRun_RoutesNoNearbyNode(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{
		"routes", "-map", writeMap(t), "-from", "4.0,52.0", "-to", "6.0,53.0", "-radius", "5",
	}, &stdout, &stderr)

	assert.ErrorIs(t, err, routing.ErrNoNearbyNode)
	assert.Empty(t, stdout.String())
}

func TestRun_RoutesMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{
		"routes", "-map", filepath.Join(t.TempDir(), "missing.json"), "-from", "4.0,52.0", "-to", "4.02,52.0",
	}, &stdout, &stderr)

	require.Error(t, err)
	assert.NotErrorIs(t, err, errUsage)
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"serve"}},
		{"missing map", []string{"routes", "-from", "4,52", "-to", "4,52"}},
		{"bad k", []string{"routes", "-map", "x.json", "-k", "0"}},
		{"unknown flag", []string{"routes", "-zoom", "3"}},
		{"token without subject", []string{"token", "-key", "secret"}},
		{"token bad role", []string{"token", "-key", "secret", "-subject", "a", "-role", "root"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, &stdout, &stderr)
			assert.ErrorIs(t, err, errUsage)
			assert.NotEmpty(t, stderr.String())
		})
	}
}

func TestRun_Token(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{
		"token", "-key", "secret", "-subject", "ops@ridefinder.dev", "-role", auth.RoleAdmin,
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	var out tokenOutput
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		SigningKey: "secret",
		Issuer:     "https://routes.ridefinder.dev",
		Audience:   "ridefinder-api",
	})
	require.NoError(t, err)

	claims, err := tokens.ValidateAccessToken(out.Token)
	require.NoError(t, err)
	assert.Equal(t, "ops@ridefinder.dev", claims.Subject)
	assert.True(t, claims.HasRole(auth.RoleAdmin))
}

func TestRun_TokenWithoutKey(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "")
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"token", "-subject", "a"}, &stdout, &stderr)

	assert.ErrorIs(t, err, auth.ErrMissingSigningKey)
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    geo.Coordinate
		wantErr bool
	}{
		{in: "4.9,52.37", want: geo.Coordinate{Lat: 52.37, Lon: 4.9}},
		{in: " 4.9 , 52.37 ", want: geo.Coordinate{Lat: 52.37, Lon: 4.9}},
		{in: "52.37", wantErr: true},
		{in: "x,52", wantErr: true},
		{in: "4.9,y", wantErr: true},
		{in: "4.9,95", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePosition(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
