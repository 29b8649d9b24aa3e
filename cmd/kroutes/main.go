// Package main provides kroutes, an offline command for computing routes over a
// map file and issuing API tokens.
//
// Usage:
//
//	kroutes routes -map roads.json -from 4.90,52.37 -to 5.11,52.09 -k 3
//	kroutes token -subject ops@ridefinder.dev -role admin
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ridefinder/ridefinder/internal/api/models"
	"github.com/ridefinder/ridefinder/internal/auth"
	"github.com/ridefinder/ridefinder/internal/config"
	"github.com/ridefinder/ridefinder/internal/geo"
	"github.com/ridefinder/ridefinder/internal/graph"
	"github.com/ridefinder/ridefinder/internal/mapdata"
	"github.com/ridefinder/ridefinder/internal/routing"
)

// errUsage marks errors caused by bad arguments; flag has already printed usage.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "kroutes:", err)
			os.Exit(1)
		}
		os.Exit(2)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: kroutes <routes|token> [flags]")
		return errUsage
	}

	switch args[0] {
	case "routes":
		return runRoutes(ctx, args[1:], stdout, stderr)
	case "token":
		return runToken(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "kroutes: unknown command %q\n", args[0])
		return errUsage
	}
}

func runRoutes(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("routes", flag.ContinueOnError)
	fs.SetOutput(stderr)
	mapPath := fs.String("map", "", "map data file (.json, .json.gz, .osm, .osm.pbf)")
	from := fs.String("from", "", "start position as lon,lat")
	to := fs.String("to", "", "end position as lon,lat")
	k := fs.Int("k", 3, "number of routes")
	radius := fs.Float64("radius", graph.DefaultSearchRadiusKm, "snapping radius in km")
	timeout := fs.Duration("timeout", 30*time.Second, "computation deadline")
	verbose := fs.Bool("v", false, "log graph build details to stderr")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if *mapPath == "" {
		fmt.Fprintln(stderr, "routes: -map is required")
		return errUsage
	}
	if *k < 1 {
		fmt.Fprintln(stderr, "routes: -k must be at least 1")
		return errUsage
	}
	start, err := parsePosition(*from)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	end, err := parsePosition(*to)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(stderr).Level(level).With().Timestamp().Logger()

	service := routing.NewService(routing.ServiceConfig{
		Graphs: graph.NewCache(graph.CacheConfig{
			Source: mapdata.NewFileSource(*mapPath),
			Logger: logger,
		}),
		Logger:         logger,
		SearchRadiusKm: *radius,
		DefaultK:       *k,
		MaxK:           max(*k, 10),
		ComputeTimeout: *timeout,
		CacheSize:      -1,
	})

	result, err := service.Compute(ctx, routing.Request{Start: start, End: end, K: *k})
	if err != nil {
		return err
	}

	out := models.RouteComputeResponse{
		Routes:       make([]models.RouteResult, 0, len(result.Routes)),
		GraphVersion: result.GraphVersion,
		Snapped: models.SnappedEndpoints{
			Start: models.PositionOf(result.SnappedStart),
			End:   models.PositionOf(result.SnappedEnd),
		},
		GeneratedAt: models.Timestamp(time.Now().UTC()),
	}
	for _, route := range result.Routes {
		out.Routes = append(out.Routes, models.RouteResultOf(route))
	}
	return writeJSON(stdout, out)
}

type tokenOutput struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func runToken(args []string, stdout, stderr io.Writer) error {
	defaults := config.Default().Auth

	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	key := fs.String("key", os.Getenv("JWT_SIGNING_KEY"), "HS256 signing key (default $JWT_SIGNING_KEY)")
	subject := fs.String("subject", "", "token subject")
	role := fs.String("role", auth.RoleClient, "client or admin")
	ttl := fs.Duration("ttl", defaults.TokenTTL, "token lifetime")
	issuer := fs.String("issuer", defaults.Issuer, "issuer claim")
	audience := fs.String("audience", defaults.Audience, "audience claim")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if *subject == "" {
		fmt.Fprintln(stderr, "token: -subject is required")
		return errUsage
	}
	if *role != auth.RoleClient && *role != auth.RoleAdmin {
		fmt.Fprintf(stderr, "token: unknown role %q\n", *role)
		return errUsage
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		SigningKey: *key,
		Issuer:     *issuer,
		Audience:   *audience,
		TTL:        *ttl,
	})
	if err != nil {
		return err
	}

	token, expiresAt, err := tokens.IssueToken(*subject, *role)
	if err != nil {
		return err
	}
	return writeJSON(stdout, tokenOutput{Token: token, Subject: *subject, Role: *role, ExpiresAt: expiresAt.UTC()})
}

// parsePosition reads "lon,lat".
func parsePosition(s string) (geo.Coordinate, error) {
	lonStr, latStr, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("%q is not lon,lat", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("latitude: %w", err)
	}

	c := geo.Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		return geo.Coordinate{}, err
	}
	return c, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
