// Package main provides the entrypoint for the RideFinder API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridefinder/ridefinder/internal/api"
	"github.com/ridefinder/ridefinder/internal/api/handler"
	"github.com/ridefinder/ridefinder/internal/api/middleware"
	"github.com/ridefinder/ridefinder/internal/auth"
	"github.com/ridefinder/ridefinder/internal/config"
	"github.com/ridefinder/ridefinder/internal/database"
	"github.com/ridefinder/ridefinder/internal/graph"
	"github.com/ridefinder/ridefinder/internal/mapdata"
	"github.com/ridefinder/ridefinder/internal/routing"
	"github.com/ridefinder/ridefinder/internal/telemetry"
	"github.com/ridefinder/ridefinder/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "ridefinder-api"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, _ := zerolog.ParseLevel(cfg.LogLevel) // checked by config.Validate
	log = log.Level(level)

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Str("map_source", cfg.Map.Source).
		Msg("starting RideFinder API")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Float64("sample_ratio", cfg.Telemetry.SampleRatio).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	source, subsystems, closeSource, err := newSource(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize map data source")
	}
	defer closeSource()

	graphs := graph.NewCache(graph.CacheConfig{
		Source:        source,
		Logger:        log,
		CheckInterval: cfg.Map.CheckInterval,
		BuildTimeout:  cfg.Map.BuildTimeout,
		CellSizeDeg:   cfg.Map.CellSizeDeg,
	})

	routes := routing.NewService(routing.ServiceConfig{
		Graphs:         graphs,
		Logger:         log,
		SearchRadiusKm: cfg.Routing.SearchRadiusKm,
		DefaultK:       cfg.Routing.DefaultK,
		MaxK:           cfg.Routing.MaxK,
		ComputeTimeout: cfg.Routing.ComputeTimeout,
		CacheSize:      cfg.Routing.CacheSize,
	})

	jobs := &worker.Jobs{Graphs: graphs, Logger: log}
	if len(cfg.Warmup.Pairs) > 0 {
		jobs.Warmup = worker.NewWarmupJob(worker.WarmupJobConfig{
			Config: worker.WarmupConfigFrom(cfg.Warmup),
			Routes: routes,
			Logger: log,
		})
	}

	// Load the first graph in the background; /v1/ops/ready reports 503 until it is in.
	go func() {
		if _, err := graphs.Snapshot(ctx); err != nil {
			log.Error().Err(err).Msg("initial graph load failed")
			return
		}
		if err := jobs.Run(ctx, worker.JobMessage{JobType: worker.JobGraphWarmup}); err != nil {
			log.Warn().Err(err).Msg("initial warm-up incomplete")
		}
	}()

	if cfg.Map.Watch {
		go func() {
			if err := mapdata.Watch(ctx, cfg.Map.Path, log, graphs.Invalidate); err != nil {
				log.Error().Err(err).Msg("map data watcher stopped")
			}
		}()
	}

	if cfg.PubSub.Enabled() {
		subscriber, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Jobs:             jobs,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize pubsub handler")
		}
		defer subscriber.Close()

		go func() {
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	// Tokens stays a nil interface when no key is configured so admin routes are not mounted.
	var tokens middleware.TokenValidator
	if cfg.Auth.SigningKey != "" {
		tokenService, err := auth.NewTokenService(auth.TokenConfig{
			SigningKey: cfg.Auth.SigningKey,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			TTL:        cfg.Auth.TokenTTL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize token service")
		}
		tokens = tokenService
	} else {
		log.Warn().Msg("JWT_SIGNING_KEY not set - admin endpoints disabled, routes are anonymous")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		Routing:     routes,
		Graphs:      graphs,
		Tokens:      tokens,
		RequireAuth: cfg.Auth.RequireAuth,
		RequireTLS:  cfg.RequireTLS,
		Subsystems:  subsystems,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Routing.ComputeTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// newSource builds the configured map data source together with its status checks
// and a cleanup function.
func newSource(ctx context.Context, cfg *config.Config, log zerolog.Logger) (mapdata.Source, []handler.SubsystemCheck, func(), error) {
	noop := func() {}

	switch cfg.Map.Source {
	case config.SourceHTTP:
		src := mapdata.NewHTTPSource(mapdata.HTTPSourceConfig{
			URL:     cfg.Map.URL,
			Timeout: cfg.Map.HTTPTimeout,
			Logger:  log,
		})
		return src, []handler.SubsystemCheck{handler.CircuitCheck("map-data", src)}, noop, nil

	case config.SourcePostgres:
		dbConfig := database.ConfigFromEnv()
		pool, err := database.ConnectRetry(ctx, dbConfig, log)
		if err != nil {
			return nil, nil, noop, err
		}
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")
		checks := []handler.SubsystemCheck{handler.PingCheck("postgres", 2*time.Second, pool)}
		return mapdata.NewPostgresSource(pool), checks, pool.Close, nil

	default:
		return mapdata.NewFileSource(cfg.Map.Path), nil, noop, nil
	}
}
