// Package api provides the HTTP API for RideFinder.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ridefinder/ridefinder/internal/api/handler"
	"github.com/ridefinder/ridefinder/internal/api/middleware"
	"github.com/ridefinder/ridefinder/internal/api/models"
	"github.com/ridefinder/ridefinder/internal/api/response"
	"github.com/ridefinder/ridefinder/internal/auth"
	"github.com/ridefinder/ridefinder/internal/graph"
	"github.com/ridefinder/ridefinder/internal/routing"
)

// maxBodyBytes caps request bodies; route requests are a few hundred bytes.
const maxBodyBytes = 64 << 10

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Routing *routing.Service
	Graphs  *graph.Cache

	// Tokens validates bearer tokens. When nil, admin endpoints are not mounted
	// and route computation is anonymous.
	Tokens middleware.TokenValidator

	// RequireAuth makes POST /v1/routes require a valid token.
	RequireAuth bool

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool

	// Subsystems are extra dependency checks reported by /v1/ops/status.
	Subsystems []handler.SubsystemCheck

	// RateLimits override the defaults; a zero RequestLimit disables a limiter.
	RouteRateLimit    *middleware.RateLimitConfig
	StandardRateLimit *middleware.RateLimitConfig
	AdminRateLimit    *middleware.RateLimitConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "ridefinder-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.LimitBody(maxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, models.NewMethodNotAllowed(middleware.GetRequestID(r.Context()), r.Method+" is not allowed here"))
	})

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:    cfg.Version,
		BuildTime:  cfg.BuildTime,
		Graphs:     cfg.Graphs,
		Routes:     cfg.Routing,
		Subsystems: cfg.Subsystems,
	})
	routeHandler := handler.NewRouteHandler(cfg.Routing, cfg.Logger)
	adminHandler := handler.NewAdminHandler(cfg.Graphs, cfg.Logger)

	routeRateLimit := middleware.RateLimitBySubject(pick(cfg.RouteRateLimit, middleware.ExpensiveRateLimit))
	standardRateLimit := middleware.RateLimitByIP(pick(cfg.StandardRateLimit, middleware.StandardRateLimit))
	adminRateLimit := middleware.RateLimitBySubject(pick(cfg.AdminRateLimit, middleware.AdminRateLimit))

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Routes endpoint - expensive compute, strict rate limiting
		r.Group(func(r chi.Router) {
			switch {
			case cfg.Tokens != nil && cfg.RequireAuth:
				r.Use(middleware.Auth(cfg.Tokens))
			case cfg.Tokens != nil:
				r.Use(middleware.OptionalAuth(cfg.Tokens))
			}
			r.Use(routeRateLimit)
			r.Use(middleware.RequireJSON)
			r.Post("/routes", routeHandler.ComputeRoutes)
		})

		// Admin endpoints (admin token) - for internal operations
		if cfg.Tokens != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.Auth(cfg.Tokens))
				r.Use(middleware.RequireRole(auth.RoleAdmin))
				r.Use(adminRateLimit)
				r.Post("/graph/reload", adminHandler.ReloadGraph)
			})
		}
	})

	return r
}

func pick(override *middleware.RateLimitConfig, def middleware.RateLimitConfig) middleware.RateLimitConfig {
	if override != nil {
		return *override
	}
	return def
}
