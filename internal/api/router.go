// Package api provides the HTTP API for gopti.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/gopti/gopti/internal/api/handler"
	"github.com/gopti/gopti/internal/api/middleware"
	"github.com/gopti/gopti/internal/featureflags"
)

// RouterConfig holds configuration for the router. Only Solver and Catalog
// are required.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string

	// HTTPMetrics records OpenTelemetry request metrics when set.
	HTTPMetrics *middleware.HTTPMetrics

	// MetricsHandler is served at /metrics when set.
	MetricsHandler http.Handler

	Solver     handler.Solver
	Capability handler.CapabilityReporter
	Catalog    handler.SessionLister
	Flags      *featureflags.Service

	// Authorizer guards the admin routes. They are not mounted without it.
	Authorizer middleware.TokenAuthorizer

	Database  handler.Pinger
	Cache     handler.Pinger
	Providers handler.ProviderHealthSource

	// SolveRatePerMinute limits solve calls per client IP. Zero uses the
	// default.
	SolveRatePerMinute int
	RequireTLS         bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "gopti-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	// Interfaces stay nil unless the service is configured.
	var (
		gate  handler.DebugGate
		flags handler.FlagLister
	)
	if cfg.Flags != nil {
		gate = cfg.Flags
		flags = cfg.Flags
	}

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Database:  cfg.Database,
		Cache:     cfg.Cache,
		Solver:    cfg.Capability,
		Providers: cfg.Providers,
		Flags:     flags,
	})
	solveHandler := handler.NewSolveHandler(cfg.Solver, gate)
	eventsHandler := handler.NewEventsHandler(cfg.Catalog)

	solveLimit := middleware.SolveRateLimit
	if cfg.SolveRatePerMinute > 0 {
		solveLimit = middleware.PerMinute(cfg.SolveRatePerMinute)
	}
	solveRateLimit := middleware.RateLimitByIP(solveLimit)
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.With(standardRateLimit).Get("/events", eventsHandler.ListEvents)

		r.Group(func(r chi.Router) {
			r.Use(solveRateLimit)
			r.Use(middleware.RequireJSON)
			r.Post("/solve", solveHandler.Solve)
			r.Post("/debug/solve", solveHandler.DebugSolve)
		})

		if cfg.Authorizer != nil && cfg.Flags != nil {
			featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.Flags)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.AdminAuth(cfg.Authorizer))
				r.Use(middleware.RateLimitBySubject(middleware.AdminRateLimit))
				r.Use(middleware.RequireJSON)

				r.Route("/feature-flags", func(r chi.Router) {
					r.Get("/", featureFlagsHandler.ListFeatureFlags)
					r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
					r.Put("/{key}", featureFlagsHandler.UpdateFeatureFlag)
					r.Delete("/{key}", featureFlagsHandler.ResetFeatureFlag)
				})
			})
		}
	})

	return r
}
