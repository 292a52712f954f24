// Package main provides the entrypoint for the gopti API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gopti/gopti/internal/api"
	"github.com/gopti/gopti/internal/api/middleware"
	"github.com/gopti/gopti/internal/auth"
	"github.com/gopti/gopti/internal/bootstrap"
	"github.com/gopti/gopti/internal/config"
	"github.com/gopti/gopti/internal/database"
	"github.com/gopti/gopti/internal/featureflags"
	"github.com/gopti/gopti/internal/logging"
	"github.com/gopti/gopti/internal/metrics"
	"github.com/gopti/gopti/internal/provider/resilience"
	"github.com/gopti/gopti/internal/scheduler"
	"github.com/gopti/gopti/internal/solver"
	"github.com/gopti/gopti/internal/telemetry"
	"github.com/gopti/gopti/internal/travel"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	serviceName  = "gopti-api"
	jwtIssuer    = "gopti"
	jwtAudience  = "gopti-admin"
	drainTimeout = 30 * time.Second
)

func main() {
	issueToken := flag.String("issue-admin-token", "", "print an admin token for `operator` and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		if err := printAdminToken(cfg, *issueToken); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printAdminToken(cfg config.Config, operator string) error {
	jwtService, err := newJWTService(cfg)
	if err != nil {
		return err
	}
	if jwtService == nil {
		return errors.New("ADMIN_JWT_SECRET is not set")
	}
	token, expiresAt, err := jwtService.IssueToken(operator, auth.RoleAdmin)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}

func newJWTService(cfg config.Config) (*auth.JWTService, error) {
	if cfg.API.AdminJWTSecret == "" {
		return nil, nil
	}
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.API.AdminJWTSecret,
		Issuer:     jwtIssuer,
		Audience:   jwtAudience,
	})
}

func run(cfg config.Config) error {
	log, closeLog, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Service:    serviceName,
		Version:    Version,
	})
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer func() { _ = closeLog() }()

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting gopti API")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.Telemetry.Enabled {
		log.Info().Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = database.Connect(ctx, database.Config{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			Logger:   log,
		})
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
	}

	cat, err := bootstrap.OpenCatalog(cfg.Catalog, pool, log)
	if err != nil {
		return err
	}

	store, err := bootstrap.OpenStore(ctx, cfg.Cache, pool)
	if err != nil {
		return fmt.Errorf("opening travel cache: %w", err)
	}
	defer func() { _ = store.Close() }()
	log.Info().Str("backend", cfg.Cache.Backend).Msg("travel cache ready")

	m := metrics.New()
	registry := resilience.NewRegistry()

	base := bootstrap.TravelProviders(cfg.Providers, registry, log)
	stack := travel.StackConfig{
		Store:       store.Cache(),
		CostTTL:     cfg.Cache.CostTTL,
		GeometryTTL: cfg.Cache.GeometryTTL,
		Observer:    m,
		Logger:      log,
	}
	cost := travel.ComposeCost(base.Cost, stack)
	geometry := travel.ComposeGeometry(base.Geometry, stack)
	log.Info().
		Str("matrix", base.Cost.Name()).
		Str("directions", base.Geometry.Name()).
		Msg("travel providers configured")

	capability := solver.Resolve(ctx, solver.ResolveConfig{
		URL:      cfg.Solver.URL,
		Disabled: cfg.Solver.Disabled,
		Registry: registry,
		Logger:   log,
	})
	if capability.Available() {
		log.Info().Str("solver", capability.Name()).Msg("optimal scheduler available")
	} else {
		log.Warn().Str("reason", capability.Reason()).Msg("optimal scheduler unavailable, solves use the greedy scheduler")
	}

	ffConfig := featureflags.ServiceConfig{
		Logger:       log,
		CacheTTL:     1 * time.Minute,
		DefaultFlags: featureflags.DefaultFlags(cfg.API.DebugSolve),
	}
	if pool != nil {
		ffRepo := featureflags.NewPostgresRepository(pool)
		if err := ffRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		ffConfig.Repository = ffRepo
	}
	flags := featureflags.NewService(ffConfig)

	sched := scheduler.NewService(scheduler.ServiceConfig{
		Candidates:                cat,
		Capability:                capability,
		Cost:                      cost,
		Geometry:                  geometry,
		Flags:                     flags,
		Recorder:                  m,
		TimeLimit:                 cfg.Solver.TimeLimit,
		SlackMaxSec:               int(cfg.Solver.SlackMaxSec),
		DropPenalty:               cfg.Solver.DropPenalty,
		MatrixConcurrency:         cfg.Solver.MatrixConcurrency,
		DisableInfeasibleFallback: !cfg.Solver.FallbackOnInfeasible,
		Logger:                    log,
	})

	httpMetrics, err := middleware.NewHTTPMetrics()
	if err != nil {
		return fmt.Errorf("initializing http metrics: %w", err)
	}

	routerCfg := api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		HTTPMetrics:        httpMetrics,
		MetricsHandler:     m.Handler(),
		Solver:             sched,
		Capability:         sched,
		Catalog:            cat,
		Flags:              flags,
		Providers:          registry,
		SolveRatePerMinute: cfg.API.SolveRatePerMinute,
		RequireTLS:         !cfg.IsDevelopment(),
	}
	if pool != nil {
		routerCfg.Database = pool
	}
	if store != nil && store.Pinger != nil {
		routerCfg.Cache = store.Pinger
	}

	jwtService, err := newJWTService(cfg)
	if err != nil {
		return fmt.Errorf("initializing admin tokens: %w", err)
	}
	if jwtService != nil {
		routerCfg.Authorizer = jwtService
		log.Info().Msg("admin endpoints enabled")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      solveWriteTimeout(cfg),
		IdleTimeout:       60 * time.Second,
	}

	return serve(server, log)
}

// solveWriteTimeout leaves room for the solver time limit on top of matrix
// lookups.
func solveWriteTimeout(cfg config.Config) time.Duration {
	const floor = 15 * time.Second
	if t := cfg.Solver.TimeLimit + 10*time.Second; t > floor {
		return t
	}
	return floor
}

func serve(server *http.Server, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
