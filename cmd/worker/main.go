// Package main provides the entrypoint for the gopti background worker. It
// prewarms the travel cache and purges expired entries on Pub/Sub demand.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gopti/gopti/internal/api/response"
	"github.com/gopti/gopti/internal/bootstrap"
	"github.com/gopti/gopti/internal/config"
	"github.com/gopti/gopti/internal/database"
	"github.com/gopti/gopti/internal/logging"
	"github.com/gopti/gopti/internal/metrics"
	"github.com/gopti/gopti/internal/provider/resilience"
	"github.com/gopti/gopti/internal/telemetry"
	"github.com/gopti/gopti/internal/travel"
	"github.com/gopti/gopti/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "gopti-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
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

	log.Info().Str("build_time", BuildTime).Msg("starting gopti worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

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

	m := metrics.New()
	registry := resilience.NewRegistry()

	jobCfg := worker.DefaultJobConfig()
	if cfg.Worker.Concurrency > 0 {
		jobCfg.Concurrency = cfg.Worker.Concurrency
	}

	var prewarm *worker.PrewarmJob
	var purge *worker.PurgeJob
	if store != nil {
		base := bootstrap.TravelProviders(cfg.Providers, registry, log)
		if base.Cost.Name() != travel.StraightLineName {
			prewarm = worker.NewPrewarmJob(worker.PrewarmJobConfig{
				Venues: cat,
				Cost: travel.NewCachedCost(base.Cost, travel.CacheConfig{
					Store:    store.Cache(),
					TTL:      cfg.Cache.CostTTL,
					Observer: m,
					Logger:   log,
				}),
				Config:   jobCfg,
				Recorder: m,
				Logger:   log,
			})
		} else {
			log.Info().Msg("straight-line matrix provider, prewarm jobs are disabled")
		}
		purge = worker.NewPurgeJob(store, m, log)
	} else {
		log.Warn().Msg("travel cache is disabled, worker jobs are disabled")
	}
	dispatcher := worker.NewDispatcher(prewarm, purge, log)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           healthRouter(m),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	errCh := make(chan error, 1)
	if cfg.Worker.ProjectID != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Worker.ProjectID,
			SubscriptionName: cfg.Worker.Subscription,
			Dispatcher:       dispatcher,
			Logger:           log,
		})
		if err != nil {
			return fmt.Errorf("creating pubsub handler: %w", err)
		}
		defer func() { _ = handler.Close() }()

		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID is not set, not consuming job messages")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
	case err := <-errCh:
		runErr = fmt.Errorf("pubsub receive: %w", err)
	}

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
	return runErr
}

func healthRouter(m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{
			"status":  "healthy",
			"version": Version,
		})
	})
	r.Handle("/metrics", m.Handler())
	return r
}
