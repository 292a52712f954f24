// Package bootstrap builds the stores, catalog and travel providers shared by
// the api and worker binaries from a loaded configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gopti/gopti/internal/cache"
	"github.com/gopti/gopti/internal/catalog"
	"github.com/gopti/gopti/internal/config"
	"github.com/gopti/gopti/internal/provider/resilience"
	"github.com/gopti/gopti/internal/travel"
	"github.com/gopti/gopti/internal/travel/mapbox"
	"github.com/gopti/gopti/internal/travel/openrouteservice"
)

// ErrDatabaseRequired is returned when a component needs DATABASE_URL.
var ErrDatabaseRequired = errors.New("a database connection is required")

// Store is an opened cache backend. Pinger is non-nil when the backend can be
// health-checked separately from the database.
type Store struct {
	cache.Store
	Pinger interface {
		Ping(ctx context.Context) error
	}
	close func() error
}

// Cache returns the backend as an interface value, nil when s is nil.
func (s *Store) Cache() cache.Store {
	if s == nil {
		return nil
	}
	return s.Store
}

// Close releases the backend connection, if any.
func (s *Store) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStore opens the configured cache backend. It returns nil for the
// "none" backend.
func OpenStore(ctx context.Context, cfg config.CacheConfig, pool *pgxpool.Pool) (*Store, error) {
	switch cfg.Backend {
	case config.CacheNone:
		return nil, nil
	case config.CacheMemory, "":
		return &Store{Store: cache.NewMemoryStore()}, nil
	case config.CachePostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres cache: %w", ErrDatabaseRequired)
		}
		pg := cache.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres cache: %w", err)
		}
		return &Store{Store: pg}, nil
	case config.CacheRedis:
		rs, err := cache.NewRedisStoreFromURL(cfg.RedisURL, cache.DefaultRedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return &Store{Store: rs, Pinger: rs, close: rs.Close}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// OpenCatalog prefers the database, then a fixture file, then an empty
// in-memory catalog.
func OpenCatalog(cfg config.CatalogConfig, pool *pgxpool.Pool, logger zerolog.Logger) (catalog.Repository, error) {
	switch {
	case pool != nil:
		logger.Info().Msg("catalog backed by postgres")
		return catalog.NewPostgresRepository(pool), nil
	case cfg.Fixture != "":
		repo, err := catalog.LoadFixtureFile(cfg.Fixture)
		if err != nil {
			return nil, fmt.Errorf("loading catalog fixture: %w", err)
		}
		logger.Info().Str("fixture", cfg.Fixture).Msg("catalog loaded from fixture")
		return repo, nil
	default:
		logger.Warn().Msg("no database or fixture configured, catalog is empty")
		return catalog.NewInMemoryRepository(), nil
	}
}

// Providers are the undecorated travel providers selected by configuration.
type Providers struct {
	Cost     travel.CostProvider
	Geometry travel.GeometryProvider
}

// TravelProviders builds the matrix and directions providers. A provider whose
// credentials are missing degrades to the straight-line baseline.
func TravelProviders(cfg config.ProvidersConfig, registry *resilience.Registry, logger zerolog.Logger) Providers {
	var mb *mapbox.Client
	var ors *openrouteservice.Client

	pick := func(name string) interface {
		travel.CostProvider
		travel.GeometryProvider
	} {
		switch name {
		case config.ProviderMapbox:
			if cfg.MapboxToken == "" {
				logger.Warn().Str("provider", name).Msg("MAPBOX_ACCESS_TOKEN is not set, using straight-line estimates")
				return travel.StraightLine{}
			}
			if mb == nil {
				mb = mapbox.NewClient(mapbox.ClientConfig{
					AccessToken:       cfg.MapboxToken,
					BaseURL:           cfg.MapboxBaseURL,
					MatrixTimeout:     cfg.MatrixTimeout,
					DirectionsTimeout: cfg.DirectionsTimeout,
					RatePerSecond:     cfg.RatePerSecond,
					Registry:          registry,
					Logger:            logger,
				})
			}
			return mb
		case config.ProviderOpenRouteService:
			if cfg.ORSAPIKey == "" {
				logger.Warn().Str("provider", name).Msg("ORS_API_KEY is not set, using straight-line estimates")
				return travel.StraightLine{}
			}
			if ors == nil {
				ors = openrouteservice.NewClient(openrouteservice.ClientConfig{
					APIKey:            cfg.ORSAPIKey,
					BaseURL:           cfg.ORSBaseURL,
					MatrixTimeout:     cfg.MatrixTimeout,
					DirectionsTimeout: cfg.DirectionsTimeout,
					RatePerSecond:     cfg.RatePerSecond,
					Registry:          registry,
					Logger:            logger,
				})
			}
			return ors
		default:
			return travel.StraightLine{}
		}
	}

	return Providers{
		Cost:     pick(cfg.Matrix),
		Geometry: pick(cfg.Directions),
	}
}
