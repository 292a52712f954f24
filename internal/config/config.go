// Package config loads process configuration.
//
// Values are resolved in three layers: built-in defaults, an optional YAML file
// named by GOPTI_CONFIG_FILE, then environment variables. A .env file in the
// working directory is loaded into the environment first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "GOPTI_CONFIG_FILE"

// Provider names accepted for MATRIX_PROVIDER and DIRECTIONS_PROVIDER.
const (
	ProviderStraight         = "straight"
	ProviderMapbox           = "mapbox"
	ProviderOpenRouteService = "openrouteservice"
)

// Cache backends accepted for CACHE_BACKEND.
const (
	CacheMemory   = "memory"
	CachePostgres = "postgres"
	CacheRedis    = "redis"
	CacheNone     = "none"
)

// Config is the full process configuration.
type Config struct {
	Env  string `yaml:"env"`
	Port string `yaml:"port"`

	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Providers ProvidersConfig `yaml:"providers"`
	Cache     CacheConfig     `yaml:"cache"`
	Solver    SolverConfig    `yaml:"solver"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DatabaseConfig configures the Postgres pool. An empty URL disables Postgres.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// CatalogConfig selects the event catalog. Postgres is used when a database is
// configured; otherwise the YAML fixture, if any, is loaded into memory.
type CatalogConfig struct {
	Fixture string `yaml:"fixture"`
}

// ProvidersConfig selects and configures the travel providers.
type ProvidersConfig struct {
	Matrix     string `yaml:"matrix"`
	Directions string `yaml:"directions"`

	MapboxToken   string `yaml:"mapbox_token"`
	MapboxBaseURL string `yaml:"mapbox_base_url"`
	ORSAPIKey     string `yaml:"ors_api_key"`
	ORSBaseURL    string `yaml:"ors_base_url"`

	MatrixTimeout     time.Duration `yaml:"matrix_timeout"`
	DirectionsTimeout time.Duration `yaml:"directions_timeout"`

	// RatePerSecond paces outbound provider requests. Zero disables pacing.
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// CacheConfig configures the travel cache.
type CacheConfig struct {
	Backend     string        `yaml:"backend"`
	RedisURL    string        `yaml:"redis_url"`
	CostTTL     time.Duration `yaml:"cost_ttl"`
	GeometryTTL time.Duration `yaml:"geometry_ttl"`
}

// SolverConfig configures the optimal scheduler and its routing backend.
type SolverConfig struct {
	URL                  string        `yaml:"url"`
	Disabled             bool          `yaml:"disabled"`
	TimeLimit            time.Duration `yaml:"time_limit"`
	SlackMaxSec          int64         `yaml:"slack_max_sec"`
	DropPenalty          int64         `yaml:"drop_penalty"`
	FallbackOnInfeasible bool          `yaml:"fallback_on_infeasible"`
	MatrixConcurrency    int           `yaml:"matrix_concurrency"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	// SolveRatePerMinute limits solve calls per client IP.
	SolveRatePerMinute int `yaml:"solve_rate_per_minute"`

	// DebugSolve is the default of the debug_solve_enabled flag.
	DebugSolve bool `yaml:"debug_solve"`

	// AdminJWTSecret enables the admin routes when set.
	AdminJWTSecret string `yaml:"admin_jwt_secret"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// WorkerConfig configures the cache maintenance worker.
type WorkerConfig struct {
	ProjectID    string `yaml:"project_id"`
	Subscription string `yaml:"subscription"`
	Concurrency  int    `yaml:"concurrency"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env:  "development",
		Port: "8080",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Providers: ProvidersConfig{
			Matrix:            ProviderStraight,
			Directions:        ProviderStraight,
			MatrixTimeout:     5 * time.Second,
			DirectionsTimeout: 8 * time.Second,
		},
		Cache: CacheConfig{
			Backend:     CacheMemory,
			CostTTL:     1440 * time.Minute,
			GeometryTTL: 10080 * time.Minute,
		},
		Solver: SolverConfig{
			TimeLimit:            2500 * time.Millisecond,
			SlackMaxSec:          900,
			FallbackOnInfeasible: true,
			MatrixConcurrency:    8,
		},
		API: APIConfig{
			SolveRatePerMinute: 60,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
		},
		Worker: WorkerConfig{
			Subscription: "gopti-cache-jobs",
			Concurrency:  4,
		},
	}
}

// Load reads .env, the optional YAML file and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path, ok := lookup(FileEnv); ok && path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}

	env := envReader{lookup: lookup}
	cfg.applyEnv(&env)
	if len(env.errs) > 0 {
		return Config{}, errors.Join(env.errs...)
	}

	// Debug solve defaults on in development unless set explicitly.
	if _, set := lookup("DEBUG_SOLVE_ENABLED"); !set && !cfg.API.DebugSolve {
		cfg.API.DebugSolve = cfg.IsDevelopment()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(env *envReader) {
	env.str("APP_ENV", &c.Env)
	env.str("APP_PORT", &c.Port)

	env.str("LOG_LEVEL", &c.Log.Level)
	env.str("LOG_FORMAT", &c.Log.Format)
	env.str("LOG_FILE", &c.Log.File)

	env.str("DATABASE_URL", &c.Database.URL)
	env.int32("DB_MAX_CONNS", &c.Database.MaxConns)

	env.str("CATALOG_FIXTURE", &c.Catalog.Fixture)

	env.str("MATRIX_PROVIDER", &c.Providers.Matrix)
	env.str("DIRECTIONS_PROVIDER", &c.Providers.Directions)
	env.str("MAPBOX_ACCESS_TOKEN", &c.Providers.MapboxToken)
	env.str("MAPBOX_BASE_URL", &c.Providers.MapboxBaseURL)
	env.str("ORS_API_KEY", &c.Providers.ORSAPIKey)
	env.str("ORS_BASE_URL", &c.Providers.ORSBaseURL)
	env.duration("MATRIX_TIMEOUT", &c.Providers.MatrixTimeout)
	env.duration("DIRECTIONS_TIMEOUT", &c.Providers.DirectionsTimeout)
	env.float("PROVIDER_RATE_PER_SEC", &c.Providers.RatePerSecond)

	env.str("CACHE_BACKEND", &c.Cache.Backend)
	env.str("REDIS_URL", &c.Cache.RedisURL)
	env.minutes("MATRIX_CACHE_TTL_MIN", &c.Cache.CostTTL)
	env.minutes("DIRECTIONS_CACHE_TTL_MIN", &c.Cache.GeometryTTL)

	env.str("SOLVER_URL", &c.Solver.URL)
	env.boolean("SOLVER_DISABLED", &c.Solver.Disabled)
	env.duration("SOLVER_TIME_LIMIT", &c.Solver.TimeLimit)
	env.int64("SOLVER_SLACK_SEC", &c.Solver.SlackMaxSec)
	env.int64("SOLVER_DROP_PENALTY", &c.Solver.DropPenalty)
	env.boolean("SOLVER_FALLBACK_ON_INFEASIBLE", &c.Solver.FallbackOnInfeasible)
	env.integer("SOLVER_MATRIX_CONCURRENCY", &c.Solver.MatrixConcurrency)

	env.integer("SOLVE_RATE_PER_MIN", &c.API.SolveRatePerMinute)
	env.boolean("DEBUG_SOLVE_ENABLED", &c.API.DebugSolve)
	env.str("ADMIN_JWT_SECRET", &c.API.AdminJWTSecret)

	env.boolean("OTEL_ENABLED", &c.Telemetry.Enabled)
	env.str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)

	env.str("PUBSUB_PROJECT_ID", &c.Worker.ProjectID)
	env.str("PUBSUB_SUBSCRIPTION", &c.Worker.Subscription)
	env.integer("WORKER_CONCURRENCY", &c.Worker.Concurrency)
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error

	for name, p := range map[string]string{"matrix": c.Providers.Matrix, "directions": c.Providers.Directions} {
		switch p {
		case ProviderStraight, ProviderMapbox, ProviderOpenRouteService:
		default:
			errs = append(errs, fmt.Errorf("unknown %s provider %q", name, p))
		}
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CachePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("cache backend postgres requires DATABASE_URL"))
		}
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("cache backend redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}

	if c.Cache.CostTTL <= 0 || c.Cache.GeometryTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	if c.Solver.SlackMaxSec < 0 {
		errs = append(errs, errors.New("solver slack must not be negative"))
	}
	if c.Solver.DropPenalty < 0 {
		errs = append(errs, errors.New("solver drop penalty must not be negative"))
	}
	if c.API.SolveRatePerMinute < 0 {
		errs = append(errs, errors.New("solve rate limit must not be negative"))
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether the process runs in the development environment.
func (c Config) IsDevelopment() bool {
	return c.Env == "" || strings.EqualFold(c.Env, "development")
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *envReader) fail(key, value string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	if v, ok := r.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (r *envReader) integer(key string, dst *int) {
	if v, ok := r.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) int32(key string, dst *int32) {
	if v, ok := r.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = int32(n)
	}
}

func (r *envReader) int64(key string, dst *int64) {
	if v, ok := r.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) float(key string, dst *float64) {
	if v, ok := r.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = f
	}
}

// duration accepts Go durations ("2.5s") and bare seconds ("2.5").
func (r *envReader) duration(key string, dst *time.Duration) {
	if v, ok := r.get(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
			return
		}
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.fail(key, v, errors.New("not a duration"))
			return
		}
		*dst = time.Duration(secs * float64(time.Second))
	}
}

func (r *envReader) minutes(key string, dst *time.Duration) {
	if v, ok := r.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = time.Duration(n) * time.Minute
	}
}
