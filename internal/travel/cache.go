package travel

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Default time-to-live for cached values.
const (
	DefaultCostTTL     = 24 * time.Hour
	DefaultGeometryTTL = 7 * 24 * time.Hour
)

// Store is the cache storage contract: a miss is (nil, false, nil) and Set is a
// last-write-wins upsert.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CacheConfig configures a caching decorator.
type CacheConfig struct {
	// Store holds cached payloads (required).
	Store Store

	// Mode is part of the cache key (default: walking).
	Mode string

	// Bucket optionally partitions cost keys, for example by time of day.
	Bucket string

	// TTL for stored entries (default: 24h for cost, 7d for geometry).
	TTL time.Duration

	// Observer receives hit/miss events (optional).
	Observer Observer

	// Logger for cache operations.
	Logger zerolog.Logger
}

func (cfg CacheConfig) withDefaults(ttl time.Duration) CacheConfig {
	if cfg.Mode == "" {
		cfg.Mode = ModeWalking
	}
	if cfg.TTL <= 0 {
		cfg.TTL = ttl
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return cfg
}

// CachedCost is a cache-aside decorator around a CostProvider.
type CachedCost struct {
	inner CostProvider
	cfg   CacheConfig
}

// NewCachedCost wraps inner with cache-aside lookups.
func NewCachedCost(inner CostProvider, cfg CacheConfig) *CachedCost {
	return &CachedCost{inner: inner, cfg: cfg.withDefaults(DefaultCostTTL)}
}

// Name returns the wrapped provider's name.
func (c *CachedCost) Name() string { return c.inner.Name() }

// Cost returns a cached cost when present, otherwise computes and stores it.
func (c *CachedCost) Cost(ctx context.Context, q Query) (Cost, error) {
	key := CostKey(c.inner.Name(), c.cfg.Mode, q.Origin, q.Destination, c.cfg.Bucket)

	var cached Cost
	if lookup(ctx, c.cfg, key, &cached) {
		c.cfg.Observer.CacheLookup(KindCost, true)
		cached.Attribution.Cached = true
		return cached, nil
	}
	c.cfg.Observer.CacheLookup(KindCost, false)

	res, err := c.inner.Cost(ctx, q)
	if err != nil {
		return Cost{}, err
	}
	res.Attribution.Cached = false
	store(ctx, c.cfg, key, res)
	return res, nil
}

// CachedGeometry is a cache-aside decorator around a GeometryProvider.
type CachedGeometry struct {
	inner GeometryProvider
	cfg   CacheConfig
}

// NewCachedGeometry wraps inner with cache-aside lookups.
func NewCachedGeometry(inner GeometryProvider, cfg CacheConfig) *CachedGeometry {
	return &CachedGeometry{inner: inner, cfg: cfg.withDefaults(DefaultGeometryTTL)}
}

// Name returns the wrapped provider's name.
func (c *CachedGeometry) Name() string { return c.inner.Name() }

// Geometry returns a cached path when present, otherwise computes and stores it.
func (c *CachedGeometry) Geometry(ctx context.Context, q Query) (Geometry, error) {
	key := GeometryKey(c.inner.Name(), c.cfg.Mode, q.Origin, q.Destination)

	var cached Geometry
	if lookup(ctx, c.cfg, key, &cached) {
		c.cfg.Observer.CacheLookup(KindGeometry, true)
		cached.Attribution.Cached = true
		return cached, nil
	}
	c.cfg.Observer.CacheLookup(KindGeometry, false)

	res, err := c.inner.Geometry(ctx, q)
	if err != nil {
		return Geometry{}, err
	}
	res.Attribution.Cached = false
	store(ctx, c.cfg, key, res)
	return res, nil
}

// lookup reports whether key was found and decoded into dst. Store errors and
// undecodable payloads count as misses.
func lookup(ctx context.Context, cfg CacheConfig, key string, dst any) bool {
	raw, ok, err := cfg.Store.Get(ctx, key)
	if err != nil {
		cfg.Logger.Warn().Err(err).Str("cache_key", key).Msg("travel cache read failed")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		cfg.Logger.Warn().Err(err).Str("cache_key", key).Msg("discarding undecodable cache entry")
		return false
	}
	cfg.Logger.Debug().Str("cache_key", key).Msg("travel cache hit")
	return true
}

func store(ctx context.Context, cfg CacheConfig, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		cfg.Logger.Warn().Err(err).Str("cache_key", key).Msg("encoding cache entry")
		return
	}
	if err := cfg.Store.Set(ctx, key, raw, cfg.TTL); err != nil {
		cfg.Logger.Warn().Err(err).Str("cache_key", key).Msg("travel cache write failed")
	}
}
