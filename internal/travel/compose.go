package travel

import (
	"time"

	"github.com/rs/zerolog"
)

// StackConfig describes how a base provider is decorated.
type StackConfig struct {
	// Store enables cache-aside lookups when non-nil.
	Store Store

	Bucket      string
	CostTTL     time.Duration
	GeometryTTL time.Duration

	Observer Observer
	Logger   zerolog.Logger
}

// ComposeCost wraps base as Fallback(Cache(base)). The straight-line baseline
// cannot fail and is cheaper to compute than to look up, so it is returned as is.
func ComposeCost(base CostProvider, cfg StackConfig) CostProvider {
	if _, ok := base.(StraightLine); ok {
		return base
	}
	p := base
	if cfg.Store != nil {
		p = NewCachedCost(p, CacheConfig{
			Store:    cfg.Store,
			Bucket:   cfg.Bucket,
			TTL:      cfg.CostTTL,
			Observer: cfg.Observer,
			Logger:   cfg.Logger,
		})
	}
	return NewFallbackCost(p, FallbackConfig{Observer: cfg.Observer, Logger: cfg.Logger})
}

// ComposeGeometry wraps base as Fallback(Cache(base)). The straight-line
// baseline is still cached but needs no fallback.
func ComposeGeometry(base GeometryProvider, cfg StackConfig) GeometryProvider {
	p := base
	if cfg.Store != nil {
		p = NewCachedGeometry(p, CacheConfig{
			Store:    cfg.Store,
			TTL:      cfg.GeometryTTL,
			Observer: cfg.Observer,
			Logger:   cfg.Logger,
		})
	}
	if _, ok := base.(StraightLine); ok {
		return p
	}
	return NewFallbackGeometry(p, FallbackConfig{Observer: cfg.Observer, Logger: cfg.Logger})
}
