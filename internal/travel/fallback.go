package travel

import (
	"context"

	"github.com/rs/zerolog"
)

// FallbackConfig configures a degrade-on-failure decorator.
type FallbackConfig struct {
	// Observer receives fallback events (optional).
	Observer Observer

	// Logger for provider failures.
	Logger zerolog.Logger
}

// FallbackCost substitutes the straight-line baseline when the wrapped provider
// fails. It never returns an error.
type FallbackCost struct {
	inner    CostProvider
	baseline StraightLine
	observer Observer
	logger   zerolog.Logger
}

// NewFallbackCost wraps inner so that failures degrade to straight-line estimates.
func NewFallbackCost(inner CostProvider, cfg FallbackConfig) *FallbackCost {
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &FallbackCost{inner: inner, observer: obs, logger: cfg.Logger}
}

// Name returns the wrapped provider's name.
func (f *FallbackCost) Name() string { return f.inner.Name() }

// Cost delegates to the wrapped provider and degrades on error.
func (f *FallbackCost) Cost(ctx context.Context, q Query) (Cost, error) {
	res, err := f.inner.Cost(ctx, q)
	if err == nil {
		return res, nil
	}

	f.logger.Warn().Err(err).
		Str("provider", f.inner.Name()).
		Str("origin", q.Origin.String()).
		Str("destination", q.Destination.String()).
		Msg("cost provider failed, falling back to straight line")
	f.observer.ProviderFallback(KindCost, f.inner.Name())

	res, _ = f.baseline.Cost(ctx, q)
	res.Attribution.Fallback = true
	return res, nil
}

// FallbackGeometry substitutes a straight two-point path when the wrapped
// provider fails. It never returns an error.
type FallbackGeometry struct {
	inner    GeometryProvider
	baseline StraightLine
	observer Observer
	logger   zerolog.Logger
}

// NewFallbackGeometry wraps inner so that failures degrade to straight paths.
func NewFallbackGeometry(inner GeometryProvider, cfg FallbackConfig) *FallbackGeometry {
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &FallbackGeometry{inner: inner, observer: obs, logger: cfg.Logger}
}

// Name returns the wrapped provider's name.
func (f *FallbackGeometry) Name() string { return f.inner.Name() }

// Geometry delegates to the wrapped provider and degrades on error.
func (f *FallbackGeometry) Geometry(ctx context.Context, q Query) (Geometry, error) {
	res, err := f.inner.Geometry(ctx, q)
	if err == nil {
		return res, nil
	}

	f.logger.Warn().Err(err).
		Str("provider", f.inner.Name()).
		Str("origin", q.Origin.String()).
		Str("destination", q.Destination.String()).
		Msg("geometry provider failed, falling back to straight line")
	f.observer.ProviderFallback(KindGeometry, f.inner.Name())

	res, _ = f.baseline.Geometry(ctx, q)
	res.Attribution.Fallback = true
	return res, nil
}
