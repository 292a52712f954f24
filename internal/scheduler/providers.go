package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/gopti/gopti/internal/travel"
)

// resilientCost guarantees that cost lookups cannot fail.
func resilientCost(p travel.CostProvider, logger zerolog.Logger) travel.CostProvider {
	switch p.(type) {
	case nil:
		return travel.StraightLine{}
	case travel.StraightLine, *travel.FallbackCost:
		return p
	default:
		return travel.NewFallbackCost(p, travel.FallbackConfig{Logger: logger})
	}
}

// resilientGeometry guarantees that geometry lookups cannot fail.
func resilientGeometry(p travel.GeometryProvider, logger zerolog.Logger) travel.GeometryProvider {
	switch p.(type) {
	case nil:
		return travel.StraightLine{}
	case travel.StraightLine, *travel.FallbackGeometry:
		return p
	default:
		return travel.NewFallbackGeometry(p, travel.FallbackConfig{Logger: logger})
	}
}

// attachGeometry fills a stop's display path. A failed lookup leaves it empty.
func attachGeometry(ctx context.Context, p travel.GeometryProvider, logger zerolog.Logger, stop *Stop, q travel.Query) {
	geom, err := p.Geometry(ctx, q)
	if err != nil {
		logger.Warn().Err(err).Str("event_id", stop.EventID).Msg("geometry lookup failed")
		return
	}
	stop.Polyline = geom.Polyline
	attr := geom.Attribution
	stop.Source.Directions = &attr
}
