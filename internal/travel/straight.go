package travel

import (
	"context"
	"math"

	"github.com/gopti/gopti/internal/geo"
	"github.com/gopti/gopti/pkg/polyline"
)

// StraightLineName identifies the great-circle baseline provider.
const StraightLineName = "straight_line"

// minSpeed guards against division by a zero or negative walking speed.
const minSpeed = 0.05

// StraightLine estimates walking time from great-circle distance. It never fails.
type StraightLine struct{}

// Name returns the provider name.
func (StraightLine) Name() string { return StraightLineName }

// Cost returns the haversine distance divided by the walking speed.
func (StraightLine) Cost(_ context.Context, q Query) (Cost, error) {
	dist := geo.Haversine(q.Origin, q.Destination)
	return Cost{
		Seconds:        StraightLineSeconds(dist, q.WalkingSpeed),
		DistanceMeters: dist,
		Attribution:    straightAttribution(),
	}, nil
}

// Geometry returns a two-point path between origin and destination.
func (StraightLine) Geometry(_ context.Context, q Query) (Geometry, error) {
	dist := geo.Haversine(q.Origin, q.Destination)
	return Geometry{
		Polyline: polyline.Encode([]polyline.Coordinate{
			{Lat: q.Origin.Lat, Lng: q.Origin.Lng},
			{Lat: q.Destination.Lat, Lng: q.Destination.Lng},
		}),
		Seconds:        StraightLineSeconds(dist, q.WalkingSpeed),
		DistanceMeters: dist,
		Attribution:    straightAttribution(),
	}, nil
}

// StraightLineSeconds converts a distance to whole walking seconds, truncating.
func StraightLineSeconds(distanceMeters, speed float64) int {
	return int(distanceMeters / math.Max(speed, minSpeed))
}

func straightAttribution() Attribution {
	return Attribution{Provider: StraightLineName, Mode: ModeWalking}
}
