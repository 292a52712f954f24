package travel

import (
	"strings"

	"github.com/gopti/gopti/internal/geo"
)

// Decimal places used when normalizing cache keys.
const (
	CostKeyPrecision     = 4
	GeometryKeyPrecision = 5
)

// CostKey builds the cache key for a cost lookup:
// provider:mode:lat,lng->lat,lng[:bucket].
func CostKey(provider, mode string, origin, dest geo.Coordinate, bucket string) string {
	return buildKey(provider, mode, origin, dest, CostKeyPrecision, bucket)
}

// GeometryKey builds the cache key for a geometry lookup.
func GeometryKey(provider, mode string, origin, dest geo.Coordinate) string {
	return buildKey(provider, mode, origin, dest, GeometryKeyPrecision, "")
}

func buildKey(provider, mode string, origin, dest geo.Coordinate, places int, bucket string) string {
	var b strings.Builder
	b.WriteString(provider)
	b.WriteByte(':')
	b.WriteString(mode)
	b.WriteByte(':')
	b.WriteString(origin.Key(places))
	b.WriteString("->")
	b.WriteString(dest.Key(places))
	if bucket != "" {
		b.WriteByte(':')
		b.WriteString(bucket)
	}
	return b.String()
}
