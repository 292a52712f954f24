// Package geo holds the coordinate type shared by the scheduling engine and its
// travel providers.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// ErrInvalidCoordinate indicates a latitude or longitude outside its valid range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that the coordinate is within [-90, 90] x [-180, 180].
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidCoordinate, c.Lat)
	}
	if math.IsNaN(c.Lng) || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

// Round returns the coordinate rounded to the given number of decimal places.
func (c Coordinate) Round(places int) Coordinate {
	factor := math.Pow10(places)
	return Coordinate{
		Lat: math.Round(c.Lat*factor) / factor,
		Lng: math.Round(c.Lng*factor) / factor,
	}
}

// Key formats the coordinate rounded to places as "lat,lng" with no trailing zeros.
func (c Coordinate) Key(places int) string {
	r := c.Round(places)
	return strconv.FormatFloat(r.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(r.Lng, 'f', -1, 64)
}

// String implements fmt.Stringer.
func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Lat, c.Lng)
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLng := math.Sin(dLng / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLng*sinDLng
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}
