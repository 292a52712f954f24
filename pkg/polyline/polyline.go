// Package polyline provides encoding and decoding utilities for Google's polyline algorithm.
// The polyline algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"
)

// DefaultPrecision is the number of decimal places used by Google, OpenRouteService
// and the map clients that render itineraries.
const DefaultPrecision = 5

// ErrTruncated is returned when an encoded string ends in the middle of a value.
var ErrTruncated = errors.New("polyline: truncated input")

// Coordinate represents a geographic point with latitude and longitude.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Encode encodes a slice of coordinates at precision 5.
func Encode(coords []Coordinate) string {
	return EncodeWithPrecision(coords, DefaultPrecision)
}

// EncodeWithPrecision encodes coordinates using the given number of decimal places.
// Each coordinate is scaled, rounded to an integer and emitted as a delta from the
// previous point.
func EncodeWithPrecision(coords []Coordinate, precision int) string {
	if len(coords) == 0 {
		return ""
	}

	factor := math.Pow10(precision)
	encoded := make([]byte, 0, len(coords)*8)
	prevLat := 0
	prevLng := 0

	for _, coord := range coords {
		lat := int(math.Round(coord.Lat * factor))
		lng := int(math.Round(coord.Lng * factor))

		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lng-prevLng)

		prevLat = lat
		prevLng = lng
	}

	return string(encoded)
}

// encodeValue zig-zag encodes a single delta and appends it in 5-bit groups offset by 63.
func encodeValue(buf []byte, value int) []byte {
	value <<= 1
	if value < 0 {
		value = ^value
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}

// Decode decodes a precision 5 polyline.
func Decode(encoded string) ([]Coordinate, error) {
	return DecodeWithPrecision(encoded, DefaultPrecision)
}

// DecodeWithPrecision decodes a polyline that was encoded with the given number of
// decimal places (Mapbox "polyline6" uses 6).
func DecodeWithPrecision(encoded string, precision int) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	factor := math.Pow10(precision)
	var coords []Coordinate
	index := 0
	lat := 0
	lng := 0

	for index < len(encoded) {
		latDelta, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		lngDelta, next, err := decodeValue(encoded, next)
		if err != nil {
			return nil, err
		}
		index = next
		lat += latDelta
		lng += lngDelta

		coords = append(coords, Coordinate{
			Lat: float64(lat) / factor,
			Lng: float64(lng) / factor,
		})
	}

	return coords, nil
}

// decodeValue decodes a single value starting at index and returns it with the
// index of the next value.
func decodeValue(encoded string, index int) (int, int, error) {
	shift := 0
	result := 0

	for {
		if index >= len(encoded) {
			return 0, index, ErrTruncated
		}
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Reencode converts a polyline from one precision to another.
func Reencode(encoded string, from, to int) (string, error) {
	if from == to {
		return encoded, nil
	}
	coords, err := DecodeWithPrecision(encoded, from)
	if err != nil {
		return "", err
	}
	return EncodeWithPrecision(coords, to), nil
}
