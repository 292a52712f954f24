// Package travel computes walking costs and display geometry between two
// coordinates, with cache-aside and degrade-on-failure decorators.
package travel

import (
	"context"
	"errors"
	"time"

	"github.com/gopti/gopti/internal/geo"
)

// Sentinel errors for provider operations.
var (
	// ErrProviderUnavailable indicates the provider is down or its circuit breaker is open.
	ErrProviderUnavailable = errors.New("travel provider unavailable")
	// ErrNoRoute indicates the provider found no walkable path between the points.
	ErrNoRoute = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the provider quota has been exhausted.
	ErrRateLimitExceeded = errors.New("travel provider rate limit exceeded")
	// ErrMalformedResponse indicates the provider answered with an unusable payload.
	ErrMalformedResponse = errors.New("malformed travel provider response")
)

// ModeWalking is the only transport mode the scheduler plans for.
const ModeWalking = "walking"

// Kinds of lookups, used in cache keys and metrics labels.
const (
	KindCost     = "cost"
	KindGeometry = "geometry"
)

// Query describes a single origin/destination lookup.
type Query struct {
	Origin      geo.Coordinate
	Destination geo.Coordinate

	// Departure is a hint only. Providers may ignore it.
	Departure time.Time

	// WalkingSpeed in m/s is used by the straight-line baseline.
	WalkingSpeed float64
}

// Attribution records where a travel value came from.
type Attribution struct {
	Provider string `json:"provider"`
	Mode     string `json:"mode,omitempty"`
	Profile  string `json:"profile,omitempty"`
	Cached   bool   `json:"cached"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Cost is a travel duration and distance.
type Cost struct {
	Seconds        int         `json:"seconds"`
	DistanceMeters float64     `json:"distanceMeters"`
	Attribution    Attribution `json:"attribution"`
}

// Geometry is an encoded display path with its travel summary.
type Geometry struct {
	Polyline       string      `json:"polyline"`
	Seconds        int         `json:"seconds"`
	DistanceMeters float64     `json:"distanceMeters"`
	Attribution    Attribution `json:"attribution"`
}

// CostProvider computes travel costs.
type CostProvider interface {
	Cost(ctx context.Context, q Query) (Cost, error)
	// Name returns the provider identifier for cache keys, logging and metrics.
	Name() string
}

// GeometryProvider computes display paths.
type GeometryProvider interface {
	Geometry(ctx context.Context, q Query) (Geometry, error)
	Name() string
}

// Observer receives cache and fallback events. Implementations must be safe for
// concurrent use.
type Observer interface {
	CacheLookup(kind string, hit bool)
	ProviderFallback(kind, provider string)
}

type nopObserver struct{}

func (nopObserver) CacheLookup(string, bool)        {}
func (nopObserver) ProviderFallback(string, string) {}

// Error provides detailed error information from a travel provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
