package featureflags

import (
	"context"
	"errors"
)

// ErrFlagNotFound is returned when no value is stored for a key.
var ErrFlagNotFound = errors.New("feature flag not found")

// Repository stores operator overrides. Keys without a stored value fall back
// to the service defaults.
type Repository interface {
	Get(ctx context.Context, key string) (*Flag, error)

	// List returns every stored override keyed by flag key.
	List(ctx context.Context) (map[string]*Flag, error)

	// Put upserts an override.
	Put(ctx context.Context, flag *Flag) error

	// Delete removes an override. It returns ErrFlagNotFound when none exists.
	Delete(ctx context.Context, key string) error
}
