// Package cache provides TTL-bounded key/value stores for travel costs and
// geometry. Every implementation upserts last-write-wins with at most one entry
// per key and reports expired entries as misses.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidTTL is returned when a value is stored with a non-positive TTL.
var ErrInvalidTTL = errors.New("cache ttl must be positive")

// Store is the contract shared by all cache backends.
type Store interface {
	// Get returns the value for key. Absent and expired keys are (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set upserts value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// PurgeExpired removes expired entries and returns how many were removed.
	PurgeExpired(ctx context.Context) (int64, error)
}

// Backend names accepted by configuration.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)
