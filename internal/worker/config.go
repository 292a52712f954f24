// Package worker runs the cache maintenance jobs behind the Pub/Sub
// subscription: prewarming travel costs for a day and purging expired rows.
package worker

import (
	"time"

	"github.com/gopti/gopti/internal/trip"
)

// Job types accepted on the subscription.
const (
	JobPrewarmDay   = "prewarm_day"
	JobPurgeExpired = "purge_expired"
)

// JobConfig tunes the prewarm job.
type JobConfig struct {
	// Concurrency is the number of venue pairs looked up at once.
	// Default: 4
	Concurrency int

	// LookupTimeout bounds each cost lookup.
	// Default: 10 seconds
	LookupTimeout time.Duration

	// WalkingSpeed is passed to providers that use it (m/s).
	// Default: 1.35
	WalkingSpeed float64
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Concurrency:   4,
		LookupTimeout: 10 * time.Second,
		WalkingSpeed:  trip.DefaultWalkingSpeed,
	}
}

func (c JobConfig) withDefaults() JobConfig {
	d := DefaultJobConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = d.LookupTimeout
	}
	if c.WalkingSpeed <= 0 {
		c.WalkingSpeed = d.WalkingSpeed
	}
	return c
}
