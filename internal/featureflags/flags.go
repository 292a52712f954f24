// Package featureflags provides runtime switches that operators can flip
// without a deploy.
package featureflags

import (
	"errors"
	"time"
)

// Well-known feature flag keys.
const (
	// FlagOptimalSolverDisabled forces every solve onto the greedy scheduler.
	FlagOptimalSolverDisabled = "optimal_solver_disabled"

	// FlagDebugSolveEnabled exposes the debug solve endpoint.
	FlagDebugSolveEnabled = "debug_solve_enabled"
)

// Validation errors for flag updates.
var (
	ErrUnknownFlag  = errors.New("unknown feature flag")
	ErrInvalidValue = errors.New("feature flag value must be a boolean")
)

// Flag is a switch and its current value. UpdatedBy names the operator who
// stored an override and is empty for defaults.
type Flag struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BoolValue returns the flag value as a boolean.
// Returns the default value if the flag is nil or not a boolean.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON unmarshals numbers as float64
		return v != 0
	default:
		return defaultValue
	}
}

// DefaultFlags returns the built-in flag values. The debug endpoint is only on
// by default outside production.
func DefaultFlags(debugSolve bool) map[string]*Flag {
	now := time.Now()
	return map[string]*Flag{
		FlagOptimalSolverDisabled: {
			Key:       FlagOptimalSolverDisabled,
			Value:     false,
			UpdatedAt: now,
		},
		FlagDebugSolveEnabled: {
			Key:       FlagDebugSolveEnabled,
			Value:     debugSolve,
			UpdatedAt: now,
		},
	}
}

// validate checks an update against the known flags.
func validate(flag *Flag, known map[string]*Flag) error {
	if _, ok := known[flag.Key]; !ok {
		return ErrUnknownFlag
	}
	if _, ok := flag.Value.(bool); !ok {
		return ErrInvalidValue
	}
	return nil
}
