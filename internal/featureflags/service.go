package featureflags

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCacheTTL is how long a loaded set of overrides is trusted.
const DefaultCacheTTL = time.Minute

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository   Repository
	Logger       zerolog.Logger
	CacheTTL     time.Duration
	DefaultFlags map[string]*Flag
}

// Service resolves flags as stored overrides merged over defaults. Overrides
// are loaded as one snapshot and reused until the cache TTL passes; a failed
// reload keeps serving the previous snapshot. A nil *Service reports every
// flag at its zero value.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	ttl      time.Duration
	defaults map[string]*Flag
	now      func() time.Time

	mu        sync.Mutex
	overrides map[string]*Flag
	loadedAt  time.Time
}

// NewService creates a new feature flag service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:     cfg.Repository,
		logger:   cfg.Logger,
		ttl:      cfg.CacheTTL,
		defaults: cfg.DefaultFlags,
		now:      time.Now,
	}
	if s.repo == nil {
		s.repo = NewInMemoryRepository()
	}
	if s.ttl <= 0 {
		s.ttl = DefaultCacheTTL
	}
	if s.defaults == nil {
		s.defaults = DefaultFlags(false)
	}
	return s
}

// snapshot returns the current overrides, reloading them when stale.
func (s *Service) snapshot(ctx context.Context) map[string]*Flag {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.overrides != nil && s.now().Sub(s.loadedAt) < s.ttl {
		return s.overrides
	}

	loaded, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("loading feature flags failed, serving last known values")
		if s.overrides == nil {
			return map[string]*Flag{}
		}
		return s.overrides
	}
	s.overrides = loaded
	s.loadedAt = s.now()
	return loaded
}

// GetFlag returns the effective flag for key, or nil for unknown keys.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	if s == nil {
		return nil
	}
	if f, ok := s.snapshot(ctx)[key]; ok {
		return f
	}
	return s.defaults[key]
}

// ListFlags returns every known flag with overrides applied, ordered by key.
func (s *Service) ListFlags(ctx context.Context) []Flag {
	merged := maps.Clone(s.defaults)
	maps.Copy(merged, s.snapshot(ctx))

	out := make([]Flag, 0, len(merged))
	for _, f := range merged {
		out = append(out, *f)
	}
	slices.SortFunc(out, func(a, b Flag) int { return strings.Compare(a.Key, b.Key) })
	return out
}

// SetFlag stores an override. Only known keys with boolean values are
// accepted.
func (s *Service) SetFlag(ctx context.Context, flag *Flag) error {
	if err := validate(flag, s.defaults); err != nil {
		return err
	}
	flag.UpdatedAt = s.now()
	if err := s.repo.Put(ctx, flag); err != nil {
		return err
	}
	s.InvalidateCache()

	s.logger.Info().
		Str("flag", flag.Key).
		Interface("value", flag.Value).
		Str("updated_by", flag.UpdatedBy).
		Msg("feature flag updated")
	return nil
}

// ResetFlag removes an override so the default applies again. Resetting a
// flag without an override is not an error.
func (s *Service) ResetFlag(ctx context.Context, key string) error {
	if _, ok := s.defaults[key]; !ok {
		return ErrUnknownFlag
	}
	if err := s.repo.Delete(ctx, key); err != nil && !errors.Is(err, ErrFlagNotFound) {
		return err
	}
	s.InvalidateCache()
	return nil
}

// InvalidateCache drops the loaded overrides so the next read reloads them.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	s.loadedAt = time.Time{}
	s.mu.Unlock()
}

// IsEnabled reports whether the flag with the given key is on.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	return s.GetFlag(ctx, key).BoolValue(false)
}

// IsOptimalSolverDisabled returns true if solves must use the greedy scheduler.
func (s *Service) IsOptimalSolverDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagOptimalSolverDisabled)
}

// IsDebugSolveEnabled returns true if the debug solve endpoint is exposed.
func (s *Service) IsDebugSolveEnabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDebugSolveEnabled)
}
