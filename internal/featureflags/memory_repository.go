package featureflags

import (
	"context"
	"maps"
	"sync"
	"time"
)

// InMemoryRepository keeps overrides in process memory. It backs tests and
// deployments without a database, where overrides last until restart.
type InMemoryRepository struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

// NewInMemoryRepository returns a repository holding the given overrides.
func NewInMemoryRepository(seed ...Flag) *InMemoryRepository {
	r := &InMemoryRepository{flags: make(map[string]Flag, len(seed))}
	for _, f := range seed {
		r.flags[f.Key] = f
	}
	return r
}

func (r *InMemoryRepository) Get(_ context.Context, key string) (*Flag, error) {
	r.mu.RLock()
	f, ok := r.flags[key]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrFlagNotFound
	}
	return &f, nil
}

func (r *InMemoryRepository) List(_ context.Context) (map[string]*Flag, error) {
	r.mu.RLock()
	snapshot := maps.Clone(r.flags)
	r.mu.RUnlock()

	out := make(map[string]*Flag, len(snapshot))
	for k, f := range snapshot {
		out[k] = &f
	}
	return out, nil
}

func (r *InMemoryRepository) Put(_ context.Context, flag *Flag) error {
	stored := *flag
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}

	r.mu.Lock()
	r.flags[flag.Key] = stored
	r.mu.Unlock()
	return nil
}

func (r *InMemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.flags[key]; !ok {
		return ErrFlagNotFound
	}
	delete(r.flags, key)
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
