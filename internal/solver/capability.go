package solver

import "context"

// Backend solves routing models.
type Backend interface {
	Solve(ctx context.Context, m *Model) (*Assignment, error)
	Name() string
}

// Capability records whether an optimization backend can be used. It is
// resolved once at startup and never changes for the life of the process.
type Capability struct {
	backend Backend
	reason  string
}

// Available returns a capability backed by b.
func Available(b Backend) Capability {
	return Capability{backend: b}
}

// Unavailable returns a capability explaining why no backend can be used.
func Unavailable(reason string) Capability {
	return Capability{reason: reason}
}

// Backend returns the backend and whether it is available.
func (c Capability) Backend() (Backend, bool) {
	return c.backend, c.backend != nil
}

// Available reports whether a backend is usable.
func (c Capability) Available() bool {
	return c.backend != nil
}

// Reason explains an unavailable capability. It is empty when available.
func (c Capability) Reason() string {
	if c.backend != nil {
		return ""
	}
	if c.reason == "" {
		return "not configured"
	}
	return c.reason
}

// Name returns the backend name, or "none".
func (c Capability) Name() string {
	if c.backend == nil {
		return "none"
	}
	return c.backend.Name()
}
