package catalog

import (
	"context"
	"time"

	"github.com/gopti/gopti/internal/trip"
)

// Repository defines read access to the session catalog.
type Repository interface {
	// FetchCandidates returns the sessions of the given events that overlap
	// day, ordered by session start. Unknown event ids are ignored.
	FetchCandidates(ctx context.Context, eventIDs []string, day time.Time) ([]trip.SessionCandidate, error)

	// ListSessions returns every session overlapping day, ordered by start.
	ListSessions(ctx context.Context, day time.Time) ([]Listing, error)

	// Venues returns every venue hosting a session that overlaps day.
	Venues(ctx context.Context, day time.Time) ([]Venue, error)
}
