package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gopti/gopti/internal/trip"
)

// InMemoryRepository is an in-memory implementation of Repository.
// It backs tests and fixture-driven development servers.
type InMemoryRepository struct {
	mu       sync.RWMutex
	venues   map[string]Venue
	events   map[string]Event
	sessions []Session
}

// NewInMemoryRepository creates an empty in-memory catalog.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		venues: make(map[string]Venue),
		events: make(map[string]Event),
	}
}

// PutVenue inserts or replaces a venue.
func (r *InMemoryRepository) PutVenue(v Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venues[v.ID] = v
}

// PutEvent inserts or replaces an event. Its venue must already exist.
func (r *InMemoryRepository) PutEvent(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.venues[e.VenueID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVenue, e.VenueID)
	}
	r.events[e.ID] = e
	return nil
}

// AddSession adds a session. A session with the same event and start time is
// ignored.
func (r *InMemoryRepository) AddSession(s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[s.EventID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, s.EventID)
	}
	if !s.End.After(s.Start) {
		return ErrInvalidSession
	}
	for _, existing := range r.sessions {
		if existing.EventID == s.EventID && existing.Start.Equal(s.Start) {
			return nil
		}
	}
	r.sessions = append(r.sessions, s)
	return nil
}

// FetchCandidates returns the requested events' sessions overlapping day.
func (r *InMemoryRepository) FetchCandidates(_ context.Context, eventIDs []string, day time.Time) ([]trip.SessionCandidate, error) {
	wanted := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := []trip.SessionCandidate{}
	for _, s := range r.sessionsOn(day) {
		if !wanted[s.EventID] {
			continue
		}
		e := r.events[s.EventID]
		candidates = append(candidates, trip.SessionCandidate{
			EventID:         e.ID,
			EventName:       e.Name,
			Venue:           r.tripVenue(e.VenueID),
			Start:           s.Start,
			End:             s.End,
			MinDwellMinutes: e.MinDwellMinutes,
		})
	}
	return candidates, nil
}

// ListSessions returns every session overlapping day.
func (r *InMemoryRepository) ListSessions(_ context.Context, day time.Time) ([]Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listings := []Listing{}
	for _, s := range r.sessionsOn(day) {
		e := r.events[s.EventID]
		listings = append(listings, Listing{
			EventID:          e.ID,
			EventName:        e.Name,
			EventType:        e.Type,
			URL:              e.URL,
			ShortDescription: e.ShortDescription,
			Artist:           e.Artist,
			RequireBooking:   e.RequireBooking,
			BookingDetail:    e.BookingDetail,
			Venue:            r.tripVenue(e.VenueID),
			Start:            s.Start,
			End:              s.End,
		})
	}
	return listings, nil
}

// Venues returns the venues hosting sessions on day.
func (r *InMemoryRepository) Venues(_ context.Context, day time.Time) ([]Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	venues := []Venue{}
	for _, s := range r.sessionsOn(day) {
		id := r.events[s.EventID].VenueID
		if seen[id] {
			continue
		}
		seen[id] = true
		venues = append(venues, r.venues[id])
	}
	sort.Slice(venues, func(i, j int) bool { return venues[i].ID < venues[j].ID })
	return venues, nil
}

// sessionsOn returns sessions overlapping day ordered by start then event id.
// Callers must hold the read lock.
func (r *InMemoryRepository) sessionsOn(day time.Time) []Session {
	from, to := dayBounds(day)

	var out []Session
	for _, s := range r.sessions {
		if overlaps(s.Start, s.End, from, to) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].EventID < out[j].EventID
	})
	return out
}

func (r *InMemoryRepository) tripVenue(id string) trip.Venue {
	v := r.venues[id]
	return trip.Venue{Name: v.Name, Address: v.Address, Position: v.Position}
}
