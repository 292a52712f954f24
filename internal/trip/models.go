// Package trip defines the traveler's day plan and the session candidates it is
// scheduled against.
package trip

import (
	"time"

	"github.com/gopti/gopti/internal/geo"
)

// Request limits and defaults.
const (
	// MaxEvents is the largest number of events a single request may list.
	MaxEvents = 24

	// DefaultWalkingSpeed is used when the wire request omits a speed (m/s).
	DefaultWalkingSpeed = 1.35

	// MinWalkingSpeed is the exclusive lower bound for walking speed (m/s).
	MinWalkingSpeed = 0.05

	// MaxWalkingSpeed is the inclusive upper bound for walking speed (m/s).
	MaxWalkingSpeed = 3.0

	// DefaultMinDwellMinutes applies to events whose catalog entry has no minimum dwell.
	DefaultMinDwellMinutes = 15
)

// EventRequest is one entry of the traveler's wish-list.
type EventRequest struct {
	ID string

	// DwellMinutes optionally overrides how long to stay. Nil means use the event minimum.
	DwellMinutes *int
}

// Request is a single-day itinerary request.
type Request struct {
	Start              geo.Coordinate
	StartTime          time.Time
	EndTime            time.Time
	Events             []EventRequest
	WalkingSpeed       float64
	CompressDwellToMin bool
}

// Horizon returns the trip duration in whole seconds, never negative.
func (r Request) Horizon() int {
	return SecondsBetween(r.StartTime, r.EndTime)
}

// EventIDs returns the requested event identifiers in request order.
func (r Request) EventIDs() []string {
	ids := make([]string, len(r.Events))
	for i, ev := range r.Events {
		ids[i] = ev.ID
	}
	return ids
}

// Day returns midnight of the trip's calendar date in the start time's location.
func (r Request) Day() time.Time {
	y, m, d := r.StartTime.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.StartTime.Location())
}

// DwellOverride returns the requested dwell override for an event, if any.
func (r Request) DwellOverride(eventID string) *int {
	for _, ev := range r.Events {
		if ev.ID == eventID {
			return ev.DwellMinutes
		}
	}
	return nil
}

// Venue describes where a session takes place.
type Venue struct {
	Name     string         `json:"name"`
	Address  string         `json:"address,omitempty"`
	Position geo.Coordinate `json:"position"`
}

// SessionCandidate is one timed occurrence of an event at a venue.
type SessionCandidate struct {
	EventID         string
	EventName       string
	Venue           Venue
	Start           time.Time
	End             time.Time
	MinDwellMinutes int
}

// MinDwell returns the event's minimum dwell in minutes, defaulting when unset.
func (c SessionCandidate) MinDwell() int {
	if c.MinDwellMinutes <= 0 {
		return DefaultMinDwellMinutes
	}
	return c.MinDwellMinutes
}

// SecondsBetween returns whole seconds from a to b, clamped at zero.
func SecondsBetween(a, b time.Time) int {
	d := int(b.Sub(a) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// Offset returns signed whole seconds from the trip start to t.
func Offset(start, t time.Time) int {
	return int(t.Sub(start) / time.Second)
}
