// Package catalog provides read access to venues, events and their timed
// sessions.
package catalog

import (
	"errors"
	"time"

	"github.com/gopti/gopti/internal/geo"
	"github.com/gopti/gopti/internal/trip"
)

// Sentinel errors for catalog operations.
var (
	ErrUnknownVenue   = errors.New("unknown venue")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidSession = errors.New("session must end after it starts")
)

// Venue is a place where events are held.
type Venue struct {
	ID       string
	Name     string
	Address  string
	Position geo.Coordinate
}

// Event is a catalog entry that occurs in one or more sessions.
type Event struct {
	ID               string
	VenueID          string
	Name             string
	Type             string
	URL              string
	ShortDescription string
	Artist           string
	RequireBooking   bool
	BookingDetail    string

	// MinDwellMinutes is zero when the catalog has no minimum.
	MinDwellMinutes int
}

// Session is one timed occurrence of an event.
type Session struct {
	EventID string
	Start   time.Time
	End     time.Time
}

// Listing is a session joined with its event and venue, as shown to users
// browsing a day.
type Listing struct {
	EventID          string
	EventName        string
	EventType        string
	URL              string
	ShortDescription string
	Artist           string
	RequireBooking   bool
	BookingDetail    string
	Venue            trip.Venue
	Start            time.Time
	End              time.Time
}

// dayBounds returns the half-open interval covering day.
func dayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return from, from.AddDate(0, 0, 1)
}

// overlaps reports whether [start, end) intersects [from, to).
func overlaps(start, end, from, to time.Time) bool {
	return start.Before(to) && end.After(from)
}
