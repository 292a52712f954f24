package models

import (
	"time"

	"github.com/gopti/gopti/internal/catalog"
)

// EventSession is one session of the events listing.
type EventSession struct {
	EventID          string    `json:"eventId"`
	EventName        string    `json:"eventName"`
	EventType        string    `json:"eventType,omitempty"`
	URL              string    `json:"url,omitempty"`
	ShortDescription string    `json:"shortDescription,omitempty"`
	Artist           string    `json:"artist,omitempty"`
	RequireBooking   bool      `json:"requireBooking"`
	BookingDetail    string    `json:"bookingDetail,omitempty"`
	Venue            Venue     `json:"venue"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
}

// EventListResponse lists every session on a date.
type EventListResponse struct {
	Date   string         `json:"date"`
	Events []EventSession `json:"events"`
}

// NewEventListResponse renders catalog listings.
func NewEventListResponse(date string, listings []catalog.Listing) EventListResponse {
	out := EventListResponse{Date: date, Events: make([]EventSession, len(listings))}
	for i, l := range listings {
		out.Events[i] = EventSession{
			EventID:          l.EventID,
			EventName:        l.EventName,
			EventType:        l.EventType,
			URL:              l.URL,
			ShortDescription: l.ShortDescription,
			Artist:           l.Artist,
			RequireBooking:   l.RequireBooking,
			BookingDetail:    l.BookingDetail,
			Venue: Venue{
				Name:    l.Venue.Name,
				Address: l.Venue.Address,
				Lat:     l.Venue.Position.Lat,
				Lng:     l.Venue.Position.Lng,
			},
			Start: l.Start,
			End:   l.End,
		}
	}
	return out
}
