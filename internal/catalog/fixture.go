package catalog

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gopti/gopti/internal/geo"
)

// fixture is the YAML layout accepted by LoadFixture.
//
//	venues:
//	  - id: town-hall
//	    name: Sydney Town Hall
//	    lat: -33.8731
//	    lng: 151.2062
//	events:
//	  - id: organ-recital
//	    venue: town-hall
//	    name: Organ Recital
//	    minDwellMin: 20
//	    sessions:
//	      - start: 2025-06-11T08:30:00+10:00
//	        end: 2025-06-11T09:30:00+10:00
type fixture struct {
	Venues []struct {
		ID      string  `yaml:"id"`
		Name    string  `yaml:"name"`
		Address string  `yaml:"address"`
		Lat     float64 `yaml:"lat"`
		Lng     float64 `yaml:"lng"`
	} `yaml:"venues"`
	Events []struct {
		ID               string `yaml:"id"`
		Venue            string `yaml:"venue"`
		Name             string `yaml:"name"`
		Type             string `yaml:"type"`
		URL              string `yaml:"url"`
		ShortDescription string `yaml:"shortDescription"`
		Artist           string `yaml:"artist"`
		RequireBooking   bool   `yaml:"requireBooking"`
		BookingDetail    string `yaml:"bookingDetail"`
		MinDwellMin      int    `yaml:"minDwellMin"`
		Sessions         []struct {
			Start time.Time `yaml:"start"`
			End   time.Time `yaml:"end"`
		} `yaml:"sessions"`
	} `yaml:"events"`
}

// LoadFixtureFile reads a YAML catalog from path.
func LoadFixtureFile(path string) (*InMemoryRepository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog fixture: %w", err)
	}
	defer f.Close()
	return LoadFixture(f)
}

// LoadFixture builds an in-memory catalog from YAML.
func LoadFixture(r io.Reader) (*InMemoryRepository, error) {
	var fx fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil {
		return nil, fmt.Errorf("decoding catalog fixture: %w", err)
	}

	repo := NewInMemoryRepository()
	for _, v := range fx.Venues {
		pos := geo.Coordinate{Lat: v.Lat, Lng: v.Lng}
		if err := pos.Validate(); err != nil {
			return nil, fmt.Errorf("venue %s: %w", v.ID, err)
		}
		repo.PutVenue(Venue{ID: v.ID, Name: v.Name, Address: v.Address, Position: pos})
	}

	for _, e := range fx.Events {
		err := repo.PutEvent(Event{
			ID:               e.ID,
			VenueID:          e.Venue,
			Name:             e.Name,
			Type:             e.Type,
			URL:              e.URL,
			ShortDescription: e.ShortDescription,
			Artist:           e.Artist,
			RequireBooking:   e.RequireBooking,
			BookingDetail:    e.BookingDetail,
			MinDwellMinutes:  e.MinDwellMin,
		})
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		for _, s := range e.Sessions {
			if err := repo.AddSession(Session{EventID: e.ID, Start: s.Start, End: s.End}); err != nil {
				return nil, fmt.Errorf("event %s session %s: %w", e.ID, s.Start.Format(time.RFC3339), err)
			}
		}
	}
	return repo, nil
}
