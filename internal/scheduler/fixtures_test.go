package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopti/gopti/internal/geo"
	"github.com/gopti/gopti/internal/solver"
	"github.com/gopti/gopti/internal/travel"
	"github.com/gopti/gopti/internal/trip"
)

var (
	tripStart = time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC)
	tripEnd   = time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)

	startPos = geo.Coordinate{Lat: -33.86, Lng: 151.21}
	venueA   = trip.Venue{Name: "Town Hall", Position: geo.Coordinate{Lat: -33.8731, Lng: 151.2062}}
	venueB   = trip.Venue{Name: "Customs House", Position: geo.Coordinate{Lat: -33.8614, Lng: 151.2100}}
)

func at(h, m int) time.Time {
	return time.Date(2025, 6, 11, h, m, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

// twoEventRequest lists evt_0 and evt_1, the latter asking for 45 minutes.
func twoEventRequest(compress bool) trip.Request {
	return trip.Request{
		Start:     startPos,
		StartTime: tripStart,
		EndTime:   tripEnd,
		Events: []trip.EventRequest{
			{ID: "evt_0"},
			{ID: "evt_1", DwellMinutes: intPtr(45)},
		},
		WalkingSpeed:       trip.DefaultWalkingSpeed,
		CompressDwellToMin: compress,
	}
}

func twoEventCandidates() []trip.SessionCandidate {
	return []trip.SessionCandidate{
		{EventID: "evt_1", EventName: "Harbour Talk", Venue: venueB, Start: at(9, 30), End: at(10, 30), MinDwellMinutes: 20},
		{EventID: "evt_0", EventName: "Organ Recital", Venue: venueA, Start: at(8, 30), End: at(9, 30), MinDwellMinutes: 20},
	}
}

// fixedCost answers every lookup with the same duration.
type fixedCost struct {
	seconds int
	err     error
	calls   atomic.Int32
}

func (f *fixedCost) Name() string { return "fixed" }

func (f *fixedCost) Cost(_ context.Context, _ travel.Query) (travel.Cost, error) {
	f.calls.Add(1)
	if f.err != nil {
		return travel.Cost{}, f.err
	}
	return travel.Cost{
		Seconds:        f.seconds,
		DistanceMeters: float64(f.seconds),
		Attribution:    travel.Attribution{Provider: "fixed", Mode: travel.ModeWalking},
	}, nil
}

// failingGeometry fails every lookup.
type failingGeometry struct{}

func (failingGeometry) Name() string { return "broken" }

func (failingGeometry) Geometry(context.Context, travel.Query) (travel.Geometry, error) {
	return travel.Geometry{}, errors.New("connection refused")
}

// fakeBackend returns a canned assignment and records the submitted model.
type fakeBackend struct {
	mu         sync.Mutex
	assignment *solver.Assignment
	err        error
	model      *solver.Model
	calls      int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Solve(_ context.Context, m *solver.Model) (*solver.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.model = m
	if f.err != nil {
		return nil, f.err
	}
	return f.assignment, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// assertItinerary checks the properties every itinerary must hold.
func assertItinerary(t *testing.T, g *Graph, res *Result) {
	t.Helper()

	seen := make(map[string]bool)
	prevDepart := g.StartTime
	walked := 0
	for i, stop := range res.Route {
		assert.False(t, seen[stop.EventID], "event %s visited twice", stop.EventID)
		seen[stop.EventID] = true

		earliest := prevDepart.Add(time.Duration(stop.TravelSecFromPrev) * time.Second)
		assert.False(t, stop.Arrive.Before(earliest), "stop %d arrives before it can", i)
		assert.Equal(t, stop.Arrive.Add(time.Duration(stop.DwellSec)*time.Second), stop.Depart, "stop %d", i)
		assert.False(t, stop.Depart.After(stop.SessionEnd), "stop %d departs after session end", i)
		assert.False(t, stop.Depart.After(g.EndTime), "stop %d departs after trip end", i)
		assert.False(t, stop.Depart.Before(prevDepart), "stop %d out of order", i)

		walked += stop.TravelSecFromPrev
		assert.Equal(t, walked, stop.WalkedSecTotal, "stop %d", i)
		prevDepart = stop.Depart
	}
	for _, d := range res.Dropped {
		assert.False(t, seen[d.EventID], "event %s both visited and dropped", d.EventID)
	}

	require.Equal(t, len(res.Route), res.Metrics.Visited)
	require.Equal(t, len(res.Dropped), res.Metrics.Dropped)
	assert.Equal(t, walked, res.Metrics.TotalWalkSec)
}
