// Package scheduler turns a trip request and its candidate sessions into a
// walking itinerary. It builds a time-window routing graph, schedules it with
// either a deterministic greedy pass or an external optimization backend, and
// explains every event it could not fit.
package scheduler

import (
	"sort"
	"time"

	"github.com/gopti/gopti/internal/geo"
	"github.com/gopti/gopti/internal/trip"
)

// minDwellSec is the floor applied to every service duration.
const minDwellSec = 60

// Role distinguishes the graph's endpoints from session nodes.
type Role string

const (
	RoleDepot   Role = "depot"
	RoleSession Role = "session"
	RoleSink    Role = "sink"
)

// Window is the [earliest, latest] service start in seconds from trip start.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Degenerate reports whether the window has collapsed to a point or less.
func (w Window) Degenerate() bool {
	return w.End <= w.Start
}

// Node is one stop in the routing graph.
type Node struct {
	Index   int
	Role    Role
	EventID string

	// Position is nil for the sink, which is reached from anywhere at no cost.
	Position *geo.Coordinate

	ServiceSec int
	Window     Window

	// Candidate is nil for the depot and the sink.
	Candidate *trip.SessionCandidate
}

// Graph is the immutable routing graph for one request. Node 0 is the depot
// and the last node is the sink.
type Graph struct {
	Nodes []Node

	// Groups maps each requested event to its session node indices in
	// session-start order. Events with no sessions map to an empty slice.
	Groups map[string][]int

	// EventOrder lists requested event ids in request order.
	EventOrder []string

	Horizon      int
	StartTime    time.Time
	EndTime      time.Time
	WalkingSpeed float64
	Compress     bool
}

// Depot returns the depot index.
func (g *Graph) Depot() int { return 0 }

// Sink returns the sink index.
func (g *Graph) Sink() int { return len(g.Nodes) - 1 }

// SessionCount returns the number of session nodes.
func (g *Graph) SessionCount() int { return len(g.Nodes) - 2 }

// Windows returns the windows of an event's session nodes.
func (g *Graph) Windows(eventID string) []Window {
	idx := g.Groups[eventID]
	out := make([]Window, len(idx))
	for i, n := range idx {
		out[i] = g.Nodes[n].Window
	}
	return out
}

// At converts an offset in seconds from trip start to a timestamp.
func (g *Graph) At(offset int) time.Time {
	return g.StartTime.Add(time.Duration(offset) * time.Second)
}

// BuildGraph converts candidates into a routing graph. Candidates for events
// that were not requested are ignored. It never fails: sessions that cannot be
// attended get a degenerate window instead of being removed.
func BuildGraph(req trip.Request, candidates []trip.SessionCandidate) *Graph {
	horizon := req.Horizon()
	start := req.Start

	g := &Graph{
		Groups:       make(map[string][]int, len(req.Events)),
		EventOrder:   req.EventIDs(),
		Horizon:      horizon,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		WalkingSpeed: req.WalkingSpeed,
		Compress:     req.CompressDwellToMin,
	}
	for _, id := range g.EventOrder {
		g.Groups[id] = []int{}
	}

	g.Nodes = append(g.Nodes, Node{
		Index:    0,
		Role:     RoleDepot,
		Position: &start,
		Window:   Window{Start: 0, End: horizon},
	})

	sorted := make([]trip.SessionCandidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := g.Groups[c.EventID]; ok {
			sorted = append(sorted, c)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	for i := range sorted {
		c := &sorted[i]
		service := DwellSeconds(req.DwellOverride(c.EventID), c.MinDwell(), req.CompressDwellToMin)
		pos := c.Venue.Position
		idx := len(g.Nodes)
		g.Nodes = append(g.Nodes, Node{
			Index:      idx,
			Role:       RoleSession,
			EventID:    c.EventID,
			Position:   &pos,
			ServiceSec: service,
			Window:     sessionWindow(req.StartTime, c.Start, c.End, service, horizon),
			Candidate:  c,
		})
		g.Groups[c.EventID] = append(g.Groups[c.EventID], idx)
	}

	g.Nodes = append(g.Nodes, Node{
		Index:  len(g.Nodes),
		Role:   RoleSink,
		Window: Window{Start: 0, End: horizon},
	})
	return g
}

// DwellSeconds resolves how long to stay at an event. An override can only
// lengthen the stay beyond the event minimum, and compress ignores it.
func DwellSeconds(override *int, minMinutes int, compress bool) int {
	minutes := minMinutes
	if !compress && override != nil && *override > minutes {
		minutes = *override
	}
	return max(minutes*60, minDwellSec)
}

// sessionWindow returns the latest-start window for a session, clamped to the
// trip horizon.
func sessionWindow(tripStart, sessionStart, sessionEnd time.Time, service, horizon int) Window {
	startOff := trip.Offset(tripStart, sessionStart)
	endOff := trip.Offset(tripStart, sessionEnd)

	ws := min(max(0, startOff), horizon)
	we := max(ws, min(horizon, endOff-service))
	return Window{Start: ws, End: we}
}
