package scheduler

import (
	"time"

	"github.com/gopti/gopti/internal/solver"
	"github.com/gopti/gopti/internal/travel"
	"github.com/gopti/gopti/internal/trip"
)

// Solver names reported in metrics.
const (
	SolverOptimal        = "optimal"
	SolverGreedy         = "greedy"
	SolverGreedyFallback = "greedy-fallback"
)

// Stop is one visited session.
type Stop struct {
	EventID           string
	EventName         string
	SessionStart      time.Time
	SessionEnd        time.Time
	Arrive            time.Time
	Depart            time.Time
	DwellSec          int
	TravelSecFromPrev int
	WalkedSecTotal    int
	Venue             trip.Venue
	Polyline          string
	Source            Source
}

// Source attributes a stop's travel cost and path.
type Source struct {
	Travel     travel.Attribution
	Directions *travel.Attribution
}

// Attempt records one session the greedy scheduler tried for an event.
type Attempt struct {
	SessionStart time.Time
	SessionEnd   time.Time
	WalkSec      int
	Arrival      time.Time
	Depart       time.Time
}

// Drop explains one event missing from the itinerary.
type Drop struct {
	EventID            string
	Reason             Reason
	SessionsConsidered int
	Attempts           []Attempt
	Message            string
}

// Metrics summarizes a run.
type Metrics struct {
	// RunID identifies the solve in logs and traces.
	RunID string

	Visited      int
	Dropped      int
	TotalWalkSec int
	Solver       string
	SolveMs      int64

	// FallbackReason is set when the optimal scheduler was skipped or abandoned.
	FallbackReason string
}

// Result is the outcome of a scheduling run.
type Result struct {
	Route   []Stop
	Dropped []Drop
	Metrics Metrics

	// Debug is populated only when requested.
	Debug *Debug

	// status is the backend outcome for optimal runs.
	status solver.Status
}

// Debug exposes the graph and, for optimal runs, the travel matrix.
type Debug struct {
	Nodes  []DebugNode
	Matrix *MatrixDebug
}

// DebugNode is a flattened graph node.
type DebugNode struct {
	Index        int
	Role         Role
	EventID      string
	SessionStart *time.Time
	SessionEnd   *time.Time
	Position     *trip.Venue
	ServiceSec   int
	Window       Window
}

// MatrixDebug describes the model submitted to the backend.
type MatrixDebug struct {
	Travel        [][]int
	Sources       [][]travel.Attribution
	Penalty       int64
	HorizonSec    int
	SlackMaxSec   int
	EventCount    int
	CompressDwell bool
}

func newResult(solverName string) *Result {
	return &Result{Route: []Stop{}, Dropped: []Drop{}, Metrics: Metrics{Solver: solverName}}
}

func (r *Result) finish() {
	r.Metrics.Visited = len(r.Route)
	r.Metrics.Dropped = len(r.Dropped)
	total := 0
	for _, s := range r.Route {
		total += s.TravelSecFromPrev
	}
	r.Metrics.TotalWalkSec = total
}

// debugNodes flattens the graph for debug output.
func debugNodes(g *Graph) []DebugNode {
	out := make([]DebugNode, len(g.Nodes))
	for i, n := range g.Nodes {
		d := DebugNode{
			Index:      n.Index,
			Role:       n.Role,
			EventID:    n.EventID,
			ServiceSec: n.ServiceSec,
			Window:     n.Window,
		}
		if n.Candidate != nil {
			start, end := n.Candidate.Start, n.Candidate.End
			venue := n.Candidate.Venue
			d.SessionStart, d.SessionEnd, d.Position = &start, &end, &venue
		} else if n.Position != nil {
			d.Position = &trip.Venue{Name: string(n.Role), Position: *n.Position}
		}
		out[i] = d
	}
	return out
}

// allDropped reports every requested event as dropped with reason.
func allDropped(g *Graph, reason Reason) []Drop {
	out := make([]Drop, 0, len(g.EventOrder))
	for _, id := range g.EventOrder {
		out = append(out, Drop{
			EventID:            id,
			Reason:             reason,
			SessionsConsidered: len(g.Groups[id]),
		})
	}
	return out
}
