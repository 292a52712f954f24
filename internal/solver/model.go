// Package solver describes the time-window routing model submitted to an
// external optimization backend, and resolves whether such a backend is usable.
package solver

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for backend operations.
var (
	// ErrBackendUnavailable indicates no backend is configured or it cannot be reached.
	ErrBackendUnavailable = errors.New("routing backend unavailable")
	// ErrInvalidModel indicates a model that violates its own structural rules.
	ErrInvalidModel = errors.New("invalid routing model")
	// ErrMalformedAssignment indicates a backend answer that is not a valid tour.
	ErrMalformedAssignment = errors.New("malformed routing assignment")
)

// Search strategy names understood by the backend.
const (
	FirstSolutionPathCheapestArc   = "PATH_CHEAPEST_ARC"
	MetaheuristicGuidedLocalSearch = "GUIDED_LOCAL_SEARCH"
)

// Window bounds the cumulative time at which service may begin at a node.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Node is one location in the model.
type Node struct {
	ServiceSec int    `json:"serviceSec"`
	Window     Window `json:"window"`
}

// Disjunction lets the tour visit at most MaxCardinality of Nodes, paying
// Penalty when none is visited.
type Disjunction struct {
	Nodes          []int `json:"nodes"`
	Penalty        int64 `json:"penalty"`
	MaxCardinality int   `json:"maxCardinality"`
}

// Model is a single-vehicle routing problem with time windows and optional
// visits. Transit[i][j] is the time consumed leaving i for j, service included.
type Model struct {
	Nodes        []Node        `json:"nodes"`
	Transit      [][]int       `json:"transit"`
	Depot        int           `json:"depot"`
	Sink         int           `json:"sink"`
	Disjunctions []Disjunction `json:"disjunctions"`
	Horizon      int           `json:"horizon"`
	SlackMax     int           `json:"slackMax"`

	TimeLimit                time.Duration `json:"-"`
	FirstSolutionStrategy    string        `json:"firstSolutionStrategy"`
	LocalSearchMetaheuristic string        `json:"localSearchMetaheuristic"`
}

// Validate checks structural consistency.
func (m *Model) Validate() error {
	n := len(m.Nodes)
	if n < 2 {
		return fmt.Errorf("%w: need at least depot and sink, got %d nodes", ErrInvalidModel, n)
	}
	if m.Depot < 0 || m.Depot >= n || m.Sink < 0 || m.Sink >= n || m.Depot == m.Sink {
		return fmt.Errorf("%w: depot %d / sink %d out of range", ErrInvalidModel, m.Depot, m.Sink)
	}
	if len(m.Transit) != n {
		return fmt.Errorf("%w: transit matrix has %d rows, want %d", ErrInvalidModel, len(m.Transit), n)
	}
	for i, row := range m.Transit {
		if len(row) != n {
			return fmt.Errorf("%w: transit row %d has %d columns, want %d", ErrInvalidModel, i, len(row), n)
		}
	}
	for i, node := range m.Nodes {
		if node.Window.Start < 0 || node.Window.End > m.Horizon {
			return fmt.Errorf("%w: node %d window %v outside [0, %d]", ErrInvalidModel, i, node.Window, m.Horizon)
		}
	}
	seen := make(map[int]bool)
	for d, dis := range m.Disjunctions {
		for _, idx := range dis.Nodes {
			if idx <= 0 || idx >= n || idx == m.Sink || idx == m.Depot {
				return fmt.Errorf("%w: disjunction %d references node %d", ErrInvalidModel, d, idx)
			}
			if seen[idx] {
				return fmt.Errorf("%w: node %d appears in more than one disjunction", ErrInvalidModel, idx)
			}
			seen[idx] = true
		}
	}
	return nil
}

// Status is the outcome reported by the backend.
type Status string

const (
	StatusSuccess    Status = "SUCCESS"
	StatusInfeasible Status = "INFEASIBLE"
	StatusTimeout    Status = "TIMEOUT"
)

// Visit is one stop of the returned tour with its cumulative time.
type Visit struct {
	Node  int `json:"node"`
	Cumul int `json:"cumul"`
}

// Assignment is the backend's answer. Tour is only meaningful on success and
// runs from the depot to the sink.
type Assignment struct {
	Status    Status  `json:"status"`
	Tour      []Visit `json:"tour"`
	Objective int64   `json:"objective"`
}

// Validate checks a successful assignment against the model: the tour must run
// depot to sink, visit each node at most once, take at most one node per
// disjunction, respect every window and never run faster than transit allows.
func (a *Assignment) Validate(m *Model) error {
	if a.Status != StatusSuccess {
		return nil
	}
	if len(a.Tour) < 2 {
		return fmt.Errorf("%w: tour has %d visits", ErrMalformedAssignment, len(a.Tour))
	}
	if a.Tour[0].Node != m.Depot || a.Tour[len(a.Tour)-1].Node != m.Sink {
		return fmt.Errorf("%w: tour must start at depot and end at sink", ErrMalformedAssignment)
	}

	group := make(map[int]int)
	for d, dis := range m.Disjunctions {
		for _, idx := range dis.Nodes {
			group[idx] = d
		}
	}

	visited := make(map[int]bool, len(a.Tour))
	groupUsed := make(map[int]bool)
	for i, v := range a.Tour {
		if v.Node < 0 || v.Node >= len(m.Nodes) {
			return fmt.Errorf("%w: node index %d out of range", ErrMalformedAssignment, v.Node)
		}
		if visited[v.Node] {
			return fmt.Errorf("%w: node %d visited twice", ErrMalformedAssignment, v.Node)
		}
		visited[v.Node] = true

		if g, ok := group[v.Node]; ok {
			if groupUsed[g] {
				return fmt.Errorf("%w: disjunction %d visited more than once", ErrMalformedAssignment, g)
			}
			groupUsed[g] = true
		}

		w := m.Nodes[v.Node].Window
		if v.Cumul < w.Start || v.Cumul > w.End {
			return fmt.Errorf("%w: node %d cumul %d outside window [%d, %d]",
				ErrMalformedAssignment, v.Node, v.Cumul, w.Start, w.End)
		}
		if i > 0 {
			prev := a.Tour[i-1]
			if need := prev.Cumul + m.Transit[prev.Node][v.Node]; v.Cumul < need {
				return fmt.Errorf("%w: node %d reached at %d before %d",
					ErrMalformedAssignment, v.Node, v.Cumul, need)
			}
		}
	}
	return nil
}

// Error wraps a backend failure with the backend's name.
type Error struct {
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return e.Backend + " " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
