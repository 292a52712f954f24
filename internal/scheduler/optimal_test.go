package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopti/gopti/internal/solver"
)

func successTour(visits ...solver.Visit) *solver.Assignment {
	return &solver.Assignment{Status: solver.StatusSuccess, Tour: visits}
}

func newTestOptimal(backend solver.Backend, cost *fixedCost) *Optimal {
	return NewOptimal(OptimalConfig{
		Backend: backend,
		Cost:    cost,
		Logger:  zerolog.Nop(),
	})
}

func TestOptimal_TranslatesTour(t *testing.T) {
	backend := &fakeBackend{assignment: successTour(
		solver.Visit{Node: 0, Cumul: 0},
		solver.Visit{Node: 1, Cumul: 1800},
		solver.Visit{Node: 2, Cumul: 5400},
		solver.Visit{Node: 3, Cumul: 8100},
	)}
	g := BuildGraph(twoEventRequest(false), twoEventCandidates())
	s := newTestOptimal(backend, &fixedCost{seconds: 300})

	res, err := s.Schedule(context.Background(), g, false)
	require.NoError(t, err)

	assert.Equal(t, SolverOptimal, res.Metrics.Solver)
	assert.Equal(t, solver.StatusSuccess, res.status)
	assert.Nil(t, res.Debug)

	require.Len(t, res.Route, 2)
	assert.Equal(t, "evt_0", res.Route[0].EventID)
	assert.Equal(t, at(8, 30), res.Route[0].Arrive)
	assert.Equal(t, at(8, 50), res.Route[0].Depart)
	assert.Equal(t, 300, res.Route[0].TravelSecFromPrev)
	assert.NotEmpty(t, res.Route[0].Polyline)

	assert.Equal(t, "evt_1", res.Route[1].EventID)
	assert.Equal(t, at(9, 30), res.Route[1].Arrive)
	assert.Equal(t, at(10, 15), res.Route[1].Depart)
	assert.Equal(t, 2700, res.Route[1].DwellSec)
	assert.Equal(t, "fixed", res.Route[1].Source.Travel.Provider)

	assert.Empty(t, res.Dropped)
	assertItinerary(t, g, res)
}

func TestOptimal_BuildsModel(t *testing.T) {
	backend := &fakeBackend{assignment: successTour(
		solver.Visit{Node: 0, Cumul: 0},
		solver.Visit{Node: 3, Cumul: 0},
	)}
	cost := &fixedCost{seconds: 300}
	g := BuildGraph(twoEventRequest(false), twoEventCandidates())
	s := newTestOptimal(backend, cost)

	_, err := s.Schedule(context.Background(), g, false)
	require.NoError(t, err)

	m := backend.model
	require.NotNil(t, m)
	require.NoError(t, m.Validate())

	assert.Equal(t, 0, m.Depot)
	assert.Equal(t, 3, m.Sink)
	assert.Equal(t, 14400, m.Horizon)
	assert.Equal(t, DefaultSlackMaxSec, m.SlackMax)
	assert.Equal(t, DefaultTimeLimit, m.TimeLimit)
	assert.Equal(t, solver.FirstSolutionPathCheapestArc, m.FirstSolutionStrategy)
	assert.Equal(t, solver.MetaheuristicGuidedLocalSearch, m.LocalSearchMetaheuristic)

	// Three positioned nodes, every ordered pair looked up once.
	assert.Equal(t, int32(6), cost.calls.Load())

	assert.Equal(t, 300, m.Transit[0][1])
	assert.Equal(t, 1200+300, m.Transit[1][2])
	assert.Equal(t, 2700, m.Transit[2][3], "sink is free to reach")
	assert.Equal(t, 0, m.Transit[1][1])

	require.Len(t, m.Disjunctions, 2)
	for _, d := range m.Disjunctions {
		assert.Equal(t, int64(57600), d.Penalty)
		assert.Equal(t, 1, d.MaxCardinality)
	}
	assert.Equal(t, []int{1}, m.Disjunctions[0].Nodes)
	assert.Equal(t, []int{2}, m.Disjunctions[1].Nodes)
}

func TestOptimal_DropPenalty(t *testing.T) {
	s := NewOptimal(OptimalConfig{Backend: &fakeBackend{}})
	assert.Equal(t, int64(3000), s.DropPenalty(600))
	assert.Equal(t, int64(57600), s.DropPenalty(14400))

	s = NewOptimal(OptimalConfig{Backend: &fakeBackend{}, DropPenalty: 1234})
	assert.Equal(t, int64(1234), s.DropPenalty(14400))
}

func TestOptimal_TimeLimitClamped(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{in: 0, want: DefaultTimeLimit},
		{in: 100 * time.Millisecond, want: MinTimeLimit},
		{in: 10 * time.Second, want: MaxTimeLimit},
		{in: 2 * time.Second, want: 2 * time.Second},
	}
	for _, tt := range tests {
		s := NewOptimal(OptimalConfig{Backend: &fakeBackend{}, TimeLimit: tt.in})
		assert.Equal(t, tt.want, s.timeLimit, "time limit %s", tt.in)
	}
}

func TestOptimal_NoCandidatesSkipsBackend(t *testing.T) {
	backend := &fakeBackend{}
	g := BuildGraph(twoEventRequest(false), nil)
	s := newTestOptimal(backend, &fixedCost{seconds: 300})

	res, err := s.Schedule(context.Background(), g, false)
	require.NoError(t, err)

	assert.Zero(t, backend.callCount())
	assert.Empty(t, res.Route)
	require.Len(t, res.Dropped, 2)
	for _, d := range res.Dropped {
		assert.Equal(t, ReasonNoSessions, d.Reason)
	}
}

func TestOptimal_ClassifiesUnvisited(t *testing.T) {
	backend := &fakeBackend{assignment: successTour(
		solver.Visit{Node: 0, Cumul: 0},
		solver.Visit{Node: 1, Cumul: 1800},
		solver.Visit{Node: 3, Cumul: 3000},
	)}
	g := BuildGraph(twoEventRequest(false), twoEventCandidates())
	s := newTestOptimal(backend, &fixedCost{seconds: 300})

	res, err := s.Schedule(context.Background(), g, false)
	require.NoError(t, err)

	require.Len(t, res.Route, 1)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "evt_1", res.Dropped[0].EventID)
	assert.Equal(t, ReasonDroppedBySolver, res.Dropped[0].Reason)
	assert.Equal(t, 1, res.Dropped[0].SessionsConsidered)
	assertItinerary(t, g, res)
}

func TestOptimal_InfeasibleAndTimeout(t *testing.T) {
	tests := []struct {
		status solver.Status
		reason Reason
	}{
		{status: solver.StatusInfeasible, reason: ReasonInfeasible},
		{status: solver.StatusTimeout, reason: ReasonTimeout},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			backend := &fakeBackend{assignment: &solver.Assignment{Status: tt.status}}
			g := BuildGraph(twoEventRequest(false), twoEventCandidates())
			s := newTestOptimal(backend, &fixedCost{seconds: 300})

			res, err := s.Schedule(context.Background(), g, false)
			require.NoError(t, err)

			assert.Equal(t, tt.status, res.status)
			assert.Empty(t, res.Route)
			assert.Equal(t, 0, res.Metrics.Visited)
			require.Len(t, res.Dropped, 2)
			for _, d := range res.Dropped {
				assert.Equal(t, tt.reason, d.Reason)
			}
		})
	}
}

func TestOptimal_BackendError(t *testing.T) {
	backend := &fakeBackend{err: solver.ErrBackendUnavailable}
	g := BuildGraph(twoEventRequest(false), twoEventCandidates())
	s := newTestOptimal(backend, &fixedCost{seconds: 300})

	_, err := s.Schedule(context.Background(), g, false)
	assert.ErrorIs(t, err, solver.ErrBackendUnavailable)
}

func TestOptimal_RejectsInvalidTour(t *testing.T) {
	tests := []struct {
		name string
		tour []solver.Visit
	}{
		{name: "before window", tour: []solver.Visit{{Node: 0}, {Node: 1, Cumul: 100}, {Node: 3, Cumul: 2000}}},
		{name: "missing sink", tour: []solver.Visit{{Node: 0}, {Node: 1, Cumul: 1800}}},
		{name: "revisits node", tour: []solver.Visit{{Node: 0}, {Node: 1, Cumul: 1800}, {Node: 1, Cumul: 4000}, {Node: 3, Cumul: 6000}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{assignment: successTour(tt.tour...)}
			g := BuildGraph(twoEventRequest(false), twoEventCandidates())
			s := newTestOptimal(backend, &fixedCost{seconds: 300})

			_, err := s.Schedule(context.Background(), g, false)
			assert.ErrorIs(t, err, solver.ErrMalformedAssignment)
		})
	}
}

func TestOptimal_NeverVisitsEventTwice(t *testing.T) {
	candidates := append(twoEventCandidates(), twoEventCandidates()[1])
	candidates[2].Start, candidates[2].End = at(10, 0), at(11, 0)

	backend := &fakeBackend{assignment: successTour(
		solver.Visit{Node: 0, Cumul: 0},
		solver.Visit{Node: 1, Cumul: 1800},
		solver.Visit{Node: 3, Cumul: 7200},
		solver.Visit{Node: 4, Cumul: 8400},
	)}
	g := BuildGraph(twoEventRequest(false), candidates)
	require.Equal(t, []int{1, 3}, g.Groups["evt_0"])

	s := newTestOptimal(backend, &fixedCost{seconds: 300})
	_, err := s.Schedule(context.Background(), g, false)
	assert.ErrorIs(t, err, solver.ErrMalformedAssignment)
}

func TestOptimal_DebugSnapshot(t *testing.T) {
	backend := &fakeBackend{assignment: successTour(
		solver.Visit{Node: 0, Cumul: 0},
		solver.Visit{Node: 3, Cumul: 0},
	)}
	g := BuildGraph(twoEventRequest(true), twoEventCandidates())
	s := newTestOptimal(backend, &fixedCost{seconds: 300})

	res, err := s.Schedule(context.Background(), g, true)
	require.NoError(t, err)
	require.NotNil(t, res.Debug)

	require.Len(t, res.Debug.Nodes, 4)
	assert.Equal(t, RoleDepot, res.Debug.Nodes[0].Role)
	assert.Equal(t, RoleSink, res.Debug.Nodes[3].Role)
	assert.Nil(t, res.Debug.Nodes[3].Position)
	require.NotNil(t, res.Debug.Nodes[1].SessionStart)
	assert.Equal(t, at(8, 30), *res.Debug.Nodes[1].SessionStart)

	m := res.Debug.Matrix
	require.NotNil(t, m)
	assert.Equal(t, 300, m.Travel[0][1])
	assert.Equal(t, 0, m.Travel[1][3])
	assert.Equal(t, "fixed", m.Sources[0][1].Provider)
	assert.Equal(t, "none", m.Sources[1][3].Provider)
	assert.Equal(t, int64(57600), m.Penalty)
	assert.Equal(t, 14400, m.HorizonSec)
	assert.Equal(t, 2, m.EventCount)
	assert.True(t, m.CompressDwell)
}

func TestOptimal_CostErrorsDegrade(t *testing.T) {
	backend := &fakeBackend{assignment: successTour(
		solver.Visit{Node: 0, Cumul: 0},
		solver.Visit{Node: 3, Cumul: 0},
	)}
	g := BuildGraph(twoEventRequest(false), twoEventCandidates())
	s := newTestOptimal(backend, &fixedCost{err: errors.New("timeout")})

	res, err := s.Schedule(context.Background(), g, true)
	require.NoError(t, err)

	assert.True(t, res.Debug.Matrix.Sources[0][1].Fallback)
	assert.Positive(t, res.Debug.Matrix.Travel[0][1])
}
