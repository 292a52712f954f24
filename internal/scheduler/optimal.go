package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gopti/gopti/internal/solver"
	"github.com/gopti/gopti/internal/travel"
)

// Optimal scheduler defaults.
const (
	DefaultTimeLimit         = 2500 * time.Millisecond
	MinTimeLimit             = time.Second
	MaxTimeLimit             = 3 * time.Second
	DefaultSlackMaxSec       = 900
	DefaultMatrixConcurrency = 8

	minDropPenalty = 3000
)

// OptimalConfig configures the optimal scheduler.
type OptimalConfig struct {
	// Backend solves the routing model (required).
	Backend solver.Backend

	Cost     travel.CostProvider
	Geometry travel.GeometryProvider

	// TimeLimit is clamped to [1s, 3s]. Default: 2.5s
	TimeLimit time.Duration

	// SlackMaxSec caps waiting at a node. Default: 900
	SlackMaxSec int

	// DropPenalty overrides the skip penalty. Zero means max(3000, 4 × horizon).
	DropPenalty int64

	// MatrixConcurrency bounds parallel cost lookups. Default: 8
	MatrixConcurrency int

	Logger zerolog.Logger
}

// Optimal submits the graph to a routing backend and translates its tour.
type Optimal struct {
	backend     solver.Backend
	cost        travel.CostProvider
	geometry    travel.GeometryProvider
	timeLimit   time.Duration
	slackMax    int
	penalty     int64
	concurrency int
	logger      zerolog.Logger
}

// NewOptimal creates an optimal scheduler.
func NewOptimal(cfg OptimalConfig) *Optimal {
	timeLimit := cfg.TimeLimit
	if timeLimit == 0 {
		timeLimit = DefaultTimeLimit
	}
	timeLimit = min(max(timeLimit, MinTimeLimit), MaxTimeLimit)

	slack := cfg.SlackMaxSec
	if slack <= 0 {
		slack = DefaultSlackMaxSec
	}
	concurrency := cfg.MatrixConcurrency
	if concurrency <= 0 {
		concurrency = DefaultMatrixConcurrency
	}

	return &Optimal{
		backend:     cfg.Backend,
		cost:        resilientCost(cfg.Cost, cfg.Logger),
		geometry:    resilientGeometry(cfg.Geometry, cfg.Logger),
		timeLimit:   timeLimit,
		slackMax:    slack,
		penalty:     cfg.DropPenalty,
		concurrency: concurrency,
		logger:      cfg.Logger,
	}
}

// DropPenalty returns the skip penalty used for a horizon.
func (s *Optimal) DropPenalty(horizon int) int64 {
	if s.penalty > 0 {
		return s.penalty
	}
	return max(minDropPenalty, int64(horizon)*4)
}

// Schedule solves g. Infeasible and timed-out runs are results, not errors:
// every event is reported dropped with the matching reason. Errors mean the
// backend could not be used or returned an unusable tour.
func (s *Optimal) Schedule(ctx context.Context, g *Graph, debug bool) (*Result, error) {
	res := newResult(SolverOptimal)
	if debug {
		res.Debug = &Debug{Nodes: debugNodes(g)}
	}

	if g.SessionCount() == 0 {
		res.Dropped = allDropped(g, ReasonNoSessions)
		res.status = solver.StatusSuccess
		res.finish()
		return res, nil
	}

	travelSec, sources, err := s.buildMatrix(ctx, g)
	if err != nil {
		return nil, err
	}

	model := s.buildModel(g, travelSec)
	if debug {
		res.Debug.Matrix = &MatrixDebug{
			Travel:        travelSec,
			Sources:       sources,
			Penalty:       s.DropPenalty(g.Horizon),
			HorizonSec:    g.Horizon,
			SlackMaxSec:   s.slackMax,
			EventCount:    len(g.EventOrder),
			CompressDwell: g.Compress,
		}
	}

	assignment, err := s.backend.Solve(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("solving routing model: %w", err)
	}
	res.status = assignment.Status

	switch assignment.Status {
	case solver.StatusInfeasible:
		res.Dropped = allDropped(g, ReasonInfeasible)
		res.finish()
		return res, nil
	case solver.StatusTimeout:
		res.Dropped = allDropped(g, ReasonTimeout)
		res.finish()
		return res, nil
	}

	if err := assignment.Validate(model); err != nil {
		return nil, err
	}

	s.translate(ctx, g, assignment, travelSec, sources, res)
	res.finish()
	return res, nil
}

// buildMatrix computes travel seconds between every pair of positioned nodes.
// Lookups leaving a node use its window start as the departure hint.
func (s *Optimal) buildMatrix(ctx context.Context, g *Graph) ([][]int, [][]travel.Attribution, error) {
	n := len(g.Nodes)
	travelSec := make([][]int, n)
	sources := make([][]travel.Attribution, n)
	for i := range n {
		travelSec[i] = make([]int, n)
		sources[i] = make([]travel.Attribution, n)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)

	for i := range n {
		for j := range n {
			src, dst := g.Nodes[i], g.Nodes[j]
			if i == j || src.Position == nil || dst.Position == nil {
				sources[i][j] = travel.Attribution{Provider: "none"}
				continue
			}
			eg.Go(func() error {
				cost, err := s.cost.Cost(egCtx, travel.Query{
					Origin:       *src.Position,
					Destination:  *dst.Position,
					Departure:    g.At(src.Window.Start),
					WalkingSpeed: g.WalkingSpeed,
				})
				if err != nil {
					return fmt.Errorf("travel cost %d->%d: %w", i, j, err)
				}
				travelSec[i][j] = max(0, cost.Seconds)
				sources[i][j] = cost.Attribution
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return travelSec, sources, nil
}

// buildModel translates the graph into a routing model. Leaving node i for j
// costs i's service time plus the walk; summed over a tour this equals charging
// each destination's service on arrival.
func (s *Optimal) buildModel(g *Graph, travelSec [][]int) *solver.Model {
	n := len(g.Nodes)
	m := &solver.Model{
		Nodes:                    make([]solver.Node, n),
		Transit:                  make([][]int, n),
		Depot:                    g.Depot(),
		Sink:                     g.Sink(),
		Horizon:                  g.Horizon,
		SlackMax:                 s.slackMax,
		TimeLimit:                s.timeLimit,
		FirstSolutionStrategy:    solver.FirstSolutionPathCheapestArc,
		LocalSearchMetaheuristic: solver.MetaheuristicGuidedLocalSearch,
	}
	for i, node := range g.Nodes {
		m.Nodes[i] = solver.Node{
			ServiceSec: node.ServiceSec,
			Window:     solver.Window{Start: node.Window.Start, End: node.Window.End},
		}
		m.Transit[i] = make([]int, n)
		for j := range n {
			if i != j {
				m.Transit[i][j] = node.ServiceSec + travelSec[i][j]
			}
		}
	}

	penalty := s.DropPenalty(g.Horizon)
	for _, id := range g.EventOrder {
		if group := g.Groups[id]; len(group) > 0 {
			m.Disjunctions = append(m.Disjunctions, solver.Disjunction{
				Nodes:          append([]int(nil), group...),
				Penalty:        penalty,
				MaxCardinality: 1,
			})
		}
	}
	return m
}

// translate walks a validated tour into stops and classifies unvisited events.
func (s *Optimal) translate(ctx context.Context, g *Graph, a *solver.Assignment, travelSec [][]int, sources [][]travel.Attribution, res *Result) {
	visited := make(map[string]bool)
	walked := 0
	prev := a.Tour[0].Node

	for _, v := range a.Tour[1:] {
		node := g.Nodes[v.Node]
		if node.Role != RoleSession {
			prev = v.Node
			continue
		}

		leg := travelSec[prev][v.Node]
		walked += leg
		stop := Stop{
			EventID:           node.EventID,
			EventName:         node.Candidate.EventName,
			SessionStart:      node.Candidate.Start,
			SessionEnd:        node.Candidate.End,
			Arrive:            g.At(v.Cumul),
			Depart:            g.At(v.Cumul + node.ServiceSec),
			DwellSec:          node.ServiceSec,
			TravelSecFromPrev: leg,
			WalkedSecTotal:    walked,
			Venue:             node.Candidate.Venue,
			Source:            Source{Travel: sources[prev][v.Node]},
		}
		attachGeometry(ctx, s.geometry, s.logger, &stop, travel.Query{
			Origin:       *g.Nodes[prev].Position,
			Destination:  *node.Position,
			Departure:    g.At(v.Cumul),
			WalkingSpeed: g.WalkingSpeed,
		})

		res.Route = append(res.Route, stop)
		visited[node.EventID] = true
		prev = v.Node
	}

	for _, id := range g.EventOrder {
		if visited[id] {
			continue
		}
		res.Dropped = append(res.Dropped, Drop{
			EventID:            id,
			Reason:             Classify(g.Windows(id), g.Horizon),
			SessionsConsidered: len(g.Groups[id]),
		})
	}
}
