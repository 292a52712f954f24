package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gopti/gopti/internal/solver"
	"github.com/gopti/gopti/internal/telemetry"
	"github.com/gopti/gopti/internal/travel"
	"github.com/gopti/gopti/internal/trip"
)

// ErrCatalogUnavailable is returned when candidate sessions cannot be fetched.
var ErrCatalogUnavailable = errors.New("session catalog unavailable")

// Fallback reasons reported in Metrics.FallbackReason.
const (
	FallbackDisabledByFlag = "disabled_by_flag"
	FallbackUnavailable    = "unavailable"
	FallbackBackendError   = "backend_error"
)

// CandidateSource fetches the sessions of the requested events on a day.
type CandidateSource interface {
	FetchCandidates(ctx context.Context, eventIDs []string, day time.Time) ([]trip.SessionCandidate, error)
}

// Flags exposes the runtime switches the service consults per request.
type Flags interface {
	IsOptimalSolverDisabled(ctx context.Context) bool
}

// Recorder receives per-run measurements.
type Recorder interface {
	ObserveSolve(solverName string, elapsed time.Duration)
	ObserveDrop(reason string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSolve(string, time.Duration) {}
func (nopRecorder) ObserveDrop(string)                 {}

// ServiceConfig holds configuration for the scheduling service.
type ServiceConfig struct {
	// Candidates supplies session data (required).
	Candidates CandidateSource

	// Capability decides whether the optimal scheduler can run.
	Capability solver.Capability

	Cost     travel.CostProvider
	Geometry travel.GeometryProvider

	// Flags is optional. Without it the optimal scheduler is never disabled.
	Flags Flags

	// Recorder is optional.
	Recorder Recorder

	TimeLimit         time.Duration
	SlackMaxSec       int
	DropPenalty       int64
	MatrixConcurrency int

	// DisableInfeasibleFallback returns infeasible and timed-out optimal runs
	// as is instead of retrying with the greedy scheduler.
	DisableInfeasibleFallback bool

	Logger zerolog.Logger
}

// SolveOptions tunes a single solve.
type SolveOptions struct {
	// Debug attaches the graph (and matrix for optimal runs) to the result.
	Debug bool
}

// Service validates trip requests, builds the routing graph and picks a
// scheduler for it.
type Service struct {
	candidates           CandidateSource
	capability           solver.Capability
	optimal              *Optimal
	greedy               *Greedy
	flags                Flags
	recorder             Recorder
	fallbackOnInfeasible bool
	logger               zerolog.Logger
}

// NewService creates a new scheduling service.
func NewService(cfg ServiceConfig) *Service {
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	s := &Service{
		candidates:           cfg.Candidates,
		capability:           cfg.Capability,
		greedy:               NewGreedy(cfg.Cost, cfg.Geometry, cfg.Logger),
		flags:                cfg.Flags,
		recorder:             recorder,
		fallbackOnInfeasible: !cfg.DisableInfeasibleFallback,
		logger:               cfg.Logger,
	}

	if backend, ok := cfg.Capability.Backend(); ok {
		s.optimal = NewOptimal(OptimalConfig{
			Backend:           backend,
			Cost:              cfg.Cost,
			Geometry:          cfg.Geometry,
			TimeLimit:         cfg.TimeLimit,
			SlackMaxSec:       cfg.SlackMaxSec,
			DropPenalty:       cfg.DropPenalty,
			MatrixConcurrency: cfg.MatrixConcurrency,
			Logger:            cfg.Logger,
		})
	}
	return s
}

// Capability returns the optimization capability resolved at startup.
func (s *Service) Capability() solver.Capability {
	return s.capability
}

// Solve validates req and returns an itinerary. Only validation and catalog
// failures are returned as errors; scheduling problems are reported in the
// result.
func (s *Service) Solve(ctx context.Context, req trip.Request, opts SolveOptions) (res *Result, err error) {
	runID := uuid.NewString()
	ctx, span := telemetry.StartSpan(ctx, "scheduler.solve",
		attribute.String("scheduler.run_id", runID),
		attribute.Int("trip.events", len(req.Events)),
		attribute.Bool("trip.compress_dwell", req.CompressDwellToMin),
	)
	defer func() {
		if res != nil {
			span.SetAttributes(
				attribute.String("scheduler.solver", res.Metrics.Solver),
				attribute.Int("scheduler.visited", res.Metrics.Visited),
				attribute.Int("scheduler.dropped", res.Metrics.Dropped),
			)
		}
		telemetry.End(span, err)
	}()

	if err = req.Validate(); err != nil {
		return nil, err
	}

	candidates, err := s.candidates.FetchCandidates(ctx, req.EventIDs(), req.Day())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	g := BuildGraph(req, candidates)
	logger := s.logger.With().
		Str("run_id", runID).
		Int("events", len(g.EventOrder)).
		Int("sessions", g.SessionCount()).
		Int("horizon_sec", g.Horizon).
		Logger()

	started := time.Now()
	res, err = s.schedule(ctx, g, opts, logger)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(started)
	res.Metrics.RunID = runID
	res.Metrics.SolveMs = elapsed.Milliseconds()

	s.recorder.ObserveSolve(res.Metrics.Solver, elapsed)
	for _, d := range res.Dropped {
		s.recorder.ObserveDrop(string(d.Reason))
	}

	logger.Info().
		Str("solver", res.Metrics.Solver).
		Str("fallback_reason", res.Metrics.FallbackReason).
		Int("visited", res.Metrics.Visited).
		Int("dropped", res.Metrics.Dropped).
		Int64("solve_ms", res.Metrics.SolveMs).
		Msg("trip solved")

	return res, nil
}

func (s *Service) schedule(ctx context.Context, g *Graph, opts SolveOptions, logger zerolog.Logger) (*Result, error) {
	switch {
	case s.optimal == nil:
		return s.runGreedy(ctx, g, opts, SolverGreedy, FallbackUnavailable)
	case s.flags != nil && s.flags.IsOptimalSolverDisabled(ctx):
		return s.runGreedy(ctx, g, opts, SolverGreedy, FallbackDisabledByFlag)
	}

	res, err := s.optimal.Schedule(ctx, g, opts.Debug)
	if err != nil {
		logger.Warn().Err(err).
			Str("backend", s.capability.Name()).
			Msg("optimal scheduler failed, falling back to greedy")
		return s.runGreedy(ctx, g, opts, SolverGreedyFallback, FallbackBackendError)
	}

	switch res.status {
	case solver.StatusInfeasible, solver.StatusTimeout:
		reason := string(ReasonInfeasible)
		if res.status == solver.StatusTimeout {
			reason = string(ReasonTimeout)
		}
		if !s.fallbackOnInfeasible {
			logger.Warn().Str("status", string(res.status)).Msg("optimal scheduler found no tour")
			return res, nil
		}
		logger.Warn().Str("status", string(res.status)).Msg("optimal scheduler found no tour, falling back to greedy")
		return s.runGreedy(ctx, g, opts, SolverGreedyFallback, reason)
	}
	return res, nil
}

func (s *Service) runGreedy(ctx context.Context, g *Graph, opts SolveOptions, name, reason string) (*Result, error) {
	res, err := s.greedy.Schedule(ctx, g)
	if err != nil {
		return nil, err
	}
	res.Metrics.Solver = name
	res.Metrics.FallbackReason = reason
	if opts.Debug {
		res.Debug = &Debug{Nodes: debugNodes(g)}
	}
	return res, nil
}
