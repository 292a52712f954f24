package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gopti/gopti/internal/api/models"
	"github.com/gopti/gopti/internal/api/response"
	"github.com/gopti/gopti/internal/scheduler"
	"github.com/gopti/gopti/internal/trip"
)

// maxSolveBody caps the solve request body.
const maxSolveBody = 1 << 20

// Solver schedules a trip request.
type Solver interface {
	Solve(ctx context.Context, req trip.Request, opts scheduler.SolveOptions) (*scheduler.Result, error)
}

// DebugGate reports whether the debug solve endpoint is exposed.
type DebugGate interface {
	IsDebugSolveEnabled(ctx context.Context) bool
}

// SolveHandler handles itinerary solving.
type SolveHandler struct {
	solver Solver
	gate   DebugGate
}

// NewSolveHandler creates a new SolveHandler. A nil gate hides the debug
// endpoint.
func NewSolveHandler(solver Solver, gate DebugGate) *SolveHandler {
	return &SolveHandler{solver: solver, gate: gate}
}

// Solve handles POST /v1/solve.
func (h *SolveHandler) Solve(w http.ResponseWriter, r *http.Request) {
	res, ok := h.solve(w, r, false)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewSolveResponse(res))
}

// DebugSolve handles POST /v1/debug/solve. It answers 404 while the
// debug_solve_enabled flag is off.
func (h *SolveHandler) DebugSolve(w http.ResponseWriter, r *http.Request) {
	if h.gate == nil || !h.gate.IsDebugSolveEnabled(r.Context()) {
		response.NotFound(w, r, "debug solve is disabled")
		return
	}
	res, ok := h.solve(w, r, true)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewDebugSolveResponse(res))
}

func (h *SolveHandler) solve(w http.ResponseWriter, r *http.Request, debug bool) (*scheduler.Result, bool) {
	var body models.SolveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSolveBody))
	if err := dec.Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.BadRequest(w, r, "request body is too large")
			return nil, false
		}
		response.BadRequest(w, r, "request body is not valid JSON: "+err.Error())
		return nil, false
	}

	res, err := h.solver.Solve(r.Context(), body.ToTrip(), scheduler.SolveOptions{Debug: debug})
	if err != nil {
		var verr *trip.ValidationError
		switch {
		case errors.As(err, &verr):
			response.Validation(w, r, verr)
		case errors.Is(err, scheduler.ErrCatalogUnavailable):
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("catalog unavailable")
			response.ServiceUnavailable(w, r, "the session catalog is unavailable")
		default:
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("solve failed")
			response.InternalError(w, r, "the trip could not be scheduled")
		}
		return nil, false
	}
	return res, true
}
