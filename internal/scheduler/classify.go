package scheduler

// Reason explains why an event is not on the itinerary.
type Reason string

const (
	// ReasonNoSessions means the catalog has no session for the event on the trip date.
	ReasonNoSessions Reason = "no_sessions_for_date"
	// ReasonTimeWindowConflict means no session leaves room for the dwell time.
	ReasonTimeWindowConflict Reason = "time_window_conflict"
	// ReasonBeyondHorizon means every session starts at or after trip end.
	ReasonBeyondHorizon Reason = "beyond_trip_horizon"
	// ReasonDroppedBySolver means the backend preferred paying the skip penalty.
	ReasonDroppedBySolver Reason = "dropped_by_solver"
	// ReasonNoFeasibleSession means sessions exist but none fit after earlier stops.
	ReasonNoFeasibleSession Reason = "no_feasible_session"
	// ReasonInfeasible means the backend proved the model infeasible.
	ReasonInfeasible Reason = "infeasible"
	// ReasonTimeout means the backend found no solution within its time limit.
	ReasonTimeout Reason = "timeout"
)

// Classify explains an unvisited event from its session windows alone. The
// result does not depend on the order of windows.
func Classify(windows []Window, horizon int) Reason {
	if len(windows) == 0 {
		return ReasonNoSessions
	}
	allDegenerate, allBeyond := true, true
	for _, w := range windows {
		if !w.Degenerate() {
			allDegenerate = false
		}
		if w.Start < horizon {
			allBeyond = false
		}
	}
	switch {
	case allDegenerate:
		return ReasonTimeWindowConflict
	case allBeyond:
		return ReasonBeyondHorizon
	default:
		return ReasonDroppedBySolver
	}
}
