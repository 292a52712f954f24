package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gopti/gopti/internal/travel"
	"github.com/gopti/gopti/internal/trip"
)

// Greedy visits events in request order, taking the first session of each that
// still fits. It never backtracks.
type Greedy struct {
	cost     travel.CostProvider
	geometry travel.GeometryProvider
	logger   zerolog.Logger
}

// NewGreedy creates a greedy scheduler. Providers that are not already
// fallback-protected are wrapped so that lookups cannot fail.
func NewGreedy(cost travel.CostProvider, geometry travel.GeometryProvider, logger zerolog.Logger) *Greedy {
	return &Greedy{
		cost:     resilientCost(cost, logger),
		geometry: resilientGeometry(geometry, logger),
		logger:   logger,
	}
}

// Schedule builds an itinerary from g.
func (s *Greedy) Schedule(ctx context.Context, g *Graph) (*Result, error) {
	res := newResult(SolverGreedy)

	cur := 0
	pos := *g.Nodes[g.Depot()].Position
	walked := 0

	for _, eventID := range g.EventOrder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		group := g.Groups[eventID]
		if len(group) == 0 {
			res.Dropped = append(res.Dropped, Drop{EventID: eventID, Reason: ReasonNoSessions})
			continue
		}

		var (
			attempts = make([]Attempt, 0, len(group))
			picked   *Node
			leg      travel.Cost
			arrival  int
			depart   int
		)
		for _, idx := range group {
			node := &g.Nodes[idx]
			cost, err := s.cost.Cost(ctx, travel.Query{
				Origin:       pos,
				Destination:  *node.Position,
				Departure:    g.At(cur),
				WalkingSpeed: g.WalkingSpeed,
			})
			if err != nil {
				return nil, fmt.Errorf("travel cost to %s: %w", eventID, err)
			}

			arr := max(cur+cost.Seconds, node.Window.Start)
			dep := arr + node.ServiceSec
			sessionEnd := trip.Offset(g.StartTime, node.Candidate.End)

			attempts = append(attempts, Attempt{
				SessionStart: node.Candidate.Start,
				SessionEnd:   node.Candidate.End,
				WalkSec:      cost.Seconds,
				Arrival:      g.At(arr),
				Depart:       g.At(dep),
			})

			if dep <= sessionEnd && dep <= g.Horizon {
				picked, leg, arrival, depart = node, cost, arr, dep
				break
			}
		}

		if picked == nil {
			reason := Classify(g.Windows(eventID), g.Horizon)
			if reason == ReasonDroppedBySolver {
				reason = ReasonNoFeasibleSession
			}
			res.Dropped = append(res.Dropped, Drop{
				EventID:            eventID,
				Reason:             reason,
				SessionsConsidered: len(group),
				Attempts:           attempts,
			})
			continue
		}

		stop := Stop{
			EventID:           eventID,
			EventName:         picked.Candidate.EventName,
			SessionStart:      picked.Candidate.Start,
			SessionEnd:        picked.Candidate.End,
			Arrive:            g.At(arrival),
			Depart:            g.At(depart),
			DwellSec:          picked.ServiceSec,
			TravelSecFromPrev: leg.Seconds,
			Venue:             picked.Candidate.Venue,
			Source:            Source{Travel: leg.Attribution},
		}
		attachGeometry(ctx, s.geometry, s.logger, &stop, travel.Query{
			Origin:       pos,
			Destination:  *picked.Position,
			Departure:    g.At(cur),
			WalkingSpeed: g.WalkingSpeed,
		})

		walked += leg.Seconds
		stop.WalkedSecTotal = walked
		res.Route = append(res.Route, stop)

		cur = depart
		pos = *picked.Position
	}

	res.finish()
	return res, nil
}
