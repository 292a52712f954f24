package models

import (
	"time"

	"github.com/gopti/gopti/internal/geo"
	"github.com/gopti/gopti/internal/scheduler"
	"github.com/gopti/gopti/internal/travel"
	"github.com/gopti/gopti/internal/trip"
)

// StartPoint is where and when the trip begins.
type StartPoint struct {
	Lat  float64   `json:"lat"`
	Lng  float64   `json:"lng"`
	Time time.Time `json:"time"`
}

// SolveEvent is one requested event. dwell_min is accepted as an alias of
// dwellMin.
type SolveEvent struct {
	ID            string `json:"id"`
	DwellMin      *int   `json:"dwellMin,omitempty"`
	DwellMinSnake *int   `json:"dwell_min,omitempty"`
}

// SolveRequest is the body of POST /v1/solve.
type SolveRequest struct {
	Start              StartPoint   `json:"start"`
	EndTime            time.Time    `json:"endTime"`
	Events             []SolveEvent `json:"events"`
	WalkingSpeed       *float64     `json:"walkingSpeed,omitempty"`
	CompressDwellToMin bool         `json:"compressDwellToMin"`
}

// ToTrip converts the wire request. An absent walkingSpeed takes the default;
// an explicit one is passed through for validation.
func (r SolveRequest) ToTrip() trip.Request {
	speed := trip.DefaultWalkingSpeed
	if r.WalkingSpeed != nil {
		speed = *r.WalkingSpeed
	}
	events := make([]trip.EventRequest, len(r.Events))
	for i, ev := range r.Events {
		dwell := ev.DwellMin
		if dwell == nil {
			dwell = ev.DwellMinSnake
		}
		events[i] = trip.EventRequest{ID: ev.ID, DwellMinutes: dwell}
	}
	return trip.Request{
		Start:              geo.Coordinate{Lat: r.Start.Lat, Lng: r.Start.Lng},
		StartTime:          r.Start.Time,
		EndTime:            r.EndTime,
		Events:             events,
		WalkingSpeed:       speed,
		CompressDwellToMin: r.CompressDwellToMin,
	}
}

// StopSource attributes the travel cost and the path of a stop.
type StopSource struct {
	Travel     travel.Attribution  `json:"travel"`
	Directions *travel.Attribution `json:"directions,omitempty"`
}

// Stop is one visited session.
type Stop struct {
	EventID           string     `json:"eventId"`
	EventName         string     `json:"eventName,omitempty"`
	SessionStart      time.Time  `json:"sessionStart"`
	SessionEnd        time.Time  `json:"sessionEnd"`
	Arrive            time.Time  `json:"arrive"`
	Depart            time.Time  `json:"depart"`
	DwellSec          int        `json:"dwellSec"`
	TravelSecFromPrev int        `json:"travelSecFromPrev"`
	WalkedSecTotal    int        `json:"walkedSecTotal"`
	Venue             Venue      `json:"venue"`
	Polyline          string     `json:"polyline,omitempty"`
	Source            StopSource `json:"source"`
}

// Attempt is one session the greedy scheduler tried before dropping an event.
type Attempt struct {
	SessionStart time.Time `json:"sessionStart"`
	SessionEnd   time.Time `json:"sessionEnd"`
	WalkSec      int       `json:"walkSec"`
	Arrival      time.Time `json:"arrival"`
	Depart       time.Time `json:"depart"`
}

// DropDetail carries free-form drop diagnostics.
type DropDetail struct {
	Message  string    `json:"message,omitempty"`
	Attempts []Attempt `json:"attempts,omitempty"`
}

// Dropped explains an event missing from the route.
type Dropped struct {
	EventID            string     `json:"eventId"`
	Reason             string     `json:"reason"`
	SessionsConsidered int        `json:"sessionsConsidered"`
	Detail             DropDetail `json:"detail"`
}

// SolveMetrics summarizes the run.
type SolveMetrics struct {
	RunID          string `json:"runId"`
	Visited        int    `json:"visited"`
	Dropped        int    `json:"dropped"`
	TotalWalkSec   int    `json:"totalWalkSec"`
	Solver         string `json:"solver"`
	SolveMs        int64  `json:"solveMs"`
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// SolveResponse is the body returned by POST /v1/solve.
type SolveResponse struct {
	Route   []Stop       `json:"route"`
	Dropped []Dropped    `json:"dropped"`
	Metrics SolveMetrics `json:"metrics"`
}

// DebugNode is one routing graph node.
type DebugNode struct {
	Index        int              `json:"index"`
	Role         string           `json:"role"`
	EventID      string           `json:"eventId,omitempty"`
	SessionStart *time.Time       `json:"sessionStart,omitempty"`
	SessionEnd   *time.Time       `json:"sessionEnd,omitempty"`
	Venue        *Venue           `json:"venue,omitempty"`
	ServiceSec   int              `json:"serviceSec"`
	Window       scheduler.Window `json:"window"`
}

// MatrixMeta describes the model the optimal scheduler submitted.
type MatrixMeta struct {
	Travel             [][]int                `json:"travel"`
	Sources            [][]travel.Attribution `json:"sources"`
	Penalty            int64                  `json:"penalty"`
	HorizonSec         int                    `json:"horizonSec"`
	SlackMaxSec        int                    `json:"slackMaxSec"`
	EventCount         int                    `json:"eventCount"`
	CompressDwellToMin bool                   `json:"compressDwellToMin"`
}

// DebugSolveResponse adds the routing graph and, for optimal runs, the
// travel matrix.
type DebugSolveResponse struct {
	SolveResponse
	Nodes      []DebugNode `json:"nodes"`
	MatrixMeta *MatrixMeta `json:"matrixMeta,omitempty"`
}

// NewSolveResponse renders a scheduling result.
func NewSolveResponse(res *scheduler.Result) SolveResponse {
	out := SolveResponse{
		Route:   make([]Stop, len(res.Route)),
		Dropped: make([]Dropped, len(res.Dropped)),
		Metrics: SolveMetrics{
			RunID:          res.Metrics.RunID,
			Visited:        res.Metrics.Visited,
			Dropped:        res.Metrics.Dropped,
			TotalWalkSec:   res.Metrics.TotalWalkSec,
			Solver:         res.Metrics.Solver,
			SolveMs:        res.Metrics.SolveMs,
			FallbackReason: res.Metrics.FallbackReason,
		},
	}

	for i, s := range res.Route {
		out.Route[i] = Stop{
			EventID:           s.EventID,
			EventName:         s.EventName,
			SessionStart:      s.SessionStart,
			SessionEnd:        s.SessionEnd,
			Arrive:            s.Arrive,
			Depart:            s.Depart,
			DwellSec:          s.DwellSec,
			TravelSecFromPrev: s.TravelSecFromPrev,
			WalkedSecTotal:    s.WalkedSecTotal,
			Venue:             venueOf(s.Venue),
			Polyline:          s.Polyline,
			Source:            StopSource{Travel: s.Source.Travel, Directions: s.Source.Directions},
		}
	}

	for i, d := range res.Dropped {
		detail := DropDetail{Message: d.Message}
		for _, a := range d.Attempts {
			detail.Attempts = append(detail.Attempts, Attempt(a))
		}
		out.Dropped[i] = Dropped{
			EventID:            d.EventID,
			Reason:             string(d.Reason),
			SessionsConsidered: d.SessionsConsidered,
			Detail:             detail,
		}
	}
	return out
}

// NewDebugSolveResponse renders a result together with its debug snapshot.
func NewDebugSolveResponse(res *scheduler.Result) DebugSolveResponse {
	out := DebugSolveResponse{SolveResponse: NewSolveResponse(res), Nodes: []DebugNode{}}
	if res.Debug == nil {
		return out
	}

	for _, n := range res.Debug.Nodes {
		node := DebugNode{
			Index:        n.Index,
			Role:         string(n.Role),
			EventID:      n.EventID,
			SessionStart: n.SessionStart,
			SessionEnd:   n.SessionEnd,
			ServiceSec:   n.ServiceSec,
			Window:       n.Window,
		}
		if n.Position != nil {
			v := venueOf(*n.Position)
			node.Venue = &v
		}
		out.Nodes = append(out.Nodes, node)
	}

	if m := res.Debug.Matrix; m != nil {
		out.MatrixMeta = &MatrixMeta{
			Travel:             m.Travel,
			Sources:            m.Sources,
			Penalty:            m.Penalty,
			HorizonSec:         m.HorizonSec,
			SlackMaxSec:        m.SlackMaxSec,
			EventCount:         m.EventCount,
			CompressDwellToMin: m.CompressDwell,
		}
	}
	return out
}

func venueOf(v trip.Venue) Venue {
	return Venue{Name: v.Name, Address: v.Address, Lat: v.Position.Lat, Lng: v.Position.Lng}
}
