package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gopti/gopti/internal/geo"
	"github.com/gopti/gopti/internal/trip"
)

// Querier is the subset of *pgxpool.Pool the repository needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	db Querier
}

// NewPostgresRepository creates a new PostgreSQL catalog repository.
func NewPostgresRepository(db Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FetchCandidates returns the requested events' sessions overlapping day.
func (r *PostgresRepository) FetchCandidates(ctx context.Context, eventIDs []string, day time.Time) ([]trip.SessionCandidate, error) {
	if len(eventIDs) == 0 {
		return []trip.SessionCandidate{}, nil
	}
	from, to := dayBounds(day)

	query := `
		SELECT
			e.id, e.event_name, COALESCE(e.min_dwell_min, 0),
			v.name, COALESCE(v.address, ''), v.lat, v.lng,
			s.start_ts, s.end_ts
		FROM events e
		JOIN venues v ON v.id = e.venue_id
		JOIN event_sessions s ON s.event_id = e.id
		WHERE e.id = ANY($1)
		  AND s.start_ts < $3
		  AND s.end_ts > $2
		ORDER BY s.start_ts, e.id
	`

	rows, err := r.db.Query(ctx, query, eventIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	candidates := []trip.SessionCandidate{}
	for rows.Next() {
		var c trip.SessionCandidate
		if err := rows.Scan(
			&c.EventID,
			&c.EventName,
			&c.MinDwellMinutes,
			&c.Venue.Name,
			&c.Venue.Address,
			&c.Venue.Position.Lat,
			&c.Venue.Position.Lng,
			&c.Start,
			&c.End,
		); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates: %w", err)
	}

	return candidates, nil
}

// ListSessions returns every session overlapping day.
func (r *PostgresRepository) ListSessions(ctx context.Context, day time.Time) ([]Listing, error) {
	from, to := dayBounds(day)

	query := `
		SELECT
			e.id, e.event_name, COALESCE(e.event_type, ''), COALESCE(e.url, ''),
			COALESCE(e.short_description, ''), COALESCE(e.artist, ''),
			COALESCE(e.require_booking, false), COALESCE(e.booking_detail, ''),
			v.name, COALESCE(v.address, ''), v.lat, v.lng,
			s.start_ts, s.end_ts
		FROM events e
		JOIN venues v ON v.id = e.venue_id
		JOIN event_sessions s ON s.event_id = e.id
		WHERE s.start_ts < $2
		  AND s.end_ts > $1
		ORDER BY s.start_ts, e.id
	`

	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	listings := []Listing{}
	for rows.Next() {
		var l Listing
		if err := rows.Scan(
			&l.EventID,
			&l.EventName,
			&l.EventType,
			&l.URL,
			&l.ShortDescription,
			&l.Artist,
			&l.RequireBooking,
			&l.BookingDetail,
			&l.Venue.Name,
			&l.Venue.Address,
			&l.Venue.Position.Lat,
			&l.Venue.Position.Lng,
			&l.Start,
			&l.End,
		); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	return listings, nil
}

// Venues returns the venues hosting sessions on day.
func (r *PostgresRepository) Venues(ctx context.Context, day time.Time) ([]Venue, error) {
	from, to := dayBounds(day)

	query := `
		SELECT DISTINCT v.id, v.name, COALESCE(v.address, ''), v.lat, v.lng
		FROM venues v
		JOIN events e ON e.venue_id = v.id
		JOIN event_sessions s ON s.event_id = e.id
		WHERE s.start_ts < $2
		  AND s.end_ts > $1
		ORDER BY v.id
	`

	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying venues: %w", err)
	}
	defer rows.Close()

	venues := []Venue{}
	for rows.Next() {
		var (
			v   Venue
			pos geo.Coordinate
		)
		if err := rows.Scan(&v.ID, &v.Name, &v.Address, &pos.Lat, &pos.Lng); err != nil {
			return nil, fmt.Errorf("scanning venue: %w", err)
		}
		v.Position = pos
		venues = append(venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating venues: %w", err)
	}

	return venues, nil
}
