package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/gopti/gopti/internal/api/models"
	"github.com/gopti/gopti/internal/api/response"
	"github.com/gopti/gopti/internal/catalog"
	"github.com/gopti/gopti/internal/trip"
)

// SessionLister lists the catalog sessions of a day.
type SessionLister interface {
	ListSessions(ctx context.Context, day time.Time) ([]catalog.Listing, error)
}

// EventsHandler handles the events listing.
type EventsHandler struct {
	catalog SessionLister
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(catalog SessionLister) *EventsHandler {
	return &EventsHandler{catalog: catalog}
}

// ListEvents handles GET /v1/events?date=YYYY-MM-DD.
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		response.Validation(w, r, &trip.ValidationError{Fields: []trip.FieldError{
			{Field: "date", Message: "is required"},
		}})
		return
	}
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		response.Validation(w, r, &trip.ValidationError{Fields: []trip.FieldError{
			{Field: "date", Message: "must be a date in YYYY-MM-DD format"},
		}})
		return
	}

	listings, err := h.catalog.ListSessions(r.Context(), day)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("date", date).Msg("listing sessions failed")
		response.ServiceUnavailable(w, r, "the session catalog is unavailable")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewEventListResponse(date, listings))
}
