package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/gopti/gopti/internal/api/middleware"
	"github.com/gopti/gopti/internal/api/models"
	"github.com/gopti/gopti/internal/api/response"
	"github.com/gopti/gopti/internal/featureflags"
	"github.com/gopti/gopti/internal/trip"
)

// FlagStore is the admin view of the feature flag service.
type FlagStore interface {
	ListFlags(ctx context.Context) []featureflags.Flag
	SetFlag(ctx context.Context, flag *featureflags.Flag) error
	ResetFlag(ctx context.Context, key string) error
	InvalidateCache()
}

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	flags FlagStore
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(flags FlagStore) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{flags: flags}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	flags := h.flags.ListFlags(r.Context())
	out := models.FeatureFlagList{Flags: make([]models.FeatureFlag, len(flags))}
	for i, f := range flags {
		out.Flags[i] = toModel(f)
	}
	response.JSON(w, r, http.StatusOK, out)
}

// UpdateFeatureFlag handles PUT /v1/admin/feature-flags/{key}.
func (h *FeatureFlagsHandler) UpdateFeatureFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var body models.UpdateFeatureFlagRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body); err != nil {
		response.BadRequest(w, r, "request body is not valid JSON")
		return
	}

	flag := &featureflags.Flag{
		Key:       key,
		Value:     body.Value,
		UpdatedBy: middleware.GetSubject(r.Context()),
	}
	if err := h.flags.SetFlag(r.Context(), flag); err != nil {
		h.writeFlagError(w, r, key, err)
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Str("flag", key).
		Interface("value", body.Value).
		Str("operator", flag.UpdatedBy).
		Msg("feature flag changed")
	response.JSON(w, r, http.StatusOK, toModel(*flag))
}

// ResetFeatureFlag handles DELETE /v1/admin/feature-flags/{key}.
func (h *FeatureFlagsHandler) ResetFeatureFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.flags.ResetFlag(r.Context(), key); err != nil {
		h.writeFlagError(w, r, key, err)
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Str("flag", key).
		Str("operator", middleware.GetSubject(r.Context())).
		Msg("feature flag reset")
	response.NoContent(w, r)
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.flags.InvalidateCache()
	response.NoContent(w, r)
}

func (h *FeatureFlagsHandler) writeFlagError(w http.ResponseWriter, r *http.Request, key string, err error) {
	switch {
	case errors.Is(err, featureflags.ErrUnknownFlag):
		response.NotFound(w, r, "unknown feature flag "+key)
	case errors.Is(err, featureflags.ErrInvalidValue):
		response.Validation(w, r, &trip.ValidationError{Fields: []trip.FieldError{
			{Field: "value", Message: "must be a boolean"},
		}})
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("flag", key).Msg("feature flag update failed")
		response.InternalError(w, r, "the feature flag could not be stored")
	}
}

func toModel(f featureflags.Flag) models.FeatureFlag {
	return models.FeatureFlag{Key: f.Key, Value: f.Value, UpdatedBy: f.UpdatedBy, UpdatedAt: f.UpdatedAt}
}
