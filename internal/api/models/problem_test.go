package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopti/gopti/internal/api/models"
	"github.com/gopti/gopti/internal/trip"
)

func TestProblem_NewProblem(t *testing.T) {
	p := models.NewProblem(models.ProblemTypeValidation, "Validation error", http.StatusBadRequest, "req_test123")

	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, "Validation error", p.Title)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Empty(t, p.Detail)
	assert.Empty(t, p.Instance)
	assert.Nil(t, p.Errors)
}

func TestProblem_Builders(t *testing.T) {
	p := models.NewNotFound("req_1", "").
		WithDetail("no such flag").
		WithInstance("/v1/admin/feature-flags/nope")

	assert.Equal(t, "no such flag", p.Detail)
	assert.Equal(t, "/v1/admin/feature-flags/nope", p.Instance)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "malformed JSON body")
	p.Instance = "/v1/solve"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ProblemContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, models.ProblemTypeMalformedBody, result.Type)
	assert.Equal(t, "malformed JSON body", result.Detail)
	assert.Equal(t, "/v1/solve", result.Instance)
	assert.Equal(t, "req_test123", result.TraceID)
}

func TestNewValidationProblem(t *testing.T) {
	verr := &trip.ValidationError{Fields: []trip.FieldError{
		{Field: "events", Message: "must not be empty"},
		{Field: "endTime", Message: "must be after start.time"},
	}}

	p := models.NewValidationProblem("req_1", verr)

	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	require.Len(t, p.Errors, 2)
	assert.Equal(t, models.FieldError{Field: "events", Message: "must not be empty"}, p.Errors[0])
	assert.Equal(t, "endTime", p.Errors[1].Field)
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name    string
		problem *models.Problem
		status  int
		typ     string
	}{
		{"unauthorized", models.NewUnauthorized("r", "d"), http.StatusUnauthorized, models.ProblemTypeUnauthorized},
		{"forbidden", models.NewForbidden("r", "d"), http.StatusForbidden, models.ProblemTypeForbidden},
		{"not found", models.NewNotFound("r", "d"), http.StatusNotFound, models.ProblemTypeNotFound},
		{"media type", models.NewUnsupportedMediaType("r", "d"), http.StatusUnsupportedMediaType, models.ProblemTypeUnsupportedType},
		{"rate limited", models.NewTooManyRequests("r", "d"), http.StatusTooManyRequests, models.ProblemTypeTooManyRequests},
		{"internal", models.NewInternalError("r", "d"), http.StatusInternalServerError, models.ProblemTypeInternal},
		{"unavailable", models.NewServiceUnavailable("r", "d"), http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.problem.Status)
			assert.Equal(t, tt.typ, tt.problem.Type)
			assert.Equal(t, "d", tt.problem.Detail)
			assert.Equal(t, "r", tt.problem.TraceID)
			assert.NotEmpty(t, tt.problem.Title)
		})
	}
}
