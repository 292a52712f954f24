package models

import (
	"encoding/json"
	"net/http"

	"github.com/gopti/gopti/internal/trip"
)

// ProblemContentType is the media type of every error body.
const ProblemContentType = "application/problem+json"

// Problem is an RFC 7807 error document.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError is one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Problem type URIs.
const (
	ProblemTypeValidation      = "https://gopti.dev/problems/validation-error"
	ProblemTypeMalformedBody   = "https://gopti.dev/problems/malformed-body"
	ProblemTypeUnauthorized    = "https://gopti.dev/problems/unauthorized"
	ProblemTypeForbidden       = "https://gopti.dev/problems/forbidden"
	ProblemTypeNotFound        = "https://gopti.dev/problems/not-found"
	ProblemTypeUnsupportedType = "https://gopti.dev/problems/unsupported-media-type"
	ProblemTypeTooManyRequests = "https://gopti.dev/problems/too-many-requests"
	ProblemTypeInternal        = "https://gopti.dev/problems/internal-error"
	ProblemTypeUnavailable     = "https://gopti.dev/problems/service-unavailable"
)

// NewProblem creates a Problem with the given type, title and status.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// WithDetail sets the occurrence-specific explanation.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance sets the request path the problem occurred on.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// Write encodes the Problem with its status code.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", ProblemContentType)
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewValidationProblem converts a rejected trip request into a 400 Problem.
func NewValidationProblem(traceID string, verr *trip.ValidationError) *Problem {
	p := NewProblem(ProblemTypeValidation, "Validation error", http.StatusBadRequest, traceID)
	p.Detail = "the request is invalid"
	p.Errors = make([]FieldError, len(verr.Fields))
	for i, f := range verr.Fields {
		p.Errors[i] = FieldError{Field: f.Field, Message: f.Message}
	}
	return p
}

// NewBadRequest creates a 400 problem for input that could not be decoded.
func NewBadRequest(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeMalformedBody, "Bad request", http.StatusBadRequest, traceID).WithDetail(detail)
}

// NewUnauthorized creates a 401 problem.
func NewUnauthorized(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized, traceID).WithDetail(detail)
}

// NewForbidden creates a 403 problem.
func NewForbidden(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeForbidden, "Forbidden", http.StatusForbidden, traceID).WithDetail(detail)
}

// NewNotFound creates a 404 problem.
func NewNotFound(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeNotFound, "Not found", http.StatusNotFound, traceID).WithDetail(detail)
}

// NewUnsupportedMediaType creates a 415 problem.
func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnsupportedType, "Unsupported media type", http.StatusUnsupportedMediaType, traceID).WithDetail(detail)
}

// NewTooManyRequests creates a 429 problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, traceID).WithDetail(detail)
}

// NewInternalError creates a 500 problem.
func NewInternalError(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, traceID).WithDetail(detail)
}

// NewServiceUnavailable creates a 503 problem.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable, traceID).WithDetail(detail)
}
