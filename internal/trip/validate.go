package trip

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is wrapped by every validation failure.
var ErrInvalidRequest = errors.New("invalid trip request")

// FieldError describes a single rejected field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects every field problem found in a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return ErrInvalidRequest.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate rejects malformed requests. It never corrects values.
func (r Request) Validate() error {
	verr := &ValidationError{}

	if err := r.Start.Validate(); err != nil {
		verr.add("start", "%s", err.Error())
	}
	if r.StartTime.IsZero() {
		verr.add("start.time", "is required")
	}
	if r.EndTime.IsZero() {
		verr.add("endTime", "is required")
	} else if !r.EndTime.After(r.StartTime) {
		verr.add("endTime", "must be after start.time")
	}

	if !(r.WalkingSpeed > MinWalkingSpeed && r.WalkingSpeed <= MaxWalkingSpeed) {
		verr.add("walkingSpeed", "must be in (%.2f, %.1f] m/s", MinWalkingSpeed, MaxWalkingSpeed)
	}

	switch {
	case len(r.Events) == 0:
		verr.add("events", "must not be empty")
	case len(r.Events) > MaxEvents:
		verr.add("events", "must contain at most %d events", MaxEvents)
	}

	seen := make(map[string]struct{}, len(r.Events))
	for i, ev := range r.Events {
		field := fmt.Sprintf("events[%d]", i)
		if strings.TrimSpace(ev.ID) == "" {
			verr.add(field+".id", "is required")
			continue
		}
		if _, dup := seen[ev.ID]; dup {
			verr.add(field+".id", "duplicate event id %q", ev.ID)
		}
		seen[ev.ID] = struct{}{}
		if ev.DwellMinutes != nil && *ev.DwellMinutes < 1 {
			verr.add(field+".dwellMin", "must be at least 1")
		}
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
