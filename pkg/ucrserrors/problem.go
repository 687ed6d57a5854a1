// Package ucrserrors layers the clustering engine's error taxonomy (spec
// §7: InvalidInput, NotFound, Conflict, TransientExternal, PermanentExternal)
// alongside pkg/shared/errors' general-purpose wrapping vocabulary, without
// importing it. Each
// taxonomy member satisfies error and can render itself as an RFC 7807
// problem for the parts of the system that surface errors externally.
package ucrserrors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// RFC7807Problem is a "Problem Details for HTTP APIs" (RFC 7807)
// representation. Extensions are flattened into the top-level JSON object
// alongside the standard fields, matching the wire shape operators expect
// from a problem+json response.
type RFC7807Problem struct {
	Type       string                 `json:"type"`
	Title      string                 `json:"title"`
	Status     int                    `json:"status"`
	Detail     string                 `json:"detail,omitempty"`
	Instance   string                 `json:"instance,omitempty"`
	Extensions map[string]interface{} `json:"-"`
}

// Error satisfies the error interface so an RFC7807Problem can be returned
// anywhere an error is expected.
func (p *RFC7807Problem) Error() string {
	return fmt.Sprintf("%s (status %d): %s", p.Title, p.Status, p.Detail)
}

// MarshalJSON flattens Extensions into the top-level object alongside the
// standard RFC 7807 fields.
func (p *RFC7807Problem) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p.Extensions)+5)
	for k, v := range p.Extensions {
		out[k] = v
	}
	out["type"] = p.Type
	out["title"] = p.Title
	out["status"] = p.Status
	if p.Detail != "" {
		out["detail"] = p.Detail
	}
	if p.Instance != "" {
		out["instance"] = p.Instance
	}
	return json.Marshal(out)
}

const problemNamespace = "https://ucrs.dev/errors"

// NewValidationErrorProblem builds the RFC7807Problem for an InvalidInput
// failure scoped to resource, carrying per-field messages.
func NewValidationErrorProblem(resource string, fieldErrors map[string]string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:     problemNamespace + "/validation-error",
		Title:    "Validation Error",
		Status:   http.StatusBadRequest,
		Detail:   fmt.Sprintf("validation failed for %s", resource),
		Instance: "/incidents/" + resource,
		Extensions: map[string]interface{}{
			"resource":     resource,
			"field_errors": fieldErrors,
		},
	}
}

// NewNotFoundProblem builds the RFC7807Problem for a NotFound failure.
func NewNotFoundProblem(resource, id string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:     problemNamespace + "/not-found",
		Title:    "Resource Not Found",
		Status:   http.StatusNotFound,
		Detail:   fmt.Sprintf("%s %s not found", resource, id),
		Instance: fmt.Sprintf("/incidents/%s/%s", resource, id),
		Extensions: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewConflictProblem builds the RFC7807Problem for a Conflict failure.
func NewConflictProblem(resource, field, value string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:     problemNamespace + "/conflict",
		Title:    "Resource Conflict",
		Status:   http.StatusConflict,
		Detail:   fmt.Sprintf("%s already exists for %s=%s", resource, field, value),
		Instance: "/incidents/" + resource,
		Extensions: map[string]interface{}{
			"resource": resource,
			"field":    field,
			"value":    value,
		},
	}
}

// NewServiceUnavailableProblem builds the RFC7807Problem for a
// TransientExternal failure — the caller should retry.
func NewServiceUnavailableProblem(detail string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:   problemNamespace + "/service-unavailable",
		Title:  "Service Unavailable",
		Status: http.StatusServiceUnavailable,
		Detail: detail,
		Extensions: map[string]interface{}{
			"retry": true,
		},
	}
}

// NewInternalErrorProblem builds the RFC7807Problem for a PermanentExternal
// failure — the caller should not retry without operator intervention.
//
// Despite PermanentExternal failures not being auto-retried by the task
// runtime, the rendered problem still carries retry:true: it mirrors the
// engine's other 5xx problems for HTTP clients that apply a blanket
// "retry on 5xx" policy, while the task runtime itself keys its own
// no-retry decision off the Go error type, not this JSON body.
func NewInternalErrorProblem(detail string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:   problemNamespace + "/internal-error",
		Title:  "Internal Server Error",
		Status: http.StatusInternalServerError,
		Detail: detail,
		Extensions: map[string]interface{}{
			"retry": true,
		},
	}
}
