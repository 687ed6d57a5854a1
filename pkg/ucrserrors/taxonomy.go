package ucrserrors

import (
	"errors"
	"fmt"
)

// InvalidInputError reports a synchronously-rejected malformed request
// (spec §7): empty description, malformed ids. Never retried.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// ToRFC7807 renders e as a validation-error problem.
func (e *InvalidInputError) ToRFC7807() *RFC7807Problem {
	return NewValidationErrorProblem(e.Field, map[string]string{e.Field: e.Reason})
}

// NewInvalidInput builds an InvalidInputError.
func NewInvalidInput(field, reason string) *InvalidInputError {
	return &InvalidInputError{Field: field, Reason: reason}
}

// NotFoundError reports a missing entity (spec §7): an incident id missing
// on severity recompute. Retried once by the task runtime, then failed.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) ToRFC7807() *RFC7807Problem {
	return NewNotFoundProblem(e.Resource, e.ID)
}

// NewNotFound builds a NotFoundError.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError reports a uniqueness violation (spec §7): a duplicate
// membership. The clustering use case treats one returned from linking a
// complaint as a successful no-op; the task runtime dead-letters any that
// reaches it without retrying.
type ConflictError struct {
	Resource string
	Field    string
	Value    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s already exists for %s=%s", e.Resource, e.Field, e.Value)
}

func (e *ConflictError) ToRFC7807() *RFC7807Problem {
	return NewConflictProblem(e.Resource, e.Field, e.Value)
}

// NewConflict builds a ConflictError.
func NewConflict(resource, field, value string) *ConflictError {
	return &ConflictError{Resource: resource, Field: field, Value: value}
}

// TransientExternalError reports a retryable I/O failure against the vector
// store, LLM, or relational store (spec §7).
type TransientExternalError struct {
	Component string
	Cause     error
}

func (e *TransientExternalError) Error() string {
	return fmt.Sprintf("transient failure in %s: %s", e.Component, e.Cause)
}

func (e *TransientExternalError) Unwrap() error {
	return e.Cause
}

func (e *TransientExternalError) ToRFC7807() *RFC7807Problem {
	return NewServiceUnavailableProblem(e.Error())
}

// NewTransientExternal builds a TransientExternalError, or returns nil if
// cause is nil.
func NewTransientExternal(component string, cause error) error {
	if cause == nil {
		return nil
	}
	return &TransientExternalError{Component: component, Cause: cause}
}

// PermanentExternalError reports an authentication, quota, or schema
// failure that retrying cannot fix (spec §7). Surfaced to the ops log, not
// retried.
type PermanentExternalError struct {
	Component string
	Cause     error
}

func (e *PermanentExternalError) Error() string {
	return fmt.Sprintf("permanent failure in %s: %s", e.Component, e.Cause)
}

func (e *PermanentExternalError) Unwrap() error {
	return e.Cause
}

func (e *PermanentExternalError) ToRFC7807() *RFC7807Problem {
	return NewInternalErrorProblem(e.Error())
}

// NewPermanentExternal builds a PermanentExternalError, or returns nil if
// cause is nil.
func NewPermanentExternal(component string, cause error) error {
	if cause == nil {
		return nil
	}
	return &PermanentExternalError{Component: component, Cause: cause}
}

// IsRetryable reports whether err is a TransientExternalError; every other
// error, Conflict included, reports false. The task runtime does not call
// it: its own rule (isRetryableJobError in pkg/tasks) also retries NotFound
// and unclassified errors.
func IsRetryable(err error) bool {
	switch err.(type) {
	case *TransientExternalError:
		return true
	default:
		return false
	}
}

// IsConflict reports whether err is a ConflictError (or wraps one) — the
// clustering use case treats this as success, not failure.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
