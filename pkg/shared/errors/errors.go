// Package errors provides a general-purpose error-wrapping vocabulary used
// throughout the engine: a structured OperationError plus a set of
// convenience constructors for the most common failure shapes. This package
// is domain-agnostic; the engine's own retryable-error taxonomy
// (InvalidInput/NotFound/Conflict/TransientExternal/PermanentExternal) lives
// in pkg/ucrserrors, which does not import this package.
package errors

import (
	"fmt"
	"strings"
)

// OperationError describes a failed operation, optionally scoped to a
// component and resource, wrapping an underlying cause.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to %s", e.Operation)
	if e.Component != "" {
		fmt.Fprintf(&b, ", component: %s", e.Component)
	}
	if e.Resource != "" {
		fmt.Fprintf(&b, ", resource: %s", e.Resource)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ", cause: %s", e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds a minimal "failed to <action>[: <cause>]" error. A non-nil
// cause is wrapped with %w so errors.Is/As still reach it; a nil cause
// yields a bare OperationError.
func FailedTo(action string, cause error) error {
	if cause == nil {
		return &OperationError{Operation: action}
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// FailedToWithDetails builds an OperationError carrying component and
// resource context in addition to the action and cause.
func FailedToWithDetails(action, component, resource string, cause error) error {
	return &OperationError{
		Operation: action,
		Component: component,
		Resource:  resource,
		Cause:     cause,
	}
}

// Wrapf wraps err with an additional formatted message, the way fmt.Errorf
// with %w does, returning nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", msg, err)
}

// DatabaseError is shorthand for FailedToWithDetails against the "database"
// component.
func DatabaseError(operation string, cause error) error {
	return FailedToWithDetails(operation, "database", "", cause)
}

// NetworkError is shorthand for FailedToWithDetails against the "network"
// component, scoped to an endpoint.
func NetworkError(operation, endpoint string, cause error) error {
	return FailedToWithDetails(operation, "network", endpoint, cause)
}

// ValidationError reports that a single field failed validation.
func ValidationError(field, reason string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, reason)
}

// ConfigurationError reports a misconfigured setting.
func ConfigurationError(setting, reason string) error {
	return fmt.Errorf("configuration error for setting %s: %s", setting, reason)
}

// TimeoutError reports an operation that exceeded its deadline.
func TimeoutError(operation, duration string) error {
	return fmt.Errorf("timeout while %s after %s", operation, duration)
}

// AuthenticationError reports a failed authentication attempt.
func AuthenticationError(reason string) error {
	return fmt.Errorf("authentication failed: %s", reason)
}

// AuthorizationError reports an authorization denial for an action on a
// resource.
func AuthorizationError(action, resource string) error {
	return fmt.Errorf("authorization failed: insufficient permissions to %s %s", action, resource)
}

// ParseError reports a failed parse of a named resource in a given format.
func ParseError(resource, format string, cause error) error {
	return FailedToWithDetails(fmt.Sprintf("parse %s as %s", resource, format), "parser", "", cause)
}

// retryableSubstrings are lower-cased fragments commonly seen in transient
// infrastructure failures: connection resets, timeouts, DNS hiccups, and
// database contention.
var retryableSubstrings = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"service unavailable",
	"temporary failure",
	"too many connections",
	"deadlock detected",
	"lock timeout",
	"serialization failure",
	"could not serialize access",
	"connection lost",
	"closed the connection unexpectedly",
}

// IsRetryable heuristically classifies an error as transient based on its
// message. It never inspects error types — see pkg/ucrserrors for the
// typed taxonomy used by the task runtime's retry decision.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Chain joins multiple non-nil errors into one, or returns nil if all given
// errors are nil.
func Chain(errs ...error) error {
	var msgs []string
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Error())
		}
	}
	switch len(msgs) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s", msgs[0])
	default:
		return fmt.Errorf("multiple errors: %s", strings.Join(msgs, "; "))
	}
}
