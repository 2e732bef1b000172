package core

import (
	"errors"
	"fmt"
	"time"
)

// ConfigurationError reports a fatal startup problem: no provider satisfies a
// role, or a required credential is missing. It is raised before any loop
// iteration starts and surfaced to the caller unmodified.
type ConfigurationError struct {
	Role   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("configuration error for role %q: %s", e.Role, e.Reason)
	}
	return "configuration error: " + e.Reason
}

// CircuitOpenError reports a tool call skipped because its family circuit is
// open. Transient: the loop continues with a degraded-result marker.
type CircuitOpenError struct {
	Family string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for family %q", e.Family)
}

// TimeoutError reports a call that exceeded its resolved timeout or could not
// obtain a concurrency permit within the bounded wait. Counts toward the
// call's retry budget.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// ValidationError reports malformed tool arguments. Never retried; surfaced
// as a failed ToolResult.
type ValidationError struct {
	Tool   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %s", e.Tool, e.Detail)
}

// ProviderError reports a failed model-provider call. Retried a bounded
// number of times against the same provider, then the next provider in
// priority order is tried; loop-fatal only once the priority list is
// exhausted.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsCircuitOpen reports whether err is (or wraps) a CircuitOpenError.
func IsCircuitOpen(err error) bool {
	var ce *CircuitOpenError
	return errors.As(err, &ce)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
