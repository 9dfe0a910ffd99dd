package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrAbsent is the probe result for "no matching resource exists". It is a
// normal outcome, not a failure: the runner reacts by provisioning.
var ErrAbsent = errors.New("resource absent")

// IsAbsent reports whether err means the probe found nothing.
func IsAbsent(err error) bool {
	return errors.Is(err, ErrAbsent)
}

// ConfigurationError reports missing or invalid local configuration.
// It is fatal before any step runs and is never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// LookupAmbiguousError reports an existence signal that cannot be trusted:
// several resources matched one lookup key, or the provider returned a
// malformed response. Raw carries the provider payload for diagnosis.
type LookupAmbiguousError struct {
	Kind      Kind
	LookupKey string
	Raw       string
}

func (e *LookupAmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous lookup for %s %q: %s", e.Kind, e.LookupKey, e.Raw)
}

// ToolingMissingError reports a required external tool that could not be
// reached before any network call was made.
type ToolingMissingError struct {
	Tool  string
	Cause error
}

func (e *ToolingMissingError) Error() string {
	return fmt.Sprintf("required tool %q unavailable: %v", e.Tool, e.Cause)
}

func (e *ToolingMissingError) Unwrap() error { return e.Cause }

// TransientProviderError wraps a provider failure worth retrying with
// backoff: throttling, network resets and similar hiccups.
type TransientProviderError struct {
	Op    string
	Cause error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("transient provider error during %s: %v", e.Op, e.Cause)
}

func (e *TransientProviderError) Unwrap() error { return e.Cause }

// PermissionDeniedError is fatal and never retried.
type PermissionDeniedError struct {
	Op    string
	Cause error
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied during %s: %v", e.Op, e.Cause)
}

func (e *PermissionDeniedError) Unwrap() error { return e.Cause }

// AsyncNotReadyError reports a resource that was created but did not reach
// Active within the readiness timeout. The run continues; downstream steps
// only need the resource to be defined, not fully propagated.
type AsyncNotReadyError struct {
	Kind    Kind
	Name    string
	Timeout time.Duration
}

func (e *AsyncNotReadyError) Error() string {
	return fmt.Sprintf("%s %q not ready after %s", e.Kind, e.Name, e.Timeout)
}

// MissingDependencyError reports a step that required an upstream handle
// which was never produced, failed, or lacks the requested attribute.
type MissingDependencyError struct {
	Step     string
	Requires string
	Reason   string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("step %q requires %q: %s", e.Step, e.Requires, e.Reason)
}

// MismatchError reports an existing resource whose configuration differs
// from the descriptor in a way downstream steps cannot tolerate.
type MismatchError struct {
	Step  string
	Field string
	Want  string
	Got   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("step %q: existing resource %s is %q, want %q", e.Step, e.Field, e.Got, e.Want)
}

var transientPatterns = []string{
	"throttl",
	"rate exceed",
	"too many requests",
	"request limit",
	"service unavailable",
	"internal server error",
	"connection reset",
	"connection refused",
	"timeout",
	"tls handshake",
	"i/o timeout",
	"temporary failure",
}

// IsTransient reports whether err should be retried. Typed classification
// wins; the message patterns cover errors that reach us untyped.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientProviderError
	if errors.As(err, &te) {
		return true
	}
	var pe *PermissionDeniedError
	if errors.As(err, &pe) {
		return false
	}
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
