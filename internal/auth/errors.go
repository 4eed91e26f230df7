package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for authentication operations.
var (
	// ErrMisconfigured is matched by every MisconfiguredError.
	ErrMisconfigured = errors.New("misconfigured")

	// ErrAuthentication is matched by every AuthenticationError.
	ErrAuthentication = errors.New("authentication failed")

	// ErrAuthPending indicates the caller stopped waiting for an in-flight
	// authentication. The attempt itself may still complete.
	ErrAuthPending = errors.New("authentication pending")

	// ErrProviderNotFound indicates that no scheme is registered for a provider.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrUnsupportedScheme indicates an unknown scheme type.
	ErrUnsupportedScheme = errors.New("unsupported authentication scheme")

	// ErrCircuitOpen indicates the provider's circuit breaker rejected the attempt.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrTokenMissing indicates a response that did not carry the expected token.
	ErrTokenMissing = errors.New("token missing from response")
)

// MisconfiguredError reports a configuration or credential problem found
// before any network call. It is never retried.
type MisconfiguredError struct {
	Provider string
	Field    string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *MisconfiguredError) Error() string {
	msg := "auth misconfigured"
	if e.Provider != "" {
		msg += " (" + e.Provider + ")"
	}
	if e.Field != "" {
		msg += " at " + e.Field
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *MisconfiguredError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *MisconfiguredError) Is(target error) bool {
	if target == ErrMisconfigured {
		return true
	}
	_, ok := target.(*MisconfiguredError)
	return ok
}

// NewMisconfiguredError creates a new MisconfiguredError.
func NewMisconfiguredError(field, message string) *MisconfiguredError {
	return &MisconfiguredError{
		Field:   field,
		Message: message,
	}
}

// AuthenticationError reports a failed token acquisition for which no
// usable fallback existed.
type AuthenticationError struct {
	Provider  string
	Operation string
	Message   string

	// StatusCode is the HTTP status of the failed response, 0 for
	// transport errors.
	StatusCode int

	Cause error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	var msg string
	switch {
	case e.Provider != "" && e.Operation != "":
		msg = fmt.Sprintf("auth %s (%s): %s", e.Operation, e.Provider, e.Message)
	case e.Provider != "":
		msg = fmt.Sprintf("auth (%s): %s", e.Provider, e.Message)
	case e.Operation != "":
		msg = fmt.Sprintf("auth %s: %s", e.Operation, e.Message)
	default:
		msg = "auth: " + e.Message
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *AuthenticationError) Is(target error) bool {
	if target == ErrAuthentication {
		return true
	}
	_, ok := target.(*AuthenticationError)
	return ok
}

// NewAuthenticationError creates a new AuthenticationError.
func NewAuthenticationError(provider, operation, message string, cause error) *AuthenticationError {
	return &AuthenticationError{
		Provider:  provider,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// StatusCode returns the HTTP status carried by an AuthenticationError in
// err's chain, or 0.
func StatusCode(err error) int {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return authErr.StatusCode
	}
	return 0
}

// errorType classifies err for the errors_total metric.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrMisconfigured):
		return "misconfigured"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrAuthPending):
		return "pending"
	case errors.Is(err, ErrTokenMissing):
		return "token_missing"
	case StatusCode(err) != 0:
		return "http_status"
	default:
		return "connection_error"
	}
}
