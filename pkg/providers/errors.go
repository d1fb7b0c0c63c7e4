package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// ProviderError is an HTTP-level error returned by a backend.
type ProviderError struct {
	// Provider is the name of the backend that returned the error
	Provider string

	// StatusCode is the HTTP status code (0 if not applicable)
	StatusCode int

	// Message is the error message
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("backend %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend %q error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// RateLimitError represents HTTP 429 from a backend.
type RateLimitError struct {
	Provider string

	// RetryAfter is the duration the backend asked us to wait (if provided)
	RetryAfter time.Duration

	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("backend %q rate limit exceeded (retry after %s): %s",
			e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("backend %q rate limit exceeded: %s", e.Provider, e.Message)
}

// TimeoutError represents an exceeded connect, read, write or pool timeout.
type TimeoutError struct {
	Provider string

	// Phase is the timeout that fired ("connect", "read", "write", "pool").
	Phase string

	// Timeout is the configured duration, when known
	Timeout time.Duration

	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("backend %q %s timeout after %s", e.Provider, e.Phase, e.Timeout)
	}
	return fmt.Sprintf("backend %q request timeout", e.Provider)
}

// Unwrap returns the underlying error.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// TransportError is a connection-level failure (refused, reset, DNS).
type TransportError struct {
	Provider string
	Cause    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("backend %q connection error: %v", e.Provider, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ParseError means a backend response could not be decoded.
type ParseError struct {
	Provider string

	// RawResponse is the raw response body (truncated when large)
	RawResponse string

	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("backend %q response parse error: %v", e.Provider, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// StreamError is an error record sent by the backend in the middle of a stream.
type StreamError struct {
	Provider string
	Message  string
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return fmt.Sprintf("backend %q stream error: %s", e.Provider, e.Message)
}

// ValidationError represents invalid caller input.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
}

// ConfigError represents a backend misconfiguration detected at startup.
type ConfigError struct {
	Provider string
	Field    string
	Message  string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("backend %q configuration error in field %q: %s", e.Provider, e.Field, e.Message)
}

// Failure reasons used in degraded tags.
const (
	ReasonTimeout     = "timeout"
	ReasonConnection  = "connection"
	ReasonParse       = "parse"
	ReasonInvalid     = "invalid"
	ReasonCanceled    = "canceled"
	ReasonServerError = "server_error"
	ReasonUnknown     = "error"
)

// IsRetryable reports whether err is a transient upstream failure:
// connection errors, timeouts, HTTP 5xx and HTTP 429.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	var tr *TransportError
	if errors.As(err, &tr) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode >= 500 || pe.StatusCode == 429
	}
	return isTimeout(err) || isConnectionError(err)
}

// Reason returns the short failure reason used in degraded tags,
// e.g. "timeout", "connection", "http:503", "server_error".
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return "http:429"
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return ReasonTimeout
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.StatusCode > 0 {
		return fmt.Sprintf("http:%d", pe.StatusCode)
	}
	var se *StreamError
	if errors.As(err, &se) {
		return ReasonServerError
	}
	var tr *TransportError
	if errors.As(err, &tr) {
		if isTimeout(tr.Cause) {
			return ReasonTimeout
		}
		return ReasonConnection
	}
	var pa *ParseError
	if errors.As(err, &pa) {
		return ReasonParse
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ReasonInvalid
	}
	if isTimeout(err) {
		return ReasonTimeout
	}
	if isConnectionError(err) {
		return ReasonConnection
	}
	return ReasonUnknown
}

// ClassifyTransport wraps a raw error returned by http.Client.Do or a body
// read into the matching typed error. Everything that is not a timeout,
// TLS certificate failures included, becomes a retryable *TransportError.
func ClassifyTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return err
	}
	if isTimeout(err) {
		return &TimeoutError{Provider: provider, Cause: err}
	}
	return &TransportError{Provider: provider, Cause: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isConnectionError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var op *net.OpError
	if errors.As(err, &op) {
		return true
	}
	var dns *net.DNSError
	return errors.As(err, &dns)
}
