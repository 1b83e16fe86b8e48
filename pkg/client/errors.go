package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled while
	// waiting for the throttle or a retry backoff.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidConfig wraps configuration errors detected in New.
	ErrInvalidConfig = errors.New("invalid client configuration")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses. Not retried.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents a rate limit warning or error reported by the wiki.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassMalformed represents a body that is not valid JSON.
	ErrorClassMalformed ErrorClass = "malformed"

	// ErrorClassIncomplete represents a generator query without a batchcomplete marker.
	ErrorClassIncomplete ErrorClass = "incomplete"

	// ErrorClassNetwork represents connection-level failures.
	ErrorClassNetwork ErrorClass = "network"
)

// ResponseError describes a transient, retryable failure of a single attempt.
type ResponseError struct {
	Action     string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wiki %s error on action %q (status %d): %s: %v",
			e.ErrorClass, e.Action, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("wiki %s error on action %q (status %d): %s",
		e.ErrorClass, e.Action, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ResponseError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every attempt for an action failed.
type ExhaustedError struct {
	Action   string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("action %q: %v after %d attempts: %v", e.Action, ErrRetryExhausted, e.Attempts, e.Err)
}

// Unwrap lets errors.Is match both ErrRetryExhausted and the last failure.
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Err}
}

// TransportError wraps a connection-level failure (DNS, TCP, TLS).
type TransportError struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a well-formed response missing a field the client
// depends on. It indicates an incompatible API version and is never retried.
type ProtocolError struct {
	Action string
	Field  string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: action %q response has no %s", e.Action, e.Field)
}

// AuthError is returned when the login action does not report success.
type AuthError struct {
	Username string
	Result   string
	Reason   string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Result == "" {
		return fmt.Sprintf("login as %q failed: no login result", e.Username)
	}
	if e.Reason != "" {
		return fmt.Sprintf("login as %q failed: %s: %s", e.Username, e.Result, e.Reason)
	}
	return fmt.Sprintf("login as %q failed: %s", e.Username, e.Result)
}

// APIError is an error object returned by the wiki ({"error": {...}}).
type APIError struct {
	Action string
	Code   string
	Info   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("api error on action %q: %s: %s", e.Action, e.Code, e.Info)
}

// shouldRetry determines if an error class is retried within the attempt budget.
func (c RetryConfig) shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassMalformed, ErrorClassIncomplete:
		return true
	case ErrorClassNetwork:
		return c.RetryTransport
	default:
		return false
	}
}

// consumesAttempt reports whether a failure of this class counts against MaxAttempts.
func (c RetryConfig) consumesAttempt(errorClass ErrorClass) bool {
	return !(errorClass == ErrorClassRateLimit && c.UnboundedRateLimit)
}
