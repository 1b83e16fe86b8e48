package client

import (
	"errors"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name           string
		errorClass     ErrorClass
		retryTransport bool
		expected       bool
	}{
		{name: "client error should not retry", errorClass: ErrorClassClient, expected: false},
		{name: "server error should retry", errorClass: ErrorClassServer, expected: true},
		{name: "rate limit should retry", errorClass: ErrorClassRateLimit, expected: true},
		{name: "malformed body should retry", errorClass: ErrorClassMalformed, expected: true},
		{name: "incomplete batch should retry", errorClass: ErrorClassIncomplete, expected: true},
		{name: "network error propagates by default", errorClass: ErrorClassNetwork, expected: false},
		{name: "network error retried when enabled", errorClass: ErrorClassNetwork, retryTransport: true, expected: true},
		{name: "empty error class should not retry", errorClass: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := RetryConfig{RetryTransport: tt.retryTransport}
			if result := cfg.shouldRetry(tt.errorClass); result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestConsumesAttempt(t *testing.T) {
	bounded := RetryConfig{}
	unbounded := RetryConfig{UnboundedRateLimit: true}

	if !bounded.consumesAttempt(ErrorClassRateLimit) {
		t.Error("rate limit should consume an attempt by default")
	}
	if unbounded.consumesAttempt(ErrorClassRateLimit) {
		t.Error("rate limit should not consume an attempt when unbounded")
	}
	if !unbounded.consumesAttempt(ErrorClassServer) {
		t.Error("server errors always consume an attempt")
	}
}

func TestResponseError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ResponseError
		expected string
	}{
		{
			name: "error with wrapped error",
			err: &ResponseError{
				Action:     "query",
				StatusCode: 200,
				ErrorClass: ErrorClassMalformed,
				Message:    "response is not valid JSON",
				Err:        errors.New("invalid character '<'"),
			},
			expected: `wiki malformed error on action "query" (status 200): response is not valid JSON: invalid character '<'`,
		},
		{
			name: "error without wrapped error",
			err: &ResponseError{
				Action:     "purge",
				StatusCode: 503,
				ErrorClass: ErrorClassServer,
				Message:    "503 Service Unavailable",
			},
			expected: `wiki server error on action "purge" (status 503): 503 Service Unavailable`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.err.Error(); result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestResponseError_Unwrap(t *testing.T) {
	wrapped := errors.New("wrapped")
	err := &ResponseError{ErrorClass: ErrorClassMalformed, Err: wrapped}

	if !errors.Is(err, wrapped) {
		t.Error("errors.Is should find the wrapped error")
	}

	if (&ResponseError{}).Unwrap() != nil {
		t.Error("Unwrap() should return nil when no error is wrapped")
	}
}

func TestExhaustedError(t *testing.T) {
	last := &ResponseError{Action: "query", ErrorClass: ErrorClassIncomplete, Message: "no batchcomplete"}
	err := &ExhaustedError{Action: "query", Attempts: 5, Err: last}

	if !errors.Is(err, ErrRetryExhausted) {
		t.Error("ExhaustedError should match ErrRetryExhausted")
	}

	var respErr *ResponseError
	if !errors.As(err, &respErr) || respErr != last {
		t.Error("ExhaustedError should unwrap to the last failure")
	}

	want := `action "query": retry attempts exhausted after 5 attempts: ` + last.Error()
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAuthError_Error(t *testing.T) {
	withReason := &AuthError{Username: "Bot@purge", Result: "Failed", Reason: "Incorrect password"}
	if got := withReason.Error(); got != `login as "Bot@purge" failed: Failed: Incorrect password` {
		t.Errorf("Error() = %q", got)
	}

	withoutReason := &AuthError{Username: "Bot@purge", Result: "Aborted"}
	if got := withoutReason.Error(); got != `login as "Bot@purge" failed: Aborted` {
		t.Errorf("Error() = %q", got)
	}

	noResult := &AuthError{Username: "Bot@purge"}
	if got := noResult.Error(); got != `login as "Bot@purge" failed: no login result` {
		t.Errorf("Error() = %q", got)
	}
}

func TestProtocolError_Error(t *testing.T) {
	err := &ProtocolError{Action: "query", Field: "query.pages"}
	if got := err.Error(); got != `protocol error: action "query" response has no query.pages` {
		t.Errorf("Error() = %q", got)
	}
}
