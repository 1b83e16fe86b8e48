package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Backoff: time.Millisecond}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.Backoff != 5*time.Second {
		t.Errorf("Backoff = %v, want 5s", cfg.Backoff)
	}
	if cfg.UnboundedRateLimit || cfg.RetryTransport {
		t.Error("optional retry behaviour should be disabled by default")
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RetryConfig
		wantErr bool
	}{
		{name: "default", config: DefaultRetryConfig(), wantErr: false},
		{name: "zero backoff", config: RetryConfig{MaxAttempts: 1}, wantErr: false},
		{name: "zero attempts", config: RetryConfig{MaxAttempts: 0, Backoff: time.Second}, wantErr: true},
		{name: "negative backoff", config: RetryConfig{MaxAttempts: 1, Backoff: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryFixed_Success(t *testing.T) {
	callCount := 0
	err := retryFixed(context.Background(), testRetryConfig(), "query", zerolog.Nop(), func(int) (ErrorClass, error) {
		callCount++
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryFixed_SuccessAfterRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, Backoff: 50 * time.Millisecond}

	// Fails twice, then succeeds
	callCount := 0
	start := time.Now()
	err := retryFixed(context.Background(), cfg, "query", zerolog.Nop(), func(attempt int) (ErrorClass, error) {
		callCount++
		if attempt != callCount {
			t.Errorf("attempt = %d, want %d", attempt, callCount)
		}
		if callCount < 3 {
			return ErrorClassMalformed, errors.New("temporary error")
		}
		return "", nil
	})
	duration := time.Since(start)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
	// Two fixed backoffs of 50ms
	if duration < 100*time.Millisecond {
		t.Errorf("Expected at least 100ms of backoff, got %v", duration)
	}
}

func TestRetryFixed_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	testErr := errors.New("persistent error")
	err := retryFixed(context.Background(), testRetryConfig(), "purge", zerolog.Nop(), func(int) (ErrorClass, error) {
		callCount++
		return ErrorClassServer, testErr
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected the last failure to be wrapped, got %v", err)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected *ExhaustedError, got %T", err)
	}
	if exhausted.Action != "purge" || exhausted.Attempts != 3 {
		t.Errorf("ExhaustedError = %+v", exhausted)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", callCount)
	}
}

func TestRetryFixed_NonRetryableReturnedAsIs(t *testing.T) {
	tests := []struct {
		name  string
		class ErrorClass
	}{
		{name: "client error", class: ErrorClassClient},
		{name: "unclassified", class: ""},
		{name: "network without RetryTransport", class: ErrorClassNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callCount := 0
			testErr := errors.New("fatal")
			err := retryFixed(context.Background(), testRetryConfig(), "query", zerolog.Nop(), func(int) (ErrorClass, error) {
				callCount++
				return tt.class, testErr
			})

			if err != testErr {
				t.Errorf("Expected original error, got %v", err)
			}
			if callCount != 1 {
				t.Errorf("Expected 1 call, got %d", callCount)
			}
		})
	}
}

func TestRetryFixed_UnboundedRateLimit(t *testing.T) {
	cfg := testRetryConfig()
	cfg.UnboundedRateLimit = true

	// Ten rate limit failures, then two malformed bodies, then success
	callCount := 0
	err := retryFixed(context.Background(), cfg, "purge", zerolog.Nop(), func(int) (ErrorClass, error) {
		callCount++
		switch {
		case callCount <= 10:
			return ErrorClassRateLimit, errors.New("rate limited")
		case callCount <= 12:
			return ErrorClassMalformed, errors.New("malformed")
		}
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 13 {
		t.Errorf("Expected 13 calls, got %d", callCount)
	}
}

func TestRetryFixed_UnboundedRateLimitStillBoundsOtherClasses(t *testing.T) {
	cfg := testRetryConfig()
	cfg.UnboundedRateLimit = true

	callCount := 0
	err := retryFixed(context.Background(), cfg, "purge", zerolog.Nop(), func(int) (ErrorClass, error) {
		callCount++
		if callCount%2 == 0 {
			return ErrorClassRateLimit, errors.New("rate limited")
		}
		return ErrorClassServer, errors.New("server")
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	// server, rl, server, rl, server
	if callCount != 5 {
		t.Errorf("Expected 5 calls, got %d", callCount)
	}
}

func TestRetryFixed_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 3, Backoff: time.Hour}

	callCount := 0
	err := retryFixed(ctx, cfg, "query", zerolog.Nop(), func(int) (ErrorClass, error) {
		callCount++
		cancel()
		return ErrorClassServer, errors.New("error")
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled to be wrapped, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestIsCancellation(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want bool
	}{
		{name: "cancelled context", ctx: cancelled, err: context.Canceled, want: true},
		{name: "throttle sentinel", ctx: context.Background(), err: &TransportError{Err: ErrContextCancelled}, want: true},
		{name: "http timeout", ctx: context.Background(), err: &TransportError{Err: context.DeadlineExceeded}, want: false},
		{name: "other", ctx: context.Background(), err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isCancellation(tt.ctx, tt.err); got != tt.want {
				t.Errorf("isCancellation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
