package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/wikipurge/pkg/metrics"
	"github.com/Sternrassler/wikipurge/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	wikiRetriesTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	wikiRetryExhaustedTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by action",
	}, []string{"action"})
)

// Retry defaults.
const (
	DefaultMaxAttempts = 5
	DefaultBackoff     = 5 * time.Second
)

// RetryConfig holds the configuration for the per-request retry loop.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// Backoff is the fixed delay after every retryable failure.
	Backoff time.Duration

	// UnboundedRateLimit retries rate limit warnings without consuming an
	// attempt. Context cancellation still ends the loop.
	UnboundedRateLimit bool

	// RetryTransport folds connection-level failures into the attempt budget.
	// When false they are returned to the caller immediately.
	RetryTransport bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
	}
}

// Validate checks the retry parameters.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be > 0 (got %d)", c.MaxAttempts)
	}
	if c.Backoff < 0 {
		return fmt.Errorf("backoff must be >= 0 (got %s)", c.Backoff)
	}
	return nil
}

// attemptFunc performs one attempt. A nil error ends the loop; otherwise the
// class decides whether the failure is retried.
type attemptFunc func(attempt int) (ErrorClass, error)

// retryFixed runs fn until it succeeds, fails with a non-retryable class, or
// the attempt budget for action is spent. Every retryable failure sleeps the
// same fixed backoff.
func retryFixed(ctx context.Context, cfg RetryConfig, action string, logger zerolog.Logger, fn attemptFunc) error {
	var lastErr error
	attempts := 0

	for call := 1; ; call++ {
		errClass, err := fn(call)
		if err == nil {
			if call > 1 {
				logger.Info().
					Str("action", action).
					Int("attempt", call).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if !cfg.shouldRetry(errClass) {
			return err
		}

		if cfg.consumesAttempt(errClass) {
			attempts++
		}
		if attempts >= cfg.MaxAttempts {
			break
		}

		wikiRetriesTotal.WithLabelValues(string(errClass)).Inc()
		logger.Warn().
			Err(err).
			Str("action", action).
			Str("error_class", string(errClass)).
			Int("attempt", call).
			Dur("backoff", cfg.Backoff).
			Msg("Retrying request after backoff")

		if err := ratelimit.Sleep(ctx, cfg.Backoff); err != nil {
			logger.Warn().
				Str("action", action).
				Int("attempt", call).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}

	wikiRetryExhaustedTotal.WithLabelValues(action).Inc()
	logger.Error().
		Err(lastErr).
		Str("action", action).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return &ExhaustedError{Action: action, Attempts: attempts, Err: lastErr}
}

// isCancellation reports whether err stems from the caller's ctx rather than
// the exchange itself. An http.Client timeout also matches
// context.DeadlineExceeded, so only ctx.Err() counts.
func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, ErrContextCancelled)
}
