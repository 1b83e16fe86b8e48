package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/wikipurge/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for client-side throttling.
var (
	throttleWaitsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_throttle_waits_total",
		Help: "Total number of requests delayed by the client-side throttle",
	}, []string{"algorithm"})

	throttleWaitSeconds = promauto.With(metrics.Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wiki_throttle_wait_seconds",
		Help:    "Time spent waiting for throttle capacity",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"algorithm"})
)

// Strategy decides when a request may be dispatched.
type Strategy interface {
	// Enforce blocks until the next request may be sent.
	Enforce(ctx context.Context) error
}

// Nop never throttles.
type Nop struct{}

// Enforce implements Strategy.
func (Nop) Enforce(context.Context) error { return nil }

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option customises a strategy.
type Option func(*options)

type options struct {
	clock  func() time.Time
	sleep  SleepFunc
	logger zerolog.Logger
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithSleeper overrides the blocking wait.
func WithSleeper(sleep SleepFunc) Option {
	return func(o *options) { o.sleep = sleep }
}

// WithLogger sets the logger used for wait events.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{
		clock:  time.Now,
		sleep:  Sleep,
		logger: log.With().Str("component", "throttle").Logger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Sleep waits for d, returning early with ctx.Err() if ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// New builds the strategy selected by cfg.Algorithm.
func New(cfg Config, opts ...Option) (Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Algorithm {
	case AlgorithmNone:
		return Nop{}, nil
	case AlgorithmTokenBucket:
		return NewTokenBucket(cfg, opts...)
	default:
		return NewLeakyBucket(cfg, opts...)
	}
}

// LeakyBucket allows no more than Quota requests to start within any
// sliding window of length Period.
type LeakyBucket struct {
	cfg Config
	opt options

	mu     sync.Mutex
	window *Window
}

// NewLeakyBucket creates a leaky bucket throttle.
func NewLeakyBucket(cfg Config, opts ...Option) (*LeakyBucket, error) {
	if cfg.Period <= 0 {
		return nil, &ConfigError{Field: "period", Value: cfg.Period}
	}
	window, err := NewWindow(cfg.Quota)
	if err != nil {
		return nil, err
	}
	return &LeakyBucket{
		cfg:    cfg,
		opt:    buildOptions(opts),
		window: window,
	}, nil
}

// Enforce waits until the quota-th most recent request is at least Period
// old, then records the current time. The lock is not held while sleeping.
func (b *LeakyBucket) Enforce(ctx context.Context) error {
	b.mu.Lock()
	oldest, ok := b.window.Get(b.cfg.Quota - 1)
	now := b.opt.clock()
	b.mu.Unlock()

	if ok {
		resume := oldest.Add(b.cfg.Period)
		if now.Before(resume) {
			wait := resume.Sub(now)
			b.opt.logger.Debug().
				Dur("wait", wait).
				Int("quota", b.cfg.Quota).
				Dur("period", b.cfg.Period).
				Msg("Throttling request")
			throttleWaitsTotal.WithLabelValues(string(AlgorithmLeakyBucket)).Inc()
			throttleWaitSeconds.WithLabelValues(string(AlgorithmLeakyBucket)).Observe(wait.Seconds())

			if err := b.opt.sleep(ctx, wait); err != nil {
				return fmt.Errorf("throttle wait: %w", err)
			}
		}
	}

	b.mu.Lock()
	b.window.Add(b.opt.clock())
	samples := b.window.Len()
	b.mu.Unlock()

	b.opt.logger.Trace().Int("samples", samples).Msg("Request admitted")
	return nil
}

// Window exposes the underlying sample window (for inspection in tests).
func (b *LeakyBucket) Window() *Window {
	return b.window
}

// TokenBucket refills Quota tokens per Period and permits bursts up to Burst.
type TokenBucket struct {
	limiter *rate.Limiter
	opt     options
}

// NewTokenBucket creates a token bucket throttle backed by x/time/rate.
func NewTokenBucket(cfg Config, opts ...Option) (*TokenBucket, error) {
	if cfg.Quota <= 0 {
		return nil, &ConfigError{Field: "quota", Value: cfg.Quota}
	}
	if cfg.Period <= 0 {
		return nil, &ConfigError{Field: "period", Value: cfg.Period}
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Quota
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Every(cfg.Period/time.Duration(cfg.Quota)), burst),
		opt:     buildOptions(opts),
	}, nil
}

// Enforce implements Strategy.
func (b *TokenBucket) Enforce(ctx context.Context) error {
	start := b.opt.clock()
	reservation := b.limiter.ReserveN(start, 1)
	if !reservation.OK() {
		return fmt.Errorf("throttle: burst too small")
	}
	wait := reservation.DelayFrom(start)
	if wait <= 0 {
		return nil
	}

	throttleWaitsTotal.WithLabelValues(string(AlgorithmTokenBucket)).Inc()
	throttleWaitSeconds.WithLabelValues(string(AlgorithmTokenBucket)).Observe(wait.Seconds())
	b.opt.logger.Debug().Dur("wait", wait).Msg("Throttling request")

	if err := b.opt.sleep(ctx, wait); err != nil {
		reservation.CancelAt(b.opt.clock())
		return fmt.Errorf("throttle wait: %w", err)
	}
	return nil
}
