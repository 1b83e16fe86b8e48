// Package ratelimit implements client-side request throttling for the wiki API.
// A Window keeps the most recent dispatch timestamps and a Strategy decides,
// before every request, whether the caller has to wait.
package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Algorithm selects the throttle strategy.
type Algorithm string

const (
	// AlgorithmLeakyBucket allows at most Quota requests in any sliding Period.
	AlgorithmLeakyBucket Algorithm = "leaky_bucket"

	// AlgorithmTokenBucket refills Quota tokens per Period and allows bursts of Burst.
	AlgorithmTokenBucket Algorithm = "token_bucket"

	// AlgorithmNone disables throttling.
	AlgorithmNone Algorithm = "none"
)

// Defaults used by DefaultConfig.
const (
	DefaultQuota  = 2
	DefaultPeriod = 1000 * time.Millisecond
)

// Config holds the throttle policy parameters.
type Config struct {
	// Quota is the number of requests permitted per Period. Must be > 0.
	Quota int

	// Period is the length of the sliding window. Must be > 0.
	Period time.Duration

	// Algorithm defaults to AlgorithmLeakyBucket when empty.
	Algorithm Algorithm

	// Burst is only used by AlgorithmTokenBucket (default: Quota).
	Burst int
}

// DefaultConfig returns 2 requests per second, leaky bucket.
func DefaultConfig() Config {
	return Config{
		Quota:     DefaultQuota,
		Period:    DefaultPeriod,
		Algorithm: AlgorithmLeakyBucket,
	}
}

// ConfigError reports an invalid throttle configuration.
type ConfigError struct {
	Field string
	Value any
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid rate limit %s: %v", e.Field, e.Value)
}

// Validate checks the parameters of the configured algorithm.
func (c Config) Validate() error {
	if c.Algorithm == AlgorithmNone {
		return nil
	}
	if c.Quota <= 0 {
		return &ConfigError{Field: "quota", Value: c.Quota}
	}
	if c.Period <= 0 {
		return &ConfigError{Field: "period", Value: c.Period}
	}
	switch c.Algorithm {
	case "", AlgorithmLeakyBucket, AlgorithmTokenBucket:
	default:
		return &ConfigError{Field: "algorithm", Value: c.Algorithm}
	}
	if c.Burst < 0 {
		return &ConfigError{Field: "burst", Value: c.Burst}
	}
	return nil
}

// ParseConfig parses a "quota/period" pair such as "2/1s" or "10/500ms".
// A bare integer period is read as milliseconds. "none" and "off" disable
// throttling.
func ParseConfig(s string) (Config, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "none", "off":
		return Config{Algorithm: AlgorithmNone}, nil
	}

	quotaStr, periodStr, ok := strings.Cut(s, "/")
	if !ok {
		if quota, err := strconv.Atoi(s); err == nil && quota <= 0 {
			return Config{}, &ConfigError{Field: "quota", Value: quota}
		}
		return Config{}, fmt.Errorf("rate %q: expected quota/period", s)
	}

	quota, err := strconv.Atoi(strings.TrimSpace(quotaStr))
	if err != nil {
		return Config{}, fmt.Errorf("rate %q: parse quota: %w", s, err)
	}

	periodStr = strings.TrimSpace(periodStr)
	var period time.Duration
	if ms, err := strconv.Atoi(periodStr); err == nil {
		period = time.Duration(ms) * time.Millisecond
	} else if period, err = time.ParseDuration(periodStr); err != nil {
		return Config{}, fmt.Errorf("rate %q: parse period: %w", s, err)
	}

	cfg := Config{Quota: quota, Period: period, Algorithm: AlgorithmLeakyBucket}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// String renders the config in ParseConfig form.
func (c Config) String() string {
	if c.Algorithm == AlgorithmNone {
		return "none"
	}
	return fmt.Sprintf("%d/%s", c.Quota, c.Period)
}
