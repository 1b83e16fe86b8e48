// Package client provides the wiki API session client: request building,
// throttled dispatch, retry of transient failures, and login/logout.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/wikipurge/pkg/metrics"
	"github.com/Sternrassler/wikipurge/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for wiki API requests.
var (
	wikiRequestsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_requests_total",
		Help: "Total wiki API requests by action and status",
	}, []string{"action", "status"})

	wikiRequestDuration = promauto.With(metrics.Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wiki_request_duration_seconds",
		Help:    "Wiki API request duration in seconds by action",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"action"})

	wikiErrorsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_errors_total",
		Help: "Total wiki API attempt failures by class",
	}, []string{"class"})
)

// DefaultUserAgent identifies the client to the wiki.
const DefaultUserAgent = "wikipurge/0.1 (+https://github.com/Sternrassler/wikipurge)"

// Requester issues a single logical API request. *Client implements it.
type Requester interface {
	Request(ctx context.Context, method, action string, query, body url.Values) (*Response, error)
}

// Client is the wiki API session client.
type Client struct {
	endpoint  *url.URL
	transport *Transport
	config    Config
	logger    zerolog.Logger

	mu       sync.Mutex
	username string
}

// Config holds the client configuration.
type Config struct {
	// Endpoint is the api.php URL (REQUIRED).
	Endpoint string

	// UserAgent header sent with every request.
	UserAgent string

	// FormatVersion is sent as formatversion when > 0.
	FormatVersion int

	// Throttle configures the client-side rate limit. Ignored when Strategy is set.
	Throttle ratelimit.Config

	// Strategy overrides the throttle built from Throttle.
	Strategy ratelimit.Strategy

	// Retry configures the per-request retry loop.
	Retry RetryConfig

	// HTTPTimeout bounds a single HTTP exchange (0 = no timeout).
	HTTPTimeout time.Duration

	// HTTPClient supplies the underlying round tripper (optional).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration for endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:      endpoint,
		UserAgent:     DefaultUserAgent,
		FormatVersion: 2,
		Throttle:      ratelimit.DefaultConfig(),
		Retry:         DefaultRetryConfig(),
		HTTPTimeout:   30 * time.Second,
	}
}

// New creates a new wiki API client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint: %w", ErrInvalidConfig, err)
	}
	if (endpoint.Scheme != "http" && endpoint.Scheme != "https") || endpoint.Host == "" {
		return nil, fmt.Errorf("%w: endpoint must be an absolute http(s) URL (got %q)", ErrInvalidConfig, cfg.Endpoint)
	}

	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	logger := log.With().Str("component", "wiki-client").Logger()

	strategy := cfg.Strategy
	if strategy == nil {
		strategy, err = ratelimit.New(cfg.Throttle, ratelimit.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	transport, err := NewTransport(strategy, base, cfg.UserAgent)
	if err != nil {
		return nil, err
	}

	return &Client{
		endpoint:  endpoint,
		transport: transport,
		config:    cfg,
		logger:    logger,
	}, nil
}

// Request performs one logical API call, retrying transient failures.
// query goes into the URL; a non-empty body is sent form-encoded.
func (c *Client) Request(ctx context.Context, method, action string, query, body url.Values) (*Response, error) {
	generator := query.Has("generator") || body.Has("generator")

	var resp *Response
	err := retryFixed(ctx, c.config.Retry, action, c.logger, func(attempt int) (ErrorClass, error) {
		r, errClass, err := c.attempt(ctx, method, action, query, body, generator)
		if err != nil {
			if errClass != "" {
				wikiErrorsTotal.WithLabelValues(string(errClass)).Inc()
			}
			return errClass, err
		}
		resp = r
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// attempt sends one HTTP request and classifies the outcome.
func (c *Client) attempt(ctx context.Context, method, action string, query, body url.Values, generator bool) (*Response, ErrorClass, error) {
	req, err := c.buildRequest(ctx, method, action, query, body)
	if err != nil {
		return nil, "", err
	}

	c.logger.Debug().
		Str("action", action).
		Str("method", method).
		Msg("Executing wiki request")

	startTime := time.Now()
	httpResp, err := c.transport.Send(req)
	wikiRequestDuration.WithLabelValues(action).Observe(time.Since(startTime).Seconds())
	if err != nil {
		wikiRequestsTotal.WithLabelValues(action, "network_error").Inc()
		if isCancellation(ctx, err) {
			return nil, "", err
		}
		c.logger.Error().Err(err).Str("action", action).Msg("HTTP request failed")
		return nil, ErrorClassNetwork, err
	}
	defer httpResp.Body.Close()

	wikiRequestsTotal.WithLabelValues(action, strconv.Itoa(httpResp.StatusCode)).Inc()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if isCancellation(ctx, err) {
			return nil, "", err
		}
		return nil, ErrorClassNetwork, &TransportError{Method: method, URL: redactURL(req.URL), Err: err}
	}

	switch {
	case httpResp.StatusCode >= 500:
		return nil, ErrorClassServer, &ResponseError{
			Action:     action,
			StatusCode: httpResp.StatusCode,
			ErrorClass: ErrorClassServer,
			Message:    httpResp.Status,
		}
	case httpResp.StatusCode >= 400:
		return nil, ErrorClassClient, &ResponseError{
			Action:     action,
			StatusCode: httpResp.StatusCode,
			ErrorClass: ErrorClassClient,
			Message:    httpResp.Status,
		}
	}

	resp, err := decodeResponse(data)
	if err != nil {
		return nil, ErrorClassMalformed, &ResponseError{
			Action:     action,
			StatusCode: httpResp.StatusCode,
			ErrorClass: ErrorClassMalformed,
			Message:    "response is not valid JSON",
			Err:        err,
		}
	}

	if resp.Error != nil {
		if resp.Error.Code == "ratelimited" {
			return nil, ErrorClassRateLimit, &ResponseError{
				Action:     action,
				StatusCode: httpResp.StatusCode,
				ErrorClass: ErrorClassRateLimit,
				Message:    resp.Error.Info,
			}
		}
		return nil, "", &APIError{Action: action, Code: resp.Error.Code, Info: resp.Error.Info}
	}

	if resp.RateLimited(action) {
		return nil, ErrorClassRateLimit, &ResponseError{
			Action:     action,
			StatusCode: httpResp.StatusCode,
			ErrorClass: ErrorClassRateLimit,
			Message:    resp.Warnings[action].Text(),
		}
	}

	if generator && !bool(resp.BatchComplete) {
		return nil, ErrorClassIncomplete, &ResponseError{
			Action:     action,
			StatusCode: httpResp.StatusCode,
			ErrorClass: ErrorClassIncomplete,
			Message:    "generator query response has no batchcomplete marker",
		}
	}

	return resp, "", nil
}

// buildRequest merges the default parameters, the action, and the caller's
// query parameters into the URL. Defaults and action take precedence.
func (c *Client) buildRequest(ctx context.Context, method, action string, query, body url.Values) (*http.Request, error) {
	u := *c.endpoint
	params := u.Query()
	for key, values := range query {
		params[key] = append([]string(nil), values...)
	}
	params.Set("format", "json")
	if c.config.FormatVersion > 0 {
		params.Set("formatversion", strconv.Itoa(c.config.FormatVersion))
	}
	params.Set("action", action)
	u.RawQuery = params.Encode()

	var reader io.Reader
	if len(body) > 0 {
		reader = strings.NewReader(body.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Endpoint returns the configured API endpoint.
func (c *Client) Endpoint() *url.URL {
	u := *c.endpoint
	return &u
}

// Transport returns the underlying transport.
func (c *Client) Transport() *Transport {
	return c.transport
}

// Close logs out and releases resources.
func (c *Client) Close() error {
	c.Logout()
	return nil
}
