// Package metrics exposes the Prometheus registry used by the wiki client.
// Metrics are defined in their own packages (ratelimit, client, pagination,
// purge, checkpoint) and registered on Registry via promauto.With; this
// package serves them and documents the catalogue.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the Prometheus registerer used by all packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the Prometheus gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Path is the HTTP path metrics are served on.
const Path = "/metrics"

// Handler returns the HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Serve exposes Handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	logger := log.With().Str("component", "metrics").Logger()

	mux := http.NewServeMux()
	mux.Handle(Path, Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info().Msg("Metrics server stopped")
		return nil
	}
}

// Metrics Documentation
//
// Throttle Metrics (pkg/ratelimit):
//   - wiki_throttle_waits_total{algorithm} (Counter): Requests delayed by the client-side throttle
//   - wiki_throttle_wait_seconds{algorithm} (Histogram): Time spent waiting for capacity
//
// Request Metrics (pkg/client):
//   - wiki_requests_total{action, status} (Counter): HTTP exchanges by action and status
//   - wiki_request_duration_seconds{action} (Histogram): Exchange duration by action
//   - wiki_errors_total{class} (Counter): Failed attempts by class (client, server, rate_limit, malformed, incomplete, network)
//
// Retry Metrics (pkg/client):
//   - wiki_retries_total{error_class} (Counter): Retries by error class
//   - wiki_retry_exhausted_total{action} (Counter): Requests that used up every attempt
//
// Traversal Metrics (pkg/pagination):
//   - wiki_traversal_batches_total{action} (Counter): Batches delivered to consumers
//
// Purge Metrics (pkg/purge):
//   - wiki_pages_purged_total{result} (Counter): Pages processed by result (purged, failed)
//
// Checkpoint Metrics (pkg/checkpoint):
//   - wiki_checkpoint_errors_total{operation} (Counter): Failed load/save/delete calls
//
// Example Prometheus Queries:
//
//   # Purge throughput
//   rate(wiki_pages_purged_total{result="purged"}[5m])
//
//   # Share of time spent throttled
//   rate(wiki_throttle_wait_seconds_sum[5m])
//
//   # Rate limit pressure
//   rate(wiki_retries_total{error_class="rate_limit"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(wiki_request_duration_seconds_bucket[5m]))
