package pagination

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/wikipurge/pkg/client"
	"github.com/Sternrassler/wikipurge/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var traversalBatchesTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
	Name: "wiki_traversal_batches_total",
	Help: "Total batches delivered to traversal consumers by action",
}, []string{"action"})

// BatchFunc consumes one batch. next is the cursor of the following batch,
// or nil when resp is the last one. A non-nil error stops the traversal.
type BatchFunc func(ctx context.Context, resp *client.Response, next *string) error

// Driver runs cursor traversals over a Requester.
type Driver struct {
	Requester client.Requester
}

// Traverse requests action with generator, starting at startCursor ("" for
// the beginning), and calls onBatch for every response in order. params are
// sent in the query string for GET and in the body otherwise; they are not
// modified.
func (d *Driver) Traverse(ctx context.Context, method, action, generator, startCursor string, params url.Values, onBatch BatchFunc) error {
	logger := log.With().
		Str("component", "traversal").
		Str("action", action).
		Str("generator", generator).
		Logger()

	cursor := startCursor
	batches := 0

	for {
		reqParams := make(url.Values, len(params)+2)
		for key, values := range params {
			reqParams[key] = append([]string(nil), values...)
		}
		reqParams.Set("generator", generator)
		if cursor != "" {
			reqParams.Set("gapfrom", cursor)
		}

		var query, body url.Values
		if method == http.MethodGet {
			query = reqParams
		} else {
			body = reqParams
		}

		resp, err := d.Requester.Request(ctx, method, action, query, body)
		if err != nil {
			return fmt.Errorf("traverse %s at cursor %q: %w", action, cursor, err)
		}
		batches++
		traversalBatchesTotal.WithLabelValues(action).Inc()

		var next *string
		if c, ok := NextCursor(resp); ok {
			next = &c
		}

		logger.Debug().
			Int("batch", batches).
			Str("cursor", cursor).
			Bool("last", next == nil).
			Msg("Delivering batch")

		if err := onBatch(ctx, resp, next); err != nil {
			return fmt.Errorf("batch %d consumer: %w", batches, err)
		}

		if next == nil {
			logger.Info().Int("batches", batches).Msg("Traversal complete")
			return nil
		}
		cursor = *next
	}
}

// NextCursor extracts the continuation cursor from resp: continue.gapcontinue
// first, then query-continue.allpages.gapfrom.
func NextCursor(resp *client.Response) (string, bool) {
	if resp == nil {
		return "", false
	}
	if c, ok := cursorValue(resp.Continue["gapcontinue"]); ok {
		return c, true
	}
	if legacy, ok := resp.QueryContinue["allpages"]; ok {
		if c, ok := cursorValue(legacy["gapfrom"]); ok {
			return c, true
		}
	}
	return "", false
}

// cursorValue accepts string and numeric cursor values.
func cursorValue(v any) (string, bool) {
	switch c := v.(type) {
	case string:
		return c, true
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64), true
	default:
		return "", false
	}
}
