// Package purge invalidates the server-side cache of every page of a wiki.
//
// The Purger enumerates pages with the allpages generator and purges each
// batch by page id as soon as it arrives. Progress is checkpointed after
// every batch so an interrupted run resumes at the next unprocessed batch.
package purge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/wikipurge/pkg/checkpoint"
	"github.com/Sternrassler/wikipurge/pkg/client"
	"github.com/Sternrassler/wikipurge/pkg/metrics"
	"github.com/Sternrassler/wikipurge/pkg/pagination"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var pagesPurgedTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
	Name: "wiki_pages_purged_total",
	Help: "Total pages processed by the purger by result",
}, []string{"result"})

// Defaults.
const (
	DefaultBatchSize     = 50
	DefaultCheckpointKey = "default"

	// MaxBatchSize is the pageids limit for bot accounts.
	MaxBatchSize = 500
)

// Config holds the purger configuration.
type Config struct {
	// BatchSize is sent as gaplimit and bounds the pageids of one purge.
	BatchSize int

	// StartCursor resumes enumeration at this title. When empty a saved
	// checkpoint is used, if any.
	StartCursor string

	// Namespace restricts enumeration to one namespace (nil = API default).
	Namespace *int

	// ForceLinkUpdate updates the links tables of purged pages.
	ForceLinkUpdate bool

	// ForceRecursiveLinkUpdate also updates pages that transclude them.
	ForceRecursiveLinkUpdate bool

	// CheckpointKey names this run's checkpoint, usually the wiki.
	CheckpointKey string
}

// DefaultConfig returns the default purger configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:     DefaultBatchSize,
		CheckpointKey: DefaultCheckpointKey,
	}
}

// Validate checks the purger configuration.
func (c Config) Validate() error {
	if c.BatchSize <= 0 || c.BatchSize > MaxBatchSize {
		return fmt.Errorf("batch size must be in 1..%d (got %d)", MaxBatchSize, c.BatchSize)
	}
	if c.Namespace != nil && *c.Namespace < 0 {
		return fmt.Errorf("namespace must be >= 0 (got %d)", *c.Namespace)
	}
	return nil
}

// Stats summarises a purge run.
type Stats struct {
	RunID       string
	StartCursor string
	LastCursor  string
	Batches     int
	Pages       int
	Purged      int
	Failed      int
	Duration    time.Duration
}

// Purger purges every page of a wiki.
type Purger struct {
	requester client.Requester
	store     checkpoint.Store
	config    Config
}

// New creates a purger. A nil store disables checkpointing.
func New(requester client.Requester, store checkpoint.Store, cfg Config) (*Purger, error) {
	if requester == nil {
		return nil, fmt.Errorf("requester is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = checkpoint.Nop{}
	}
	if cfg.CheckpointKey == "" {
		cfg.CheckpointKey = DefaultCheckpointKey
	}
	return &Purger{
		requester: requester,
		store:     store,
		config:    cfg,
	}, nil
}

// Run purges all pages. The returned stats are valid even when an error
// stops the run early.
func (p *Purger) Run(ctx context.Context) (Stats, error) {
	stats := Stats{RunID: uuid.NewString()}
	logger := log.With().
		Str("component", "purger").
		Str("run_id", stats.RunID).
		Logger()

	start := time.Now()
	stats.StartCursor = p.startCursor(ctx, logger)
	stats.LastCursor = stats.StartCursor

	logger.Info().
		Str("start_cursor", stats.StartCursor).
		Int("batch_size", p.config.BatchSize).
		Msg("Starting purge")

	params := url.Values{"gaplimit": {strconv.Itoa(p.config.BatchSize)}}
	if p.config.Namespace != nil {
		params.Set("gapnamespace", strconv.Itoa(*p.config.Namespace))
	}

	driver := pagination.Driver{Requester: p.requester}
	err := driver.Traverse(ctx, http.MethodGet, "query", "allpages", stats.StartCursor, params,
		func(ctx context.Context, resp *client.Response, next *string) error {
			purged, failed, err := p.purgeBatch(ctx, resp, next, logger)
			if err != nil {
				return err
			}

			stats.Batches++
			stats.Pages += purged + failed
			stats.Purged += purged
			stats.Failed += failed

			if next != nil {
				stats.LastCursor = *next
				if err := p.store.Save(ctx, p.config.CheckpointKey, *next); err != nil {
					logger.Warn().Err(err).Str("cursor", *next).Msg("Failed to save checkpoint")
				}
			}

			logger.Info().
				Int("batch", stats.Batches).
				Int("purged", stats.Purged).
				Int("failed", stats.Failed).
				Str("next", stats.LastCursor).
				Msg("Purge progress")
			return nil
		})
	stats.Duration = time.Since(start)

	if err != nil {
		logger.Error().
			Err(err).
			Str("resume_cursor", stats.LastCursor).
			Int("purged", stats.Purged).
			Msg("Purge aborted")
		return stats, err
	}

	if err := p.store.Delete(ctx, p.config.CheckpointKey); err != nil {
		logger.Warn().Err(err).Msg("Failed to delete checkpoint")
	}

	logger.Info().
		Int("batches", stats.Batches).
		Int("pages", stats.Pages).
		Int("purged", stats.Purged).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Msg("Purge complete")
	return stats, nil
}

// startCursor returns the configured start cursor or the saved checkpoint.
func (p *Purger) startCursor(ctx context.Context, logger zerolog.Logger) string {
	if p.config.StartCursor != "" {
		return p.config.StartCursor
	}

	cursor, ok, err := p.store.Load(ctx, p.config.CheckpointKey)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load checkpoint, starting from the beginning")
		return ""
	}
	if ok {
		logger.Info().Str("cursor", cursor).Msg("Resuming from checkpoint")
	}
	return cursor
}

// purgeBatch purges the pages of one enumeration response and returns how
// many were confirmed purged and how many were not.
func (p *Purger) purgeBatch(ctx context.Context, resp *client.Response, next *string, logger zerolog.Logger) (purged, failed int, err error) {
	pages, ok := resp.Pages()
	if !ok {
		// An empty wiki answers with no query object and no continuation.
		if resp.Query == nil && next == nil {
			return 0, 0, nil
		}
		return 0, 0, &client.ProtocolError{Action: "query", Field: "query.pages"}
	}
	if len(pages) == 0 {
		return 0, 0, nil
	}

	ids := make([]string, len(pages))
	for i, page := range pages {
		ids[i] = strconv.FormatInt(page.ID, 10)
	}

	body := url.Values{"pageids": {strings.Join(ids, "|")}}
	if p.config.ForceLinkUpdate {
		body.Set("forcelinkupdate", "1")
	}
	if p.config.ForceRecursiveLinkUpdate {
		body.Set("forcerecursivelinkupdate", "1")
	}

	purgeResp, err := p.requester.Request(ctx, http.MethodPost, "purge", nil, body)
	if err != nil {
		return 0, 0, fmt.Errorf("purge %d pages from %q: %w", len(pages), pages[0].Title, err)
	}

	results := make(map[string]client.PurgeResult, len(purgeResp.Purge))
	for _, result := range purgeResp.Purge {
		results[result.Title] = result
	}

	for _, page := range pages {
		result, found := results[page.Title]
		if found && result.IsPurged() {
			purged++
			pagesPurgedTotal.WithLabelValues("purged").Inc()
			continue
		}

		failed++
		pagesPurgedTotal.WithLabelValues("failed").Inc()
		logger.Warn().
			Int64("page_id", page.ID).
			Str("title", page.Title).
			Str("reason", failureReason(result, found)).
			Msg("Page not purged")
	}
	return purged, failed, nil
}

func failureReason(result client.PurgeResult, found bool) string {
	switch {
	case !found:
		return "no result"
	case bool(result.Missing):
		return "missing"
	case bool(result.Invalid):
		return "invalid"
	default:
		return "not purged"
	}
}
