// Package cli implements the wikipurge command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/wikipurge/pkg/checkpoint"
	"github.com/Sternrassler/wikipurge/pkg/client"
	"github.com/Sternrassler/wikipurge/pkg/logging"
	"github.com/Sternrassler/wikipurge/pkg/metrics"
	"github.com/Sternrassler/wikipurge/pkg/purge"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version info set by main package
var versionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// SetVersionInfo is called by main package to set version information.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// Execute runs the root command until it finishes or SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "wikipurge",
		Short: "Purge the cache of every page of a MediaWiki site",
		Long: `wikipurge enumerates all pages of a wiki through its action API and
purges them batch by batch, staying within a client-side request rate.

Every flag can also be set as WIKIPURGE_<FLAG> (dashes become underscores)
or as a key in the --config YAML file.`,
		SilenceUsage: true,
		RunE:         runPurge,
	}
	registerFlags(root.Flags())

	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wikipurge %s (commit %s, built %s)\n",
				versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
		},
	}
}

func runPurge(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return err
	}
	settings, err := loadSettings(v)
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(settings.LogLevel),
		Pretty: settings.Pretty,
		Output: cmd.ErrOrStderr(),
		Wiki:   endpointHost(settings.Endpoint),
	})
	logger := logging.NewLogger("cli")

	ctx := cmd.Context()
	if settings.MetricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(metricsCtx, settings.MetricsAddr); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	clientCfg, err := settings.ClientConfig()
	if err != nil {
		return err
	}
	wiki, err := client.New(clientCfg)
	if err != nil {
		return err
	}
	defer wiki.Close()

	if settings.Username != "" {
		if err := wiki.Login(ctx, settings.Username, settings.Password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	store, closeStore, err := openStore(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	purger, err := purge.New(wiki, store, settings.PurgeConfig())
	if err != nil {
		return err
	}

	stats, err := purger.Run(ctx)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Purged %d of %d pages in %d batches (%d not purged) in %s\n",
		stats.Purged, stats.Pages, stats.Batches, stats.Failed, stats.Duration.Round(time.Millisecond))
	if err != nil {
		if stats.LastCursor != "" {
			fmt.Fprintf(out, "Resume with --start %q\n", stats.LastCursor)
		}
		if errors.Is(err, client.ErrContextCancelled) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("interrupted: %w", err)
		}
		return err
	}
	return nil
}

// openStore returns the checkpoint store selected by settings.
func openStore(ctx context.Context, s Settings, logger zerolog.Logger) (checkpoint.Store, func(), error) {
	if s.CheckpointRedis == "" {
		return checkpoint.Nop{}, func() {}, nil
	}

	redisClient := redis.NewClient(&redis.Options{Addr: s.CheckpointRedis})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("connect to checkpoint redis at %s: %w", s.CheckpointRedis, err)
	}
	logger.Info().
		Str("addr", s.CheckpointRedis).
		Str("key", checkpoint.Key(s.CheckpointKey)).
		Msg("Using Redis checkpoints")

	return checkpoint.NewRedisStore(redisClient, s.CheckpointTTL), func() { redisClient.Close() }, nil
}
