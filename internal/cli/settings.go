package cli

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/wikipurge/pkg/client"
	"github.com/Sternrassler/wikipurge/pkg/logging"
	"github.com/Sternrassler/wikipurge/pkg/purge"
	"github.com/Sternrassler/wikipurge/pkg/ratelimit"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variable of every flag:
// --batch-size is WIKIPURGE_BATCH_SIZE.
const EnvPrefix = "WIKIPURGE"

// Settings is the resolved configuration of one invocation.
type Settings struct {
	Endpoint  string
	UserAgent string

	Rate              string
	ThrottleAlgorithm string
	Burst             int

	MaxAttempts        int
	Backoff            time.Duration
	UnboundedRateLimit bool
	RetryTransport     bool
	HTTPTimeout        time.Duration

	Username string
	Password string

	BatchSize                int
	Start                    string
	Namespace                int
	ForceLinkUpdate          bool
	ForceRecursiveLinkUpdate bool

	CheckpointRedis string
	CheckpointKey   string
	CheckpointTTL   time.Duration

	MetricsAddr string
	LogLevel    string
	Pretty      bool
}

// registerFlags declares every setting as a flag.
func registerFlags(flags *pflag.FlagSet) {
	defaults := client.DefaultConfig("")

	flags.String("config", "", "config file (YAML)")
	flags.String("endpoint", "", "api.php URL of the wiki (required)")
	flags.String("user-agent", defaults.UserAgent, "User-Agent header")

	flags.String("rate", ratelimit.DefaultConfig().String(), `request rate as quota/period, e.g. "2/1s"; "none" disables throttling`)
	flags.String("throttle-algorithm", string(ratelimit.AlgorithmLeakyBucket), "throttle algorithm: leaky_bucket or token_bucket")
	flags.Int("burst", 0, "token bucket burst (default: quota)")

	flags.Int("max-attempts", defaults.Retry.MaxAttempts, "attempts per request before giving up")
	flags.Duration("backoff", defaults.Retry.Backoff, "fixed delay between attempts")
	flags.Bool("unbounded-rate-limit", false, "retry rate limit warnings without consuming attempts")
	flags.Bool("retry-transport", false, "retry connection failures within the attempt budget")
	flags.Duration("http-timeout", defaults.HTTPTimeout, "timeout of a single HTTP exchange")

	flags.String("username", "", "bot password user name (User@BotName)")
	flags.String("password", "", "bot password")

	flags.Int("batch-size", purge.DefaultBatchSize, "pages per batch")
	flags.String("start", "", "title to start from (default: saved checkpoint or the beginning)")
	flags.Int("namespace", -1, "restrict to one namespace (-1: API default)")
	flags.Bool("force-link-update", false, "update the links tables of purged pages")
	flags.Bool("force-recursive-link-update", false, "also update pages transcluding purged pages")

	flags.String("checkpoint-redis", "", "Redis address for resumable checkpoints (empty: disabled)")
	flags.String("checkpoint-key", "", "checkpoint key (default: endpoint host)")
	flags.Duration("checkpoint-ttl", 7*24*time.Hour, "lifetime of an unfinished checkpoint")

	flags.String("metrics-addr", "", "serve Prometheus metrics on this address (empty: disabled)")
	flags.String("log-level", string(logging.LevelInfo), "log level: trace, debug, info, warn, error")
	flags.Bool("pretty", false, "human-readable logs")
}

// newViper binds flags, environment, and the optional config file.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}
	return v, nil
}

// loadSettings reads and validates the settings from v.
func loadSettings(v *viper.Viper) (Settings, error) {
	s := Settings{
		Endpoint:  v.GetString("endpoint"),
		UserAgent: v.GetString("user-agent"),

		Rate:              v.GetString("rate"),
		ThrottleAlgorithm: v.GetString("throttle-algorithm"),
		Burst:             v.GetInt("burst"),

		MaxAttempts:        v.GetInt("max-attempts"),
		Backoff:            v.GetDuration("backoff"),
		UnboundedRateLimit: v.GetBool("unbounded-rate-limit"),
		RetryTransport:     v.GetBool("retry-transport"),
		HTTPTimeout:        v.GetDuration("http-timeout"),

		Username: v.GetString("username"),
		Password: v.GetString("password"),

		BatchSize:                v.GetInt("batch-size"),
		Start:                    v.GetString("start"),
		Namespace:                v.GetInt("namespace"),
		ForceLinkUpdate:          v.GetBool("force-link-update"),
		ForceRecursiveLinkUpdate: v.GetBool("force-recursive-link-update"),

		CheckpointRedis: v.GetString("checkpoint-redis"),
		CheckpointKey:   v.GetString("checkpoint-key"),
		CheckpointTTL:   v.GetDuration("checkpoint-ttl"),

		MetricsAddr: v.GetString("metrics-addr"),
		LogLevel:    v.GetString("log-level"),
		Pretty:      v.GetBool("pretty"),
	}

	if s.Endpoint == "" {
		return s, errors.New("--endpoint is required")
	}
	if (s.Username == "") != (s.Password == "") {
		return s, errors.New("--username and --password must be given together")
	}
	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		return s, err
	}
	if s.CheckpointKey == "" {
		s.CheckpointKey = endpointHost(s.Endpoint)
	}
	return s, nil
}

// ThrottleConfig parses Rate and applies the algorithm and burst settings.
func (s Settings) ThrottleConfig() (ratelimit.Config, error) {
	cfg, err := ratelimit.ParseConfig(s.Rate)
	if err != nil {
		return cfg, err
	}
	if cfg.Algorithm == ratelimit.AlgorithmNone {
		return cfg, nil
	}
	if s.ThrottleAlgorithm != "" {
		cfg.Algorithm = ratelimit.Algorithm(s.ThrottleAlgorithm)
	}
	cfg.Burst = s.Burst
	return cfg, cfg.Validate()
}

// ClientConfig builds the wiki client configuration.
func (s Settings) ClientConfig() (client.Config, error) {
	throttle, err := s.ThrottleConfig()
	if err != nil {
		return client.Config{}, err
	}

	cfg := client.DefaultConfig(s.Endpoint)
	if s.UserAgent != "" {
		cfg.UserAgent = s.UserAgent
	}
	cfg.Throttle = throttle
	cfg.Retry = client.RetryConfig{
		MaxAttempts:        s.MaxAttempts,
		Backoff:            s.Backoff,
		UnboundedRateLimit: s.UnboundedRateLimit,
		RetryTransport:     s.RetryTransport,
	}
	cfg.HTTPTimeout = s.HTTPTimeout
	return cfg, nil
}

// PurgeConfig builds the purger configuration.
func (s Settings) PurgeConfig() purge.Config {
	cfg := purge.DefaultConfig()
	cfg.BatchSize = s.BatchSize
	cfg.StartCursor = s.Start
	if s.Namespace >= 0 {
		ns := s.Namespace
		cfg.Namespace = &ns
	}
	cfg.ForceLinkUpdate = s.ForceLinkUpdate
	cfg.ForceRecursiveLinkUpdate = s.ForceRecursiveLinkUpdate
	cfg.CheckpointKey = s.CheckpointKey
	return cfg
}

func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
