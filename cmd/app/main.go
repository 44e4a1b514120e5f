package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Harvey-AU/site-mirror/internal/crawler"
	"github.com/Harvey-AU/site-mirror/internal/mirror"
	"github.com/Harvey-AU/site-mirror/internal/observability"
	"github.com/Harvey-AU/site-mirror/internal/storage"
)

// Config holds process-level settings read from the environment
type Config struct {
	Env                  string // Environment (development/production)
	SentryDSN            string // Sentry DSN for error tracking
	LogLevel             string // Log level (debug, info, warn, error)
	ObservabilityEnabled bool   // Toggle OpenTelemetry + Prometheus instrumentation
	MetricsAddr          string // Address for Prometheus metrics endpoint, empty disables it
	OTLPEndpoint         string // OTLP trace exporter endpoint
	OTLPHeaders          string // Comma separated headers for OTLP exporter
	OTLPInsecure         bool   // Disable TLS verification for OTLP exporter
}

// settings are the per-run options resolved from flags, MIRROR_* variables
// and an optional site-mirror.yaml
type settings struct {
	Output    string
	Crawler   *crawler.Config
	Traversal mirror.Config
}

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// Load .env files - .env.local takes priority for development
	godotenv.Load(".env.local", ".env")

	config := &Config{
		Env:                  getEnvWithDefault("APP_ENV", "development"),
		SentryDSN:            os.Getenv("SENTRY_DSN"),
		LogLevel:             getEnvWithDefault("LOG_LEVEL", "info"),
		ObservabilityEnabled: getEnvWithDefault("OBSERVABILITY_ENABLED", "false") == "true",
		MetricsAddr:          os.Getenv("METRICS_ADDR"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPHeaders:          os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"),
		OTLPInsecure:         getEnvWithDefault("OTEL_EXPORTER_OTLP_INSECURE", "false") == "true",
	}

	setupLogging(config)

	// Initialise Sentry for error tracking
	if config.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.SentryDSN,
			Environment: config.Env,
			TracesSampleRate: func() float64 {
				if config.Env == "production" {
					return 0.1 // 10% sampling in production
				}
				return 1.0
			}(),
			AttachStacktrace: true,
			Debug:            config.Env == "development",
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise Sentry")
		} else {
			log.Debug().Str("environment", config.Env).Msg("Sentry initialised successfully")
			defer sentry.Flush(2 * time.Second)
		}
	}

	if config.ObservabilityEnabled {
		shutdown := startObservability(config)
		defer shutdown()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(viper.New())
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("site-mirror failed")
		return err
	}
	return nil
}

// startObservability initialises telemetry and, when configured, serves
// /metrics for the lifetime of the run. The returned func flushes both.
func startObservability(config *Config) func() {
	obsProviders, err := observability.Init(context.Background(), observability.Config{
		Enabled:      true,
		ServiceName:  "site-mirror",
		Environment:  config.Env,
		OTLPEndpoint: strings.TrimSpace(config.OTLPEndpoint),
		OTLPHeaders:  parseOTLPHeaders(config.OTLPHeaders),
		OTLPInsecure: config.OTLPInsecure,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialise observability providers")
		return func() {}
	}

	var metricsSrv *http.Server
	if obsProviders.MetricsHandler != nil && config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", obsProviders.MetricsHandler)
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("OK"))
		})

		metricsSrv = &http.Server{
			Addr:              config.MetricsAddr,
			Handler:           observability.WrapHandler(mux, obsProviders),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.Info().Str("addr", config.MetricsAddr).Msg("Metrics server listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				sentry.CaptureException(err)
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn().Err(err).Msg("Graceful shutdown of metrics server failed")
			}
		}
		if err := obsProviders.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush telemetry providers cleanly")
		}
	}
}

// newRootCmd builds the site-mirror command. Flags are bound to v so each
// can also be set as MIRROR_<FLAG> or in site-mirror.yaml.
func newRootCmd(v *viper.Viper) *cobra.Command {
	crawlerDefaults := crawler.DefaultConfig()
	traversalDefaults := mirror.DefaultConfig()

	cmd := &cobra.Command{
		Use:          "site-mirror <seed-url>",
		Short:        "Mirror a website to a local directory for offline browsing",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}

			summary, err := mirrorSite(cmd.Context(), args[0], s)
			if summary != nil {
				printSummary(cmd.OutOrStdout(), summary)
				reportSummary(summary)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringP("output", "o", "./mirror", "Directory the mirror is written to")
	flags.Int("max-depth", traversalDefaults.MaxDepth, "Deepest page level to follow, the seed is depth 0")
	flags.Int("max-pages", traversalDefaults.MaxPages, "Maximum pages to mirror, 0 for no limit")
	flags.String("nav-selector", traversalDefaults.NavigationSelector, "Selector scoping page links on the seed page")
	flags.String("content-selector", traversalDefaults.ContentSelector, "Selector scoping page links on nested pages")
	flags.String("css-asset-base", traversalDefaults.CSSAssetBase, "Base URL for url() references in stylesheets, empty for the stylesheet URL")
	flags.Bool("same-host-only", traversalDefaults.SameHostOnly, "Only mirror pages and resources on the seed host")
	flags.Int("concurrency", crawlerDefaults.MaxConcurrency, "Maximum fetches in flight")
	flags.Int("rate-limit", crawlerDefaults.RateLimit, "Maximum requests per second, 0 for no pacing")
	flags.Duration("timeout", crawlerDefaults.RequestTimeout, "Timeout for each fetch")
	flags.String("user-agent", crawlerDefaults.UserAgent, "User-Agent header sent with each request")
	flags.Int("max-body-bytes", crawlerDefaults.MaxBodyBytes, "Largest response body accepted, 0 for no limit")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("MIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

// loadSettings resolves run settings from v, reading site-mirror.yaml from the
// working directory when one exists
func loadSettings(v *viper.Viper) (*settings, error) {
	v.SetConfigName("site-mirror")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	s := &settings{
		Output: v.GetString("output"),
		Crawler: &crawler.Config{
			RequestTimeout: v.GetDuration("timeout"),
			MaxConcurrency: v.GetInt("concurrency"),
			RateLimit:      v.GetInt("rate-limit"),
			UserAgent:      v.GetString("user-agent"),
			MaxBodyBytes:   v.GetInt("max-body-bytes"),
		},
		Traversal: mirror.Config{
			MaxDepth:           v.GetInt("max-depth"),
			MaxPages:           v.GetInt("max-pages"),
			NavigationSelector: v.GetString("nav-selector"),
			ContentSelector:    v.GetString("content-selector"),
			CSSAssetBase:       v.GetString("css-asset-base"),
			SameHostOnly:       v.GetBool("same-host-only"),
		},
	}

	if strings.TrimSpace(s.Output) == "" {
		return nil, errors.New("output directory must not be empty")
	}
	if s.Crawler.MaxConcurrency < 1 {
		s.Crawler.MaxConcurrency = 1
	}
	if err := s.Traversal.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// mirrorSite wires the transport, limiter and storage into an engine and runs it
func mirrorSite(ctx context.Context, seedURL string, s *settings) (*mirror.Summary, error) {
	transport := crawler.NewCollyTransport(s.Crawler)
	limiter := crawler.NewLimiter(s.Crawler.MaxConcurrency, s.Crawler.RateLimit)
	store := storage.NewOS()

	engine := mirror.New(
		s.Traversal,
		crawler.NewFetcher(transport, limiter, s.Crawler.RequestTimeout),
		crawler.NewDownloader(transport, limiter, store, s.Crawler.RequestTimeout),
		store,
	)

	log.Info().
		Str("seed", seedURL).
		Str("output", s.Output).
		Int("concurrency", s.Crawler.MaxConcurrency).
		Str("user_agent", transport.GetUserAgent()).
		Msg("Mirroring site")

	return engine.Mirror(ctx, seedURL, s.Output)
}

func printSummary(w io.Writer, s *mirror.Summary) {
	fmt.Fprintf(w, "Run:                  %s\n", s.RunID)
	fmt.Fprintf(w, "Seed:                 %s\n", s.SeedURL)
	fmt.Fprintf(w, "Output:               %s\n", s.MirrorRoot)
	fmt.Fprintf(w, "Pages persisted:      %d\n", s.PagesPersisted)
	fmt.Fprintf(w, "Pages failed:         %d\n", s.PagesFailed)
	fmt.Fprintf(w, "Pages truncated:      %d\n", s.PagesTruncated)
	fmt.Fprintf(w, "Resources downloaded: %d\n", s.ResourcesDownloaded)
	fmt.Fprintf(w, "Resources failed:     %d\n", s.ResourcesFailed)
	fmt.Fprintf(w, "Duration:             %s\n", s.Duration.Round(time.Millisecond))

	for _, warning := range s.Warnings {
		fmt.Fprintf(w, "  warning [%s %s] %s\n", warning.Kind, warning.Role, warning.Message)
	}
}

// reportSummary raises a Sentry warning for a partially failed run
func reportSummary(s *mirror.Summary) {
	if !s.HasFailures() {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("run_id", s.RunID)
		scope.SetContext("summary", map[string]interface{}{
			"seed_url":             s.SeedURL,
			"pages_persisted":      s.PagesPersisted,
			"pages_failed":         s.PagesFailed,
			"resources_downloaded": s.ResourcesDownloaded,
			"resources_failed":     s.ResourcesFailed,
		})
		sentry.CaptureMessage(fmt.Sprintf("Mirror of %s finished with %d failed pages and %d failed resources",
			s.SeedURL, s.PagesFailed, s.ResourcesFailed))
	})
}

// getEnvWithDefault retrieves an environment variable or returns a default value if not set
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func parseOTLPHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return headers
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}

		headers[key] = value
	}

	return headers
}

// setupLogging configures the logging system
func setupLogging(config *Config) {
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	// Console output in development, JSON otherwise. Logs go to stderr so the
	// summary on stdout stays readable.
	if config.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).
			With().
			Timestamp().
			Str("service", "site-mirror").
			Logger()
	}
}
