// Package observability exports mirror run telemetry: a span per page step,
// fetch and page counters, and a Prometheus handler for scraping them while
// a run is in progress.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls observability for one site-mirror process.
type Config struct {
	Enabled      bool
	ServiceName  string            // Reported as service.name, defaults to site-mirror
	Environment  string            // APP_ENV of the process
	OTLPEndpoint string            // Page spans are exported here when set, otherwise kept local
	OTLPHeaders  map[string]string // Extra headers for the OTLP exporter, usually auth
	OTLPInsecure bool
}

// Providers exposes configured telemetry providers.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Propagator     propagation.TextMapPropagator
	MetricsHandler http.Handler
	Shutdown       func(ctx context.Context) error
	Config         Config
}

const instrumentationName = "site-mirror/mirror"

var (
	mirrorTracer trace.Tracer

	fetchDuration metric.Float64Histogram
	fetchTotal    metric.Int64Counter
	pageTotal     metric.Int64Counter
)

// Init configures tracing and metrics for mirror runs and binds the mirror
// instruments to the new providers. When cfg.Enabled is false it is a no-op
// and the Record helpers stay silent.
func Init(ctx context.Context, cfg Config) (*Providers, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "site-mirror"
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	tracerProvider := newTracerProvider(ctx, cfg, res)
	otel.SetTracerProvider(tracerProvider)

	prop := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(prop)

	meterProvider, metricsHandler, err := newMeterProvider(res)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}
	otel.SetMeterProvider(meterProvider)

	mirrorTracer = tracerProvider.Tracer(instrumentationName)
	if err := initMirrorInstruments(meterProvider); err != nil {
		log.Warn().Err(err).Msg("Failed to create mirror instruments, metrics disabled")
	}

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		var allErr error
		if err := meterProvider.Shutdown(ctx); err != nil {
			allErr = errors.Join(allErr, fmt.Errorf("metric provider shutdown: %w", err))
		}
		if err := tracerProvider.Shutdown(ctx); err != nil {
			allErr = errors.Join(allErr, fmt.Errorf("trace provider shutdown: %w", err))
		}
		return allErr
	}

	return &Providers{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
		Propagator:     prop,
		MetricsHandler: metricsHandler,
		Shutdown:       shutdown,
		Config:         cfg,
	}, nil
}

// newTracerProvider exports spans over OTLP when an endpoint is configured.
// An exporter that cannot be built leaves tracing local; the run still proceeds.
func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.OTLPEndpoint == "" {
		return sdktrace.NewTracerProvider(opts...)
	}

	clientOpts := []otlptracehttp.Option{getOTLPEndpointOption(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
	}
	if len(cfg.OTLPHeaders) > 0 {
		clientOpts = append(clientOpts, otlptracehttp.WithHeaders(cfg.OTLPHeaders))
	}

	exp, err := otlptracehttp.New(ctx, clientOpts...)
	if err != nil {
		log.Warn().
			Err(err).
			Str("endpoint", cfg.OTLPEndpoint).
			Msg("Failed to create OTLP trace exporter, page spans stay local")
		return sdktrace.NewTracerProvider(opts...)
	}

	log.Debug().Str("endpoint", cfg.OTLPEndpoint).Msg("Exporting page spans over OTLP")
	return sdktrace.NewTracerProvider(append(opts, sdktrace.WithBatcher(exp))...)
}

// newMeterProvider backs the mirror instruments with a private Prometheus
// registry and returns the handler that serves it
func newMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, http.Handler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	promExporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("create Prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	)
	return meterProvider, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

func getOTLPEndpointOption(endpoint string) otlptracehttp.Option {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return otlptracehttp.WithEndpointURL(endpoint)
	}
	return otlptracehttp.WithEndpoint(endpoint)
}

// WrapHandler applies OpenTelemetry instrumentation to an http.Handler when the providers are active.
func WrapHandler(handler http.Handler, prov *Providers) http.Handler {
	if prov == nil || prov.TracerProvider == nil {
		return handler
	}

	options := []otelhttp.Option{
		otelhttp.WithTracerProvider(prov.TracerProvider),
		otelhttp.WithPropagators(prov.Propagator),
		otelhttp.WithMeterProvider(prov.MeterProvider),
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		}),
		// Skip tracing for health checks to reduce noise
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	}

	return otelhttp.NewHandler(handler, "http.server", options...)
}

func initMirrorInstruments(meterProvider *sdkmetric.MeterProvider) error {
	if meterProvider == nil {
		return nil
	}

	meter := meterProvider.Meter(instrumentationName)

	var err error
	fetchDuration, err = meter.Float64Histogram(
		"mirror.fetch.duration_ms",
		metric.WithUnit("ms"),
		metric.WithDescription("Time taken to fetch a page or resource"),
	)
	if err != nil {
		return err
	}

	fetchTotal, err = meter.Int64Counter(
		"mirror.fetch.total",
		metric.WithDescription("Counts fetch outcomes by role"),
	)
	if err != nil {
		return err
	}

	pageTotal, err = meter.Int64Counter(
		"mirror.page.total",
		metric.WithDescription("Counts pages by traversal outcome"),
	)
	return err
}

// PageSpanInfo describes the attributes used when starting a page span.
type PageSpanInfo struct {
	RunID string
	URL   string
	Depth int
}

// FetchMetrics describes one completed fetch for metric recording.
type FetchMetrics struct {
	RunID    string
	Role     string
	Status   string
	Duration time.Duration
}

// StartPageSpan starts a span covering one page step of a mirror run.
func StartPageSpan(ctx context.Context, info PageSpanInfo) (context.Context, trace.Span) {
	t := mirrorTracer
	if t == nil {
		t = otel.Tracer(instrumentationName)
	}

	attrs := []attribute.KeyValue{
		attribute.String("run.id", info.RunID),
		attribute.String("page.url", info.URL),
		attribute.Int("page.depth", info.Depth),
	}

	return t.Start(ctx, "mirror.page", trace.WithAttributes(attrs...))
}

// RecordFetch emits fetch metrics when instrumentation is initialised.
func RecordFetch(ctx context.Context, m FetchMetrics) {
	attrs := metric.WithAttributes(
		attribute.String("run.id", m.RunID),
		attribute.String("fetch.role", m.Role),
		attribute.String("fetch.status", m.Status),
	)

	if fetchDuration != nil {
		fetchDuration.Record(ctx, float64(m.Duration.Milliseconds()), attrs)
	}
	if fetchTotal != nil {
		fetchTotal.Add(ctx, 1, attrs)
	}
}

// RecordPage counts a page reaching a terminal traversal state.
func RecordPage(ctx context.Context, runID, outcome string) {
	if pageTotal != nil {
		pageTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("run.id", runID), attribute.String("page.outcome", outcome)))
	}
}
