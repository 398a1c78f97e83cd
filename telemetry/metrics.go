// Package telemetry holds the OpenTelemetry instruments for the translation
// engine. Every Record function is a no-op until InitMetrics has run.
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	meterName = "github.com/ZaguanLabs/phrasebook"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the Prometheus /metrics endpoint.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	translationsTotal   metric.Int64Counter
	translationDuration metric.Float64Histogram
	cacheLookupsTotal   metric.Int64Counter

	providerAttemptsTotal metric.Int64Counter
	providerDuration      metric.Float64Histogram
	quotaConsumedTotal    metric.Int64Counter

	cachePurgedTotal metric.Int64Counter
	purgeDuration    metric.Float64Histogram

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "phrasebook"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var promHandler http.Handler

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.EnablePrometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
		promHandler = promhttp.Handler()
	}

	// Instruments still need a reader to aggregate into.
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	m.meterProvider = mp
	m.promHandler = promHandler
	globalMetrics = m

	return nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	translationsTotal, err := meter.Int64Counter(
		"phrasebook.translations",
		metric.WithDescription("Translations served, by source"),
		metric.WithUnit("{translation}"),
	)
	if err != nil {
		return nil, err
	}

	translationDuration, err := meter.Float64Histogram(
		"phrasebook.translation.duration",
		metric.WithDescription("End-to-end translation latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	cacheLookupsTotal, err := meter.Int64Counter(
		"phrasebook.cache.lookups",
		metric.WithDescription("Cache store lookups, by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	providerAttemptsTotal, err := meter.Int64Counter(
		"phrasebook.provider.attempts",
		metric.WithDescription("Provider attempts, by provider and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	providerDuration, err := meter.Float64Histogram(
		"phrasebook.provider.duration",
		metric.WithDescription("Duration of provider calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40),
	)
	if err != nil {
		return nil, err
	}

	quotaConsumedTotal, err := meter.Int64Counter(
		"phrasebook.quota.consumed",
		metric.WithDescription("Characters recorded against provider quotas"),
		metric.WithUnit("{character}"),
	)
	if err != nil {
		return nil, err
	}

	cachePurgedTotal, err := meter.Int64Counter(
		"phrasebook.cache.purged",
		metric.WithDescription("Expired cache entries deleted"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	purgeDuration, err := meter.Float64Histogram(
		"phrasebook.cache.purge.duration",
		metric.WithDescription("Duration of cache purge cycles"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		translationsTotal:     translationsTotal,
		translationDuration:   translationDuration,
		cacheLookupsTotal:     cacheLookupsTotal,
		providerAttemptsTotal: providerAttemptsTotal,
		providerDuration:      providerDuration,
		quotaConsumedTotal:    quotaConsumedTotal,
		cachePurgedTotal:      cachePurgedTotal,
		purgeDuration:         purgeDuration,
	}, nil
}

// shutdownMetrics shuts down the metrics provider and clears the global state.
func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// RecordTranslation records one facade call. source is "cache", "provider",
// "identity" or "error".
func RecordTranslation(ctx context.Context, source string, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", source))
	globalMetrics.translationsTotal.Add(ctx, 1, attrs)
	globalMetrics.translationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCacheLookup records a cache lookup result (CacheHit, CacheMiss or CacheError).
func RecordCacheLookup(ctx context.Context, result string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.cacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordProviderAttempt records one provider attempt during a fallback walk.
// Skipped attempts are recorded with a zero duration.
func RecordProviderAttempt(ctx context.Context, provider, outcome string, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	globalMetrics.providerAttemptsTotal.Add(ctx, 1, attrs)
	if duration > 0 {
		globalMetrics.providerDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordQuotaConsumed records characters charged to a provider.
func RecordQuotaConsumed(ctx context.Context, provider string, chars int64) {
	if globalMetrics == nil || chars <= 0 {
		return
	}
	globalMetrics.quotaConsumedTotal.Add(ctx, chars, metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordPurge records one purge cycle's deleted count and duration.
// Called unconditionally per cycle.
func RecordPurge(ctx context.Context, deleted int, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.cachePurgedTotal.Add(ctx, int64(deleted))
	globalMetrics.purgeDuration.Record(ctx, duration.Seconds())
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns a handler that returns 404 if Prometheus export is not enabled,
// allowing safe registration regardless of initialization order.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}

// noopExporter is a no-op metrics exporter for when no exporters are configured.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}
