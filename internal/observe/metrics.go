// Package observe provides application-wide observability primitives for
// atlasbot: OpenTelemetry metrics, distributed tracing, trace-aware logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so the /metrics endpoint can
// be scraped. A package-level default [Metrics] instance ([DefaultMetrics]) is
// provided for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all atlasbot metrics.
const meterName = "github.com/MrWong99/atlasbot"

// Outcome labels shared by counters.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusNotFound = "not_found"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Resolution ---

	// ResolveDuration tracks end-to-end token resolution latency.
	ResolveDuration metric.Float64Histogram

	// Resolutions counts resolutions. Use with attributes:
	//   attribute.String("strategy", ...), attribute.String("status", ...)
	Resolutions metric.Int64Counter

	// --- Remote dataset API ---

	// RemoteDuration tracks Atlas API request latency by endpoint.
	RemoteDuration metric.Float64Histogram

	// RemoteRequests counts Atlas API calls. Use with attributes:
	//   attribute.String("endpoint", ...), attribute.String("status", ...)
	RemoteRequests metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by target state.
	BreakerTransitions metric.Int64Counter

	// --- Snapshot lifecycle ---

	// CatalogSyncs counts freshness checks. Use with attribute:
	//   attribute.String("result", "refreshed"|"loaded"|"error")
	CatalogSyncs metric.Int64Counter

	// CatalogEntities tracks the number of records in the active catalog.
	CatalogEntities metric.Int64UpDownCounter

	// --- Nickname directory ---

	// NicknameAppends counts alias append attempts by status.
	NicknameAppends metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Local
// resolutions finish in microseconds, remote fallbacks take a network round
// trip.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ResolveDuration, err = m.Float64Histogram("atlasbot.resolve.duration",
		metric.WithDescription("Latency of resolving a user token to an entity."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Resolutions, err = m.Int64Counter("atlasbot.resolve.total",
		metric.WithDescription("Total resolutions by winning strategy and status."),
	); err != nil {
		return nil, err
	}

	if met.RemoteDuration, err = m.Float64Histogram("atlasbot.remote.duration",
		metric.WithDescription("Latency of Atlas API requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RemoteRequests, err = m.Int64Counter("atlasbot.remote.requests",
		metric.WithDescription("Total Atlas API requests by endpoint and status."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("atlasbot.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions by breaker and target state."),
	); err != nil {
		return nil, err
	}

	if met.CatalogSyncs, err = m.Int64Counter("atlasbot.catalog.syncs",
		metric.WithDescription("Catalog freshness checks by result."),
	); err != nil {
		return nil, err
	}
	if met.CatalogEntities, err = m.Int64UpDownCounter("atlasbot.catalog.entities",
		metric.WithDescription("Number of records in the active catalog snapshot."),
	); err != nil {
		return nil, err
	}

	if met.NicknameAppends, err = m.Int64Counter("atlasbot.nickname.appends",
		metric.WithDescription("Nickname append attempts by status."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("atlasbot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordResolution records one finished resolution.
func (m *Metrics) RecordResolution(ctx context.Context, strategy, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("status", status),
	)
	m.Resolutions.Add(ctx, 1, attrs)
	m.ResolveDuration.Record(ctx, seconds, attrs)
}

// RecordRemoteRequest records one Atlas API call.
func (m *Metrics) RecordRemoteRequest(ctx context.Context, endpoint, status string, seconds float64) {
	m.RemoteRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status", status),
		),
	)
	m.RemoteDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("endpoint", endpoint)),
	)
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("to", to),
		),
	)
}

// RecordCatalogSync records one freshness check.
func (m *Metrics) RecordCatalogSync(ctx context.Context, result string) {
	m.CatalogSyncs.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// SetCatalogEntities moves the catalog size gauge from previous to current.
func (m *Metrics) SetCatalogEntities(ctx context.Context, previous, current int) {
	m.CatalogEntities.Add(ctx, int64(current-previous))
}

// RecordNicknameAppend records one alias append attempt.
func (m *Metrics) RecordNicknameAppend(ctx context.Context, status string) {
	m.NicknameAppends.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
