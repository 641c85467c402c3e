// Package observe provides application-wide observability primitives for
// tapedeck: OpenTelemetry metrics and the Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tapedeck metrics.
const meterName = "github.com/MrWong99/tapedeck"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// TickDuration tracks the wall-clock cost of one pipeline tick.
	TickDuration metric.Float64Histogram

	// BuffersProcessed counts buffers that completed the pipeline. Use with
	// attribute: attribute.String("session", ...)
	BuffersProcessed metric.Int64Counter

	// SamplesDelivered counts samples delivered to sinks.
	SamplesDelivered metric.Int64Counter

	// SourceErrors counts source read failures. Use with attributes:
	//   attribute.String("session", ...), attribute.String("source", ...)
	SourceErrors metric.Int64Counter

	// BuffersDropped counts buffers lost to full pipeline queues.
	BuffersDropped metric.Int64Counter

	// ActiveSessions tracks the number of live capture sessions.
	ActiveSessions metric.Int64UpDownCounter

	// SilenceTransitions counts silent/active state flips of the silence
	// detector. Use with attribute: attribute.String("state", ...)
	SilenceTransitions metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for per-tick processing cost at 10ms buffer cadence.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TickDuration, err = m.Float64Histogram("tapedeck.tick.duration",
		metric.WithDescription("Wall-clock cost of one pipeline tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.BuffersProcessed, err = m.Int64Counter("tapedeck.buffers.processed",
		metric.WithDescription("Total buffers that completed the pipeline by session."),
	); err != nil {
		return nil, err
	}
	if met.SamplesDelivered, err = m.Int64Counter("tapedeck.samples.delivered",
		metric.WithDescription("Total samples delivered to sinks by session."),
	); err != nil {
		return nil, err
	}
	if met.SourceErrors, err = m.Int64Counter("tapedeck.source.errors",
		metric.WithDescription("Total source read failures by session and source."),
	); err != nil {
		return nil, err
	}
	if met.BuffersDropped, err = m.Int64Counter("tapedeck.buffers.dropped",
		metric.WithDescription("Total buffers lost to full pipeline queues by session."),
	); err != nil {
		return nil, err
	}
	if met.SilenceTransitions, err = m.Int64Counter("tapedeck.silence.transitions",
		metric.WithDescription("Silence detector state flips by session and state."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("tapedeck.active_sessions",
		metric.WithDescription("Number of live capture sessions."),
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
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTick records one tick's duration and buffer outcome for a session.
func (m *Metrics) RecordTick(ctx context.Context, session string, d time.Duration, buffers, samples int64) {
	attrs := metric.WithAttributes(attribute.String("session", session))
	m.TickDuration.Record(ctx, d.Seconds(), attrs)
	if buffers > 0 {
		m.BuffersProcessed.Add(ctx, buffers, attrs)
	}
	if samples > 0 {
		m.SamplesDelivered.Add(ctx, samples, attrs)
	}
}

// RecordDrops records buffers lost to full pipeline queues. Zero and
// negative counts are ignored.
func (m *Metrics) RecordDrops(ctx context.Context, session string, n int64) {
	if n <= 0 {
		return
	}
	m.BuffersDropped.Add(ctx, n, metric.WithAttributes(attribute.String("session", session)))
}

// RecordSourceError records one source read failure.
func (m *Metrics) RecordSourceError(ctx context.Context, session, source string) {
	m.SourceErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("session", session),
			attribute.String("source", source),
		),
	)
}

// RecordSilenceTransition records a silence detector state flip.
func (m *Metrics) RecordSilenceTransition(ctx context.Context, session, state string) {
	m.SilenceTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("session", session),
			attribute.String("state", state),
		),
	)
}
