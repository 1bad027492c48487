// Package observe provides application-wide observability primitives for
// Pitchline: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all Pitchline metrics.
const meterName = "github.com/pitchline-ai/pitchline"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// CallDuration tracks full call lifetime from session creation to close.
	CallDuration metric.Float64Histogram

	// EngineTurnDuration tracks engine reply latency per conversational turn.
	EngineTurnDuration metric.Float64Histogram

	// CoachAnalysisDuration tracks coaching analysis latency.
	CoachAnalysisDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed conversational turns.
	Turns metric.Int64Counter

	// Terminations counts call closures. Use with attribute:
	//   attribute.String("trigger", ...)
	Terminations metric.Int64Counter

	// TranscriptWrites counts transcript persistence attempts. Use with attribute:
	//   attribute.String("status", ...)
	TranscriptWrites metric.Int64Counter

	// EngineErrors counts engine failures. Use with attribute:
	//   attribute.String("stage", ...) — "create", "greet", or "turn"
	EngineErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of live call sessions.
	ActiveCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// turnLatencyBuckets defines histogram bucket boundaries (in seconds) sized
// for LLM round trips and HTTP handling.
var turnLatencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// callDurationBuckets defines histogram bucket boundaries (in seconds) sized
// for whole phone calls.
var callDurationBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1200, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CallDuration, err = m.Float64Histogram("pitchline.call.duration",
		metric.WithDescription("Call lifetime from session creation to close."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callDurationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EngineTurnDuration, err = m.Float64Histogram("pitchline.engine.turn.duration",
		metric.WithDescription("Engine reply latency per conversational turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(turnLatencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CoachAnalysisDuration, err = m.Float64Histogram("pitchline.coach.analysis.duration",
		metric.WithDescription("Coaching analysis latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(turnLatencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("pitchline.call.turns",
		metric.WithDescription("Total completed conversational turns."),
	); err != nil {
		return nil, err
	}
	if met.Terminations, err = m.Int64Counter("pitchline.call.terminations",
		metric.WithDescription("Total call closures by trigger."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptWrites, err = m.Int64Counter("pitchline.store.transcript_writes",
		metric.WithDescription("Total transcript persistence attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.EngineErrors, err = m.Int64Counter("pitchline.engine.errors",
		metric.WithDescription("Total engine failures by stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("pitchline.active_calls",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("pitchline.http.request.duration",
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

// RecordTurn records one completed conversational turn and its engine latency.
func (m *Metrics) RecordTurn(ctx context.Context, engineDuration time.Duration) {
	m.Turns.Add(ctx, 1)
	m.EngineTurnDuration.Record(ctx, engineDuration.Seconds())
}

// RecordTermination records a call closure with its trigger.
func (m *Metrics) RecordTermination(ctx context.Context, trigger string) {
	m.Terminations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("trigger", trigger)),
	)
}

// RecordTranscriptWrite records a transcript persistence attempt.
// status is "ok", "error", or "skipped".
func (m *Metrics) RecordTranscriptWrite(ctx context.Context, status string) {
	m.TranscriptWrites.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordEngineError records an engine failure at the given stage
// ("create", "greet", or "turn").
func (m *Metrics) RecordEngineError(ctx context.Context, stage string) {
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
