// Package observe provides application-wide observability primitives for
// murmur: OpenTelemetry metrics, tracing, trace-aware logging and the HTTP
// middleware used by the metrics and health endpoints.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported via
// the Prometheus bridge set up by [InitProvider]. A package-level default
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

// meterName is the instrumentation scope name used for all murmur metrics.
const meterName = "github.com/MrWong99/murmur"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// UtteranceDuration tracks the audio length of each segmented utterance.
	UtteranceDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text latency. Use with attribute:
	//   attribute.String("status", "ok"|"empty"|"error")
	STTDuration metric.Float64Histogram

	// ActionDuration tracks how long Dispatch spends inside actions.
	ActionDuration metric.Float64Histogram

	// ActionOutcomes counts dispatched texts. Use with attributes:
	//   attribute.String("action", ...), attribute.String("result", ...)
	ActionOutcomes metric.Int64Counter

	// UnconsumedTexts counts texts no action claimed.
	UnconsumedTexts metric.Int64Counter

	// FocusChanges counts sticky-focus transitions. Use with attribute:
	//   attribute.String("action", ...) (empty when focus is cleared)
	FocusChanges metric.Int64Counter

	// ProviderErrors counts backend errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes: attribute.String("backend", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// QueueDepth is the number of utterances waiting for transcription.
	QueueDepth metric.Int64Gauge

	// Listening is 1 while a background listener runs.
	Listening metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// transcription and action latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// utteranceBuckets covers spoken commands from a syllable to a long sentence.
var utteranceBuckets = []float64{
	0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.UtteranceDuration, err = m.Float64Histogram("murmur.utterance.duration",
		metric.WithDescription("Audio length of segmented utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(utteranceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("murmur.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActionDuration, err = m.Float64Histogram("murmur.action.duration",
		metric.WithDescription("Time spent routing one text through the actions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ActionOutcomes, err = m.Int64Counter("murmur.action.outcomes",
		metric.WithDescription("Dispatched texts by handling action and process result."),
	); err != nil {
		return nil, err
	}
	if met.UnconsumedTexts, err = m.Int64Counter("murmur.text.unconsumed",
		metric.WithDescription("Texts that no action claimed."),
	); err != nil {
		return nil, err
	}
	if met.FocusChanges, err = m.Int64Counter("murmur.focus.changes",
		metric.WithDescription("Sticky focus transitions by action."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("murmur.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("murmur.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by backend and new state."),
	); err != nil {
		return nil, err
	}

	if met.QueueDepth, err = m.Int64Gauge("murmur.listener.queue_depth",
		metric.WithDescription("Utterances waiting to be transcribed."),
	); err != nil {
		return nil, err
	}
	if met.Listening, err = m.Int64UpDownCounter("murmur.listener.active",
		metric.WithDescription("Number of running background listeners."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("murmur.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSTT records one transcription attempt.
func (m *Metrics) RecordSTT(ctx context.Context, d time.Duration, status string) {
	m.STTDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("status", status)))
}

// RecordActionOutcome counts a dispatched text. action is empty when nothing
// claimed the text.
func (m *Metrics) RecordActionOutcome(ctx context.Context, action, result string) {
	m.ActionOutcomes.Add(ctx, 1,
		metric.WithAttributes(
			Attr("action", action),
			Attr("result", result),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			Attr("provider", provider),
			Attr("kind", kind),
		),
	)
}

// RecordBreakerTransition counts a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, backend, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			Attr("backend", backend),
			Attr("state", state),
		),
	)
}
