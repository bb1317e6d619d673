package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the data point carrying key=value.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"murmur.utterance.duration", m.UtteranceDuration},
		{"murmur.stt.duration", m.STTDuration},
		{"murmur.action.duration", m.ActionDuration},
		{"murmur.http.request.duration", m.HTTPRequestDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordSTT(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordSTT(context.Background(), 250*time.Millisecond, "ok")

	met := findMetric(collect(t, reader), "murmur.stt.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Sum != 0.25 {
		t.Errorf("data points = %+v, want one observation of 0.25", hist.DataPoints)
	}
}

func TestActionOutcomesCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordActionOutcome(ctx, "mouse", "TEXT_PROCESSED")
	m.RecordActionOutcome(ctx, "mouse", "TEXT_PROCESSED")
	m.RecordActionOutcome(ctx, "recorder", "PROCESS_FUTURE_TEXT")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "murmur.action.outcomes", "action", "mouse"); got != 2 {
		t.Errorf("mouse outcomes = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "murmur.action.outcomes", "result", "PROCESS_FUTURE_TEXT"); got != 1 {
		t.Errorf("future outcomes = %d, want 1", got)
	}
}

func TestErrorAndTransitionCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "whisper", "stt")
	m.RecordBreakerTransition(ctx, "deepgram", "open")
	m.UnconsumedTexts.Add(ctx, 3)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "murmur.provider.errors", "provider", "whisper"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "murmur.breaker.transitions", "state", "open"); got != 1 {
		t.Errorf("breaker transitions = %d, want 1", got)
	}
	met := findMetric(rm, "murmur.text.unconsumed")
	if met == nil {
		t.Fatal("unconsumed metric not found")
	}
	if got := met.Data.(metricdata.Sum[int64]).DataPoints[0].Value; got != 3 {
		t.Errorf("unconsumed = %d, want 3", got)
	}
}

func TestListenerGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.Listening.Add(ctx, 1)
	m.QueueDepth.Record(ctx, 4)
	m.QueueDepth.Record(ctx, 2)

	rm := collect(t, reader)
	active := findMetric(rm, "murmur.listener.active")
	if active == nil {
		t.Fatal("listener.active not found")
	}
	if got := active.Data.(metricdata.Sum[int64]).DataPoints[0].Value; got != 1 {
		t.Errorf("listener.active = %d, want 1", got)
	}
	depth := findMetric(rm, "murmur.listener.queue_depth")
	if depth == nil {
		t.Fatal("queue_depth not found")
	}
	gauge, ok := depth.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("queue_depth is %T, want gauge", depth.Data)
	}
	if got := gauge.DataPoints[0].Value; got != 2 {
		t.Errorf("queue_depth = %d, want last value 2", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
