package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records flowbus metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordRun records one run executed by the bus consumer.
	// queueWait is the time between submission and execution start.
	RecordRun(ctx context.Context, event string, subscribers int, queueWait, duration time.Duration, err error)

	// RecordEmit records a completed emit and how many runs it took.
	RecordEmit(ctx context.Context, event, priority string, runs int, duration time.Duration, err error)

	// RecordSubscriberFailure records a subscriber that returned an error or panicked.
	RecordSubscriberFailure(ctx context.Context, event string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	runs               metric.Int64Counter
	runLatency         metric.Float64Histogram
	runQueueWait       metric.Float64Histogram
	runErrors          metric.Int64Counter
	runSubscribers     metric.Int64Histogram
	emits              metric.Int64Counter
	emitLatency        metric.Float64Histogram
	emitRuns           metric.Int64Histogram
	subscriberFailures metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	return newOtelMetricsFromMeter(otel.Meter("flowbus"))
}

func newOtelMetricsFromMeter(meter metric.Meter) (*otelMetrics, error) {
	runs, err := meter.Int64Counter("flowbus.run.count",
		metric.WithDescription("Number of runs executed by the bus consumer"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("flowbus.run.latency_ms",
		metric.WithDescription("Run execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	runQueueWait, err := meter.Float64Histogram("flowbus.run.queue_wait_ms",
		metric.WithDescription("Time a run waited for the consumer in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	runErrors, err := meter.Int64Counter("flowbus.run.errors",
		metric.WithDescription("Number of runs that finished with an error"),
	)
	if err != nil {
		return nil, err
	}

	runSubscribers, err := meter.Int64Histogram("flowbus.run.subscribers",
		metric.WithDescription("Subscribers started per run"),
	)
	if err != nil {
		return nil, err
	}

	emits, err := meter.Int64Counter("flowbus.emit.count",
		metric.WithDescription("Number of emits"),
	)
	if err != nil {
		return nil, err
	}

	emitLatency, err := meter.Float64Histogram("flowbus.emit.latency_ms",
		metric.WithDescription("Emit latency in milliseconds, including queueing"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	emitRuns, err := meter.Int64Histogram("flowbus.emit.runs",
		metric.WithDescription("Runs submitted per emit"),
	)
	if err != nil {
		return nil, err
	}

	subscriberFailures, err := meter.Int64Counter("flowbus.subscriber.failures",
		metric.WithDescription("Number of failed subscriber invocations"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		runs:               runs,
		runLatency:         runLatency,
		runQueueWait:       runQueueWait,
		runErrors:          runErrors,
		runSubscribers:     runSubscribers,
		emits:              emits,
		emitLatency:        emitLatency,
		emitRuns:           emitRuns,
		subscriberFailures: subscriberFailures,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderFromProvider returns a MetricsRecorder that uses mp
// instead of the global meter provider.
func NewMetricsRecorderFromProvider(mp metric.MeterProvider) (MetricsRecorder, error) {
	m, err := newOtelMetricsFromMeter(mp.Meter("flowbus"))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRun records a run.
func (m *otelMetrics) RecordRun(ctx context.Context, event string, subscribers int, queueWait, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("event", event),
	)

	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, durationMs(duration), attrs)
	m.runQueueWait.Record(ctx, durationMs(queueWait), attrs)
	m.runSubscribers.Record(ctx, int64(subscribers), attrs)

	if err != nil {
		m.runErrors.Add(ctx, 1, attrs)
	}
}

// RecordEmit records an emit.
func (m *otelMetrics) RecordEmit(ctx context.Context, event, priority string, runs int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("priority", priority),
		attribute.Bool("success", err == nil),
	)
	m.emits.Add(ctx, 1, attrs)
	m.emitLatency.Record(ctx, durationMs(duration), attrs)
	m.emitRuns.Record(ctx, int64(runs), attrs)
}

// RecordSubscriberFailure records a subscriber failure.
func (m *otelMetrics) RecordSubscriberFailure(ctx context.Context, event string) {
	m.subscriberFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
	))
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
