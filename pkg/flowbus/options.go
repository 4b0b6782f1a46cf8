package flowbus

import (
	"log/slog"

	"github.com/randalmurphal/flowbus/pkg/flowbus/observability"
)

// busConfig holds configuration shared by a bus and every event derived from it.
type busConfig struct {
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	sink    FailureSink
}

// defaultBusConfig returns the default bus configuration.
func defaultBusConfig() busConfig {
	return busConfig{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// BusOption configures a Bus.
type BusOption func(*busConfig)

// WithLogger sets the logger used for run, emit, and failure logs.
// A nil logger disables logging.
func WithLogger(logger *slog.Logger) BusOption {
	return func(c *busConfig) {
		c.logger = logger
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// Default: false
//
// Metrics use the global OTel meter provider:
//   - flowbus.run.count, flowbus.run.latency_ms, flowbus.run.queue_wait_ms
//   - flowbus.run.errors, flowbus.run.subscribers
//   - flowbus.emit.count, flowbus.emit.latency_ms, flowbus.emit.runs
//   - flowbus.subscriber.failures
func WithMetrics(enabled bool) BusOption {
	return func(c *busConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder sets a custom metrics recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) BusOption {
	return func(c *busConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables or disables OpenTelemetry tracing.
// Default: false
//
// Each emit gets a "flowbus.emit" span with one "flowbus.run" child per run.
func WithTracing(enabled bool) BusOption {
	return func(c *busConfig) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithSpanManager sets a custom span manager.
func WithSpanManager(s observability.SpanManager) BusOption {
	return func(c *busConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithFailureSink records every subscriber failure and failed run into sink.
//
// Example:
//
//	failures := flowbus.NewFailureLog(flowbus.DefaultFailureLogConfig)
//	bus := flowbus.NewBus(flowbus.WithFailureSink(failures))
func WithFailureSink(sink FailureSink) BusOption {
	return func(c *busConfig) {
		c.sink = sink
	}
}

// eventConfig holds per-event configuration.
type eventConfig struct {
	batchSize int
}

// EventOption configures an Event.
type EventOption func(*eventConfig)

// WithBatchSize sets how many subscribers a Low priority event starts per run.
// Default: 20. Values <= 0 are ignored. High priority events ignore it.
func WithBatchSize(n int) EventOption {
	return func(c *eventConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}
