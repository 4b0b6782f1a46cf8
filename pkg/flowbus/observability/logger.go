// Package observability provides logging, metrics, and tracing for flowbus.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run context to a logger.
// Returns a new logger with run_id, event, and batch fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "order.created", 2)
//	enriched.Info("delivering") // includes run_id, event, batch
func EnrichLogger(logger *slog.Logger, runID, event string, batch int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("event", event),
		slog.Int("batch", batch),
	)
}

// LogBusStart logs that the consumer goroutine is running.
func LogBusStart(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger.Debug("bus consumer started")
}

// LogBusStopped logs consumer termination.
func LogBusStopped(logger *slog.Logger, runsExecuted int64) {
	if logger == nil {
		return
	}
	logger.Info("bus consumer stopped",
		slog.Int64("runs_executed", runsExecuted),
	)
}

// LogRunStart logs the start of a run on the consumer.
func LogRunStart(logger *slog.Logger, runID string, queueWaitMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("run starting",
		slog.String("run_id", runID),
		slog.Float64("queue_wait_ms", queueWaitMs),
	)
}

// LogRunComplete logs successful run completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRunError logs a run that finished with an error. The consumer keeps going.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogSubscriberFailure logs a single subscriber failure inside a run.
// logger should carry the run context from EnrichLogger.
func LogSubscriberFailure(logger *slog.Logger, index int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("subscriber failed",
		slog.Int("subscriber", index),
		slog.String("error", err.Error()),
	)
}

// LogEmitComplete logs the end of an emit.
func LogEmitComplete(logger *slog.Logger, event, priority string, runs int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("emit completed",
		slog.String("event", event),
		slog.String("priority", priority),
		slog.Int("runs", runs),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogEmitError logs an emit that could not be delivered.
func LogEmitError(logger *slog.Logger, event string, err error) {
	if logger == nil {
		return
	}
	logger.Error("emit failed",
		slog.String("event", event),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
