// Package flowbus provides a typed, in-process publish/subscribe bus whose
// notification work is serialized.
//
// # Overview
//
// A Bus owns a single consumer goroutine that executes submitted runs one at
// a time, in submission order. Every Event created from the bus submits its
// notification work there, so at most one run is executing on a bus at any
// moment, no matter how many events or emitters are active.
//
// Within a run, subscribers execute concurrently. The event's Priority decides
// how an emit is split into runs:
//
//   - PriorityHigh: one run that starts every subscriber together. The emit
//     costs one slot on the bus and finishes with its slowest subscriber.
//   - PriorityLow: subscribers are split into batches of DefaultBatchSize (20)
//     in subscription order, one run per batch. Batches execute sequentially
//     and runs of other events may execute between them.
//
// # Usage
//
//	bus := flowbus.NewBus(flowbus.WithLogger(logger))
//	defer bus.Close()
//
//	created := flowbus.NewEvent[Order](bus, "order.created", flowbus.PriorityHigh)
//	created.Subscribe(func(ctx context.Context, o Order) error {
//	    return index.Add(ctx, o)
//	})
//
//	if err := created.Emit(ctx, order); err != nil {
//	    // closed bus, cancelled ctx, or failed subscribers
//	}
//
// Raw work can be serialized on the same bus with Run:
//
//	err := bus.Run(ctx, func(ctx context.Context) error {
//	    return flushCaches(ctx)
//	})
//
// # Waiting and Cancellation
//
// Run and Emit block until their work has finished. The submission slot holds
// a single pending run, so submitters block while the bus is busy instead of
// queueing without bound. Cancelling ctx only abandons the wait: work already
// accepted by the bus still executes to completion and occupies the consumer
// until it does. The context handed to work and subscribers is never
// cancelled.
//
// Work running on a bus must not call Run or Emit on the same bus; such calls
// fail with ErrReentrantRun instead of deadlocking.
//
// # Failures
//
// A subscriber that returns an error or panics does not affect the other
// subscribers of its run, later batches, or other events. Emit returns every
// failure as a *SubscriberError combined into one error; use errors.As to
// inspect them. Failures are also logged, counted when metrics are enabled,
// and recorded into the FailureSink configured with WithFailureSink.
//
// After Close, Run and Emit fail fast with ErrBusClosed.
//
// # Observability
//
// Logging uses log/slog. Metrics and tracing use OpenTelemetry and are off by
// default; enable them with WithMetrics and WithTracing. Subscribers can read
// the current run's metadata with RunInfoFromContext.
package flowbus
