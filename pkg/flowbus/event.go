package flowbus

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/flowbus/pkg/flowbus/observability"
)

// Priority controls how an emit is split into runs.
type Priority int

const (
	// PriorityLow starts subscribers in batches, one run per batch.
	PriorityLow Priority = iota
	// PriorityHigh starts every subscriber in a single run.
	PriorityHigh
)

// DefaultBatchSize is the number of subscribers per Low priority run.
const DefaultBatchSize = 20

// String returns "low" or "high".
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority parses "low" or "high", case-insensitively.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// Subscriber receives the data of every emit on the event it subscribed to.
// Subscribers in the same run execute concurrently.
type Subscriber[T any] func(ctx context.Context, data T) error

// Cloner lets a payload type hand each subscriber an independent copy.
// Payloads that don't implement it are passed by value.
type Cloner[T any] interface {
	Clone() T
}

// Event is a named, typed notification channel bound to a Bus.
//
// Events sharing a bus share its serialization: runs of every event on the
// bus execute one at a time. Event is safe for concurrent use; an emit uses
// the subscriber list as it was when the emit started.
type Event[T any] struct {
	bus       *Bus
	name      string
	priority  Priority
	batchSize int

	mu          sync.RWMutex
	subscribers []Subscriber[T]
}

// NewEvent creates an event on bus.
//
// Example:
//
//	orders := flowbus.NewEvent[Order](bus, "order.created", flowbus.PriorityHigh)
//	orders.Subscribe(func(ctx context.Context, o Order) error { ... })
//	err := orders.Emit(ctx, order)
func NewEvent[T any](bus *Bus, name string, priority Priority, opts ...EventOption) *Event[T] {
	cfg := eventConfig{batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Event[T]{
		bus:       bus,
		name:      name,
		priority:  priority,
		batchSize: cfg.batchSize,
	}
}

// Name returns the event name.
func (e *Event[T]) Name() string { return e.name }

// Priority returns the event priority.
func (e *Event[T]) Priority() Priority { return e.priority }

// Len returns the number of registered subscribers.
func (e *Event[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers)
}

// Subscribe appends fn to the subscriber list. Duplicates are allowed and
// each registration is invoked once per emit. A nil fn is ignored.
func (e *Event[T]) Subscribe(fn Subscriber[T]) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// batch is a contiguous slice of subscribers executed as one run.
type batch[T any] struct {
	offset int
	subs   []Subscriber[T]
}

// plan splits subs into the runs an emit submits.
// High priority always yields exactly one run, even with no subscribers.
// Low priority yields ceil(len(subs)/batchSize) runs.
func (e *Event[T]) plan(subs []Subscriber[T]) []batch[T] {
	if e.priority == PriorityHigh {
		return []batch[T]{{offset: 0, subs: subs}}
	}

	batches := make([]batch[T], 0, (len(subs)+e.batchSize-1)/e.batchSize)
	for start := 0; start < len(subs); start += e.batchSize {
		end := min(start+e.batchSize, len(subs))
		batches = append(batches, batch[T]{offset: start, subs: subs[start:end]})
	}
	return batches
}

func (e *Event[T]) snapshot() []Subscriber[T] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	subs := make([]Subscriber[T], len(e.subscribers))
	copy(subs, e.subscribers)
	return subs
}

// Emit delivers data to every subscriber and returns once all of them have
// finished.
//
// High priority submits one run that starts all subscribers together. Low
// priority submits one run per batch and waits for each batch before
// submitting the next, so other runs on the bus may execute in between.
//
// Subscriber failures never stop the emit: every batch still runs, and the
// failures are returned combined as *SubscriberError values. A batch that
// cannot be submitted (closed bus, ctx done) ends the emit with an
// *EmitError; later batches are not submitted. If ctx is done while a run is
// executing, Emit returns but that run keeps the bus busy until it finishes.
func (e *Event[T]) Emit(ctx context.Context, data T) error {
	if e.bus == nil {
		return &EmitError{Event: e.name, Err: ErrNilBus}
	}
	cfg := e.bus.cfg
	start := time.Now()

	ctx, span := cfg.spans.StartEmitSpan(ctx, e.name, e.priority.String())

	batches := e.plan(e.snapshot())

	var errs error
	runs := 0
	for i, b := range batches {
		info := RunInfo{
			Event:       e.name,
			Priority:    e.priority,
			Batch:       i,
			Batches:     len(batches),
			Subscribers: len(b.subs),
		}
		failures, err := e.submit(ctx, b, data, info)
		if err != nil {
			emitErr := &EmitError{Event: e.name, Batch: i, Err: err}
			observability.LogEmitError(cfg.logger, e.name, emitErr)
			errs = multierr.Append(errs, emitErr)
			break
		}
		runs++
		errs = multierr.Append(errs, failures)
	}

	duration := time.Since(start)
	cfg.metrics.RecordEmit(ctx, e.name, e.priority.String(), runs, duration, errs)
	cfg.spans.AddSpanEvent(ctx, "flowbus.emit.done",
		attribute.Int("runs", runs),
		attribute.Int("batches", len(batches)),
	)
	cfg.spans.EndSpanWithError(span, errs)
	observability.LogEmitComplete(cfg.logger, e.name, e.priority.String(), runs, float64(duration.Microseconds())/1000)

	return errs
}

// submit executes one batch as a run. failures holds subscriber errors from
// the run; err is a submission or wait failure, in which case the run's
// outcome is unknown to the caller.
func (e *Event[T]) submit(ctx context.Context, b batch[T], data T, info RunInfo) (failures, err error) {
	r, err := e.bus.newRun(ctx, func(ctx context.Context) error {
		return e.fanOut(ctx, b, data)
	}, info)
	if err != nil {
		return nil, err
	}
	if err = e.bus.dispatch(ctx, r); err != nil {
		return nil, err
	}
	return r.err, nil
}

// fanOut starts every subscriber in b concurrently and waits for all of them.
func (e *Event[T]) fanOut(ctx context.Context, b batch[T], data T) error {
	info, _ := RunInfoFromContext(ctx)
	results := make([]error, len(b.subs))

	var g errgroup.Group
	for i, sub := range b.subs {
		payload := duplicate(data)
		g.Go(func() error {
			results[i] = invoke(ctx, sub, payload)
			return nil
		})
	}
	_ = g.Wait()

	var errs error
	for i, err := range results {
		if err == nil {
			continue
		}
		se := &SubscriberError{
			Event: e.name,
			Index: b.offset + i,
			Batch: info.Batch,
			RunID: info.RunID,
			Err:   err,
		}
		e.bus.reportSubscriberFailure(ctx, se)
		errs = multierr.Append(errs, se)
	}
	return errs
}

// reportSubscriberFailure logs, counts, and records a subscriber failure.
func (b *Bus) reportSubscriberFailure(ctx context.Context, se *SubscriberError) {
	logger := observability.EnrichLogger(b.cfg.logger, se.RunID, se.Event, se.Batch)
	observability.LogSubscriberFailure(logger, se.Index, se.Err)
	b.cfg.metrics.RecordSubscriberFailure(ctx, se.Event)
	b.recordFailure(ctx, newSubscriberFailure(se))
}

// invoke calls sub, converting a panic into a PanicError.
func invoke[T any](ctx context.Context, sub Subscriber[T], data T) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return sub(ctx, data)
}

// duplicate returns the copy of data handed to one subscriber.
func duplicate[T any](data T) T {
	if c, ok := any(data).(Cloner[T]); ok {
		return c.Clone()
	}
	return data
}
