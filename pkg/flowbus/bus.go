package flowbus

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/flowbus/pkg/flowbus/observability"
)

// Work is one unit of work executed by the bus consumer.
//
// The context passed to Work keeps the submitter's values (trace spans, request
// scoped data) but is never cancelled: abandoning a Run does not stop its work.
type Work func(ctx context.Context) error

// submitSlots is the capacity of the submission channel. A submitter blocks
// while one accepted run is already waiting for the consumer.
const submitSlots = 1

// Bus executes submitted work strictly one run at a time, in submission order.
//
// A Bus is shared by every Event created from it, so runs from all of those
// events are serialized against each other. Bus is safe for concurrent use.
//
// Once a Bus is unreachable its consumer shuts down as if Close had been
// called. Close remains the way to stop it deterministically.
type Bus struct {
	*busCore
}

// busCore is the state shared with the consumer goroutine. It holds no
// reference to its Bus, so the Bus can be collected while the consumer runs.
type busCore struct {
	cfg busConfig

	submit  chan *run
	closing chan struct{}
	stopped chan struct{}

	closeOnce sync.Once
	executed  atomic.Int64
}

// run is a unit of work plus its one-shot completion signal.
type run struct {
	bus       *Bus
	ctx       context.Context
	work      Work
	info      RunInfo
	submitted time.Time

	// active is true while the consumer is executing work.
	active atomic.Bool

	// err is written by the consumer before done is closed.
	err  error
	done chan struct{}
}

// NewBus creates a bus and starts its consumer goroutine.
// The consumer runs until Close is called or the bus is garbage collected.
//
// Example:
//
//	bus := flowbus.NewBus(flowbus.WithLogger(logger), flowbus.WithMetrics(true))
//	defer bus.Close()
func NewBus(opts ...BusOption) *Bus {
	cfg := defaultBusConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	core := &busCore{
		cfg:     cfg,
		submit:  make(chan *run, submitSlots),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	b := &Bus{busCore: core}

	go core.consume()
	runtime.AddCleanup(b, (*busCore).shutdown, core)

	return b
}

// Run submits work and blocks until the consumer has executed it, returning
// the work's error.
//
// Runs from all callers execute one at a time in FIFO order. If ctx is done
// before the run is accepted, the run is dropped and ctx.Err() is returned.
// If ctx is done after acceptance, Run returns ctx.Err() but the work still
// executes and keeps the consumer busy until it finishes.
//
// Run returns ErrBusClosed once Close has been called, and ErrReentrantRun
// when called from work currently executing on this bus.
func (b *Bus) Run(ctx context.Context, work Work) error {
	r, err := b.newRun(ctx, work, RunInfo{})
	if err != nil {
		return err
	}
	if err := b.dispatch(ctx, r); err != nil {
		return err
	}
	return r.err
}

// newRun validates a submission and builds its run.
func (b *Bus) newRun(ctx context.Context, work Work, info RunInfo) (*run, error) {
	if work == nil {
		return nil, ErrNilWork
	}
	if activeRunOn(ctx, b) {
		return nil, ErrReentrantRun
	}
	if info.RunID == "" {
		info.RunID = uuid.New().String()
	}
	return &run{
		bus:  b,
		ctx:  context.WithoutCancel(ctx),
		work: work,
		info: info,
		done: make(chan struct{}),
	}, nil
}

// dispatch hands r to the consumer and waits for its completion signal.
// A nil return means r.err is set and safe to read.
func (b *Bus) dispatch(ctx context.Context, r *run) error {
	select {
	case <-b.closing:
		return ErrBusClosed
	default:
	}
	// A ready send and a done ctx would otherwise be picked at random.
	if err := ctx.Err(); err != nil {
		return err
	}

	r.submitted = time.Now()
	select {
	case b.submit <- r:
	case <-b.closing:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.stopped:
		// The consumer may have finished r right before exiting.
		select {
		case <-r.done:
			return nil
		default:
			return ErrBusClosed
		}
	}
}

// consume is the single consumer loop. It only returns after Close.
func (b *busCore) consume() {
	defer close(b.stopped)
	observability.LogBusStart(b.cfg.logger)

	for {
		select {
		case r := <-b.submit:
			b.execute(r)
		case <-b.closing:
			// Runs already accepted into the slot still execute.
			for {
				select {
				case r := <-b.submit:
					b.execute(r)
				default:
					observability.LogBusStopped(b.cfg.logger, b.executed.Load())
					return
				}
			}
		}
	}
}

// execute runs r to completion and fires its completion signal.
// A failing or panicking run never stops the consumer.
func (b *busCore) execute(r *run) {
	queueWait := time.Since(r.submitted)
	observability.LogRunStart(b.cfg.logger, r.info.RunID, float64(queueWait.Microseconds())/1000)

	ctx, span := b.cfg.spans.StartRunSpan(withRun(r.ctx, r), r.info.RunID, r.info.Batch)
	elapsed := observability.TimedOperation()
	start := time.Now()

	r.active.Store(true)
	err := callWork(ctx, r.work)
	r.active.Store(false)

	duration := time.Since(start)
	b.cfg.metrics.RecordRun(ctx, r.info.Event, r.info.Subscribers, queueWait, duration, err)
	b.cfg.spans.EndSpanWithError(span, err)

	if err != nil {
		observability.LogRunError(b.cfg.logger, r.info.RunID, err, elapsed())
		if r.info.Event == "" {
			b.recordFailure(ctx, newRunFailure(r.info, err))
		}
	} else {
		observability.LogRunComplete(b.cfg.logger, r.info.RunID, elapsed())
	}

	b.executed.Add(1)
	r.err = err
	close(r.done)
}

// callWork executes work, converting a panic into a PanicError.
func callWork(ctx context.Context, work Work) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return work(ctx)
}

// recordFailure hands f to the configured sink, logging sink errors.
func (b *busCore) recordFailure(ctx context.Context, f *Failure) {
	if b.cfg.sink == nil {
		return
	}
	if err := b.cfg.sink.Record(ctx, f); err != nil && b.cfg.logger != nil {
		b.cfg.logger.Warn("failure sink rejected record",
			"run_id", f.RunID,
			"error", err.Error(),
		)
	}
}

// Close stops accepting runs and waits for the consumer to exit.
// Runs already accepted into the submission slot are executed first.
// Close is idempotent. It must not be called from work running on this bus,
// since the consumer would be waiting on its own caller.
func (b *Bus) Close() error {
	b.shutdown()
	<-b.stopped
	return nil
}

// shutdown stops accepting runs without waiting for the consumer.
func (b *busCore) shutdown() {
	b.closeOnce.Do(func() {
		close(b.closing)
	})
}

// Done returns a channel that is closed once the consumer has exited.
func (b *Bus) Done() <-chan struct{} {
	return b.stopped
}

// Executed returns the number of runs the consumer has finished.
func (b *Bus) Executed() int64 {
	return b.executed.Load()
}
