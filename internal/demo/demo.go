// Package demo replays a timed emit scenario against a bus and prints every
// subscriber call as it happens.
package demo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/flowbus/pkg/flowbus"
	"github.com/randalmurphal/flowbus/pkg/flowbus/config"
)

// Event names used by the demo.
const (
	HighEvent = "event1"
	LowEvent  = "event2"
)

// Emission is one scheduled emit.
type Emission struct {
	// At is the offset from the scenario start.
	At time.Duration
	// Priority selects the High or Low event.
	Priority flowbus.Priority
	// Label is the data passed to subscribers.
	Label string
}

// Scenario describes the subscribers and the emit schedule of a demo run.
type Scenario struct {
	HighSubscribers int
	LowSubscribers  int
	// SubscriberDelay is how long every subscriber sleeps after printing.
	SubscriberDelay time.Duration
	// Speed divides every delay and offset. Printed times stay in scenario
	// seconds.
	Speed     float64
	Emissions []Emission
}

// DefaultScenario is 10 High and 100 Low subscribers sleeping 1s each, with
// the Low event emitted at 0s and the High event at 10s, 20s, and 50s.
func DefaultScenario() Scenario {
	return Scenario{
		HighSubscribers: 10,
		LowSubscribers:  100,
		SubscriberDelay: time.Second,
		Speed:           1,
		Emissions: []Emission{
			{At: 0, Priority: flowbus.PriorityLow, Label: LowEvent},
			{At: 10 * time.Second, Priority: flowbus.PriorityHigh, Label: HighEvent + " (t=10)"},
			{At: 20 * time.Second, Priority: flowbus.PriorityHigh, Label: HighEvent + " (t=20)"},
			{At: 50 * time.Second, Priority: flowbus.PriorityHigh, Label: HighEvent + " (t=50)"},
		},
	}
}

// FromSettings returns the default schedule with subscriber counts, delay,
// and speed taken from s.
func FromSettings(s config.DemoSettings) Scenario {
	sc := DefaultScenario()
	sc.HighSubscribers = s.HighSubscribers
	sc.LowSubscribers = s.LowSubscribers
	sc.SubscriberDelay = s.SubscriberDelay
	sc.Speed = s.Speed
	return sc
}

func (s Scenario) scale(d time.Duration) time.Duration {
	if s.Speed <= 0 || s.Speed == 1 {
		return d
	}
	return time.Duration(float64(d) / s.Speed)
}

// Runner drives a Scenario on a bus.
type Runner struct {
	bus       *flowbus.Bus
	clock     clock.Clock
	logger    *slog.Logger
	eventOpts []flowbus.EventOption

	mu  sync.Mutex
	out io.Writer
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the clock used for schedules, sleeps, and printed times.
// Default: the wall clock.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the logger for schedule progress. A nil logger disables it.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithEventOptions sets options applied to both demo events.
func WithEventOptions(opts ...flowbus.EventOption) Option {
	return func(r *Runner) {
		r.eventOpts = opts
	}
}

// NewRunner creates a runner printing subscriber calls to out.
func NewRunner(bus *flowbus.Bus, out io.Writer, opts ...Option) *Runner {
	r := &Runner{
		bus:   bus,
		clock: clock.New(),
		out:   out,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run subscribes the scenario's subscribers to fresh events and fires every
// emission at its offset. It returns once all emits have finished, or when
// ctx is done before a pending emission fires.
func (r *Runner) Run(ctx context.Context, sc Scenario) error {
	start := r.clock.Now()

	high := flowbus.NewEvent[string](r.bus, HighEvent, flowbus.PriorityHigh, r.eventOpts...)
	low := flowbus.NewEvent[string](r.bus, LowEvent, flowbus.PriorityLow, r.eventOpts...)
	for i := range sc.HighSubscribers {
		high.Subscribe(r.subscriber(sc, start, i+1))
	}
	for i := range sc.LowSubscribers {
		low.Subscribe(r.subscriber(sc, start, i+1))
	}

	if r.logger != nil {
		r.logger.Info("demo scenario started",
			"high_subscribers", sc.HighSubscribers,
			"low_subscribers", sc.LowSubscribers,
			"emissions", len(sc.Emissions),
			"speed", sc.Speed,
		)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, em := range sc.Emissions {
		evt := low
		if em.Priority == flowbus.PriorityHigh {
			evt = high
		}

		// Timers are armed before any emit starts so every offset is
		// measured from the same start.
		var fire <-chan time.Time
		var timer *clock.Timer
		if at := sc.scale(em.At); at > 0 {
			timer = r.clock.Timer(at)
			fire = timer.C
		}

		g.Go(func() error {
			if timer != nil {
				select {
				case <-fire:
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}
			}
			if r.logger != nil {
				r.logger.Debug("demo emission fired", "label", em.Label, "priority", em.Priority.String())
			}
			return evt.Emit(ctx, em.Label)
		})
	}

	err := g.Wait()
	if r.logger != nil {
		r.logger.Info("demo scenario finished",
			"elapsed", r.clock.Since(start).String(),
			"error", err,
		)
	}
	return err
}

// subscriber prints one line per call and then sleeps.
func (r *Runner) subscriber(sc Scenario, start time.Time, n int) flowbus.Subscriber[string] {
	name := fmt.Sprintf("subscriber%d", n)
	delay := sc.scale(sc.SubscriberDelay)
	speed := sc.Speed
	if speed <= 0 {
		speed = 1
	}
	return func(_ context.Context, label string) error {
		secs := int(r.clock.Since(start).Seconds() * speed)
		if err := r.print(secs, label, name); err != nil {
			return err
		}
		if delay > 0 {
			r.clock.Sleep(delay)
		}
		return nil
	}
}

// print writes "<secs>s:\t <label>\t <subscriber>" as one aligned line.
func (r *Runner) print(secs int, label, subscriber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := tabwriter.NewWriter(r.out, 8, 2, 2, ' ', 0)
	if _, err := fmt.Fprintf(w, "%ds:\t %s\t %s\n", secs, label, subscriber); err != nil {
		return err
	}
	return w.Flush()
}
