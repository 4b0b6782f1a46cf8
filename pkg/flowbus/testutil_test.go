package flowbus_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowbus/pkg/flowbus"
)

// newTestBus creates a bus with logging disabled and closes it on cleanup.
func newTestBus(t *testing.T, opts ...flowbus.BusOption) *flowbus.Bus {
	t.Helper()
	bus := flowbus.NewBus(append([]flowbus.BusOption{flowbus.WithLogger(nil)}, opts...)...)
	t.Cleanup(func() {
		require.NoError(t, bus.Close())
	})
	return bus
}

// interval is the time span one run was observed executing.
type interval struct {
	runID string
	event string
	batch int
	start time.Time
	end   time.Time
}

// runTracker records per-run execution intervals from inside subscribers.
type runTracker struct {
	mu    sync.Mutex
	runs  map[string]*interval
	calls int
}

func newRunTracker() *runTracker {
	return &runTracker{runs: make(map[string]*interval)}
}

// subscriber returns a subscriber that sleeps for delay and records the run
// it executed in.
func (rt *runTracker) subscriber(delay time.Duration) flowbus.Subscriber[string] {
	return func(ctx context.Context, _ string) error {
		info, _ := flowbus.RunInfoFromContext(ctx)
		start := time.Now()
		time.Sleep(delay)
		end := time.Now()

		rt.mu.Lock()
		defer rt.mu.Unlock()
		rt.calls++
		iv, ok := rt.runs[info.RunID]
		if !ok {
			rt.runs[info.RunID] = &interval{runID: info.RunID, event: info.Event, batch: info.Batch, start: start, end: end}
			return nil
		}
		if start.Before(iv.start) {
			iv.start = start
		}
		if end.After(iv.end) {
			iv.end = end
		}
		return nil
	}
}

// intervals returns the recorded runs ordered by start time.
func (rt *runTracker) intervals() []interval {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]interval, 0, len(rt.runs))
	for _, iv := range rt.runs {
		out = append(out, *iv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })
	return out
}

func (rt *runTracker) callCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.calls
}

// requireNoOverlap fails if any two runs executed at the same time.
func requireNoOverlap(t *testing.T, ivs []interval) {
	t.Helper()
	for i := 1; i < len(ivs); i++ {
		prev, cur := ivs[i-1], ivs[i]
		require.False(t, cur.start.Before(prev.end),
			"run %s (%s batch %d) started before run %s (%s batch %d) ended",
			cur.runID, cur.event, cur.batch, prev.runID, prev.event, prev.batch)
	}
}

// block occupies the bus consumer until the returned release func is called.
func block(t *testing.T, bus *flowbus.Bus) (release func()) {
	t.Helper()
	started := make(chan struct{})
	gate := make(chan struct{})
	go func() {
		_ = bus.Run(context.Background(), func(context.Context) error {
			close(started)
			<-gate
			return nil
		})
	}()
	<-started
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}
