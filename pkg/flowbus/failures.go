package flowbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Failure describes one failed subscriber invocation or failed run.
type Failure struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`

	// Event is empty for work submitted directly with Bus.Run.
	Event string `json:"event,omitempty"`
	// Subscriber is the subscriber's registration index, or -1 for a run.
	Subscriber int `json:"subscriber"`
	Batch      int `json:"batch"`

	ErrorMessage string    `json:"error_message"`
	Panicked     bool      `json:"panicked"`
	FailedAt     time.Time `json:"failed_at"`

	// Err is the original error. Not serialized.
	Err error `json:"-"`
}

// newSubscriberFailure builds a Failure from a subscriber error.
func newSubscriberFailure(se *SubscriberError) *Failure {
	var pe *PanicError
	return &Failure{
		ID:           uuid.New().String(),
		RunID:        se.RunID,
		Event:        se.Event,
		Subscriber:   se.Index,
		Batch:        se.Batch,
		ErrorMessage: se.Err.Error(),
		Panicked:     errors.As(se.Err, &pe),
		FailedAt:     time.Now(),
		Err:          se,
	}
}

// newRunFailure builds a Failure from a failed Bus.Run work item.
func newRunFailure(info RunInfo, err error) *Failure {
	var pe *PanicError
	return &Failure{
		ID:           uuid.New().String(),
		RunID:        info.RunID,
		Event:        info.Event,
		Subscriber:   -1,
		Batch:        info.Batch,
		ErrorMessage: err.Error(),
		Panicked:     errors.As(err, &pe),
		FailedAt:     time.Now(),
		Err:          err,
	}
}

// FailureSink receives failures reported by a bus.
// Record is called from the goroutine that observed the failure and must not
// submit runs to the same bus.
type FailureSink interface {
	Record(ctx context.Context, f *Failure) error
}

// FailureSinkFunc adapts a function to the FailureSink interface.
type FailureSinkFunc func(ctx context.Context, f *Failure) error

// Record implements FailureSink.
func (fn FailureSinkFunc) Record(ctx context.Context, f *Failure) error {
	return fn(ctx, f)
}

// FailureLogConfig configures a FailureLog.
type FailureLogConfig struct {
	// MaxSize bounds the number of retained failures. Oldest entries are
	// evicted first.
	// Default: 1000
	MaxSize int

	// OnRecord is called for every recorded failure, outside the lock.
	OnRecord func(*Failure)
}

// DefaultFailureLogConfig provides reasonable defaults.
var DefaultFailureLogConfig = FailureLogConfig{
	MaxSize: 1000,
}

// FailureLog is a bounded in-memory FailureSink.
// Suitable for tests, diagnostics endpoints, and single-process deployments.
type FailureLog struct {
	mu      sync.RWMutex
	entries []*Failure // oldest first
	cfg     FailureLogConfig

	recorded int64
	evicted  int64
}

// NewFailureLog creates a failure log.
func NewFailureLog(cfg FailureLogConfig) *FailureLog {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultFailureLogConfig.MaxSize
	}
	return &FailureLog{
		entries: make([]*Failure, 0, min(cfg.MaxSize, 64)),
		cfg:     cfg,
	}
}

var _ FailureSink = (*FailureLog)(nil)

// Record appends f, evicting the oldest failure when full.
func (l *FailureLog) Record(_ context.Context, f *Failure) error {
	if f == nil {
		return errors.New("failure cannot be nil")
	}

	l.mu.Lock()
	if len(l.entries) >= l.cfg.MaxSize {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
		l.evicted++
	}
	l.entries = append(l.entries, f)
	l.recorded++
	l.mu.Unlock()

	if l.cfg.OnRecord != nil {
		l.cfg.OnRecord(f)
	}
	return nil
}

// List returns up to limit failures, newest first. limit <= 0 returns all.
func (l *FailureLog) List(limit int) []*Failure {
	return l.filter("", limit)
}

// ListByEvent returns up to limit failures for one event, newest first.
func (l *FailureLog) ListByEvent(event string, limit int) []*Failure {
	return l.filter(event, limit)
}

func (l *FailureLog) filter(event string, limit int) []*Failure {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Failure, 0)
	for i := len(l.entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		f := l.entries[i]
		if event != "" && f.Event != event {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Len returns the number of retained failures.
func (l *FailureLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// CountByEvent returns retained failure counts grouped by event name.
// Failed Bus.Run work is counted under the empty name.
func (l *FailureLog) CountByEvent() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[string]int)
	for _, f := range l.entries {
		counts[f.Event]++
	}
	return counts
}

// Stats returns the total number of recorded and evicted failures.
func (l *FailureLog) Stats() (recorded, evicted int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.recorded, l.evicted
}

// Clear drops all retained failures. Stats are kept.
func (l *FailureLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}
