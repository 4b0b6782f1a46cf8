package flowbus

import "context"

// RunInfo describes the run a piece of work is executing in.
type RunInfo struct {
	// RunID uniquely identifies the run. Auto-generated.
	RunID string
	// Event is the emitting event's name. Empty for work submitted with Bus.Run.
	Event string
	// Priority is the emitting event's priority.
	Priority Priority
	// Batch is the zero-based batch index within the emit.
	Batch int
	// Batches is the number of runs the emit was split into.
	Batches int
	// Subscribers is the number of subscribers started by this run.
	Subscribers int
}

type runKey struct{}

// RunInfoFromContext returns the RunInfo of the run executing ctx's work.
// The second result is false outside of a run.
func RunInfoFromContext(ctx context.Context) (RunInfo, bool) {
	r, ok := ctx.Value(runKey{}).(*run)
	if !ok {
		return RunInfo{}, false
	}
	return r.info, true
}

// withRun marks ctx as belonging to r so nested submissions can be detected.
func withRun(ctx context.Context, r *run) context.Context {
	return context.WithValue(ctx, runKey{}, r)
}

// activeRunOn reports whether ctx belongs to a run currently executing on b.
func activeRunOn(ctx context.Context, b *Bus) bool {
	r, ok := ctx.Value(runKey{}).(*run)
	return ok && r.bus == b && r.active.Load()
}
