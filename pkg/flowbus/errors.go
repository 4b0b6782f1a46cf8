package flowbus

import (
	"errors"
	"fmt"
)

// Sentinel errors for submitting runs.
var (
	// ErrBusClosed indicates the bus no longer accepts runs. Returned by Run
	// and Emit after Close, instead of blocking forever.
	ErrBusClosed = errors.New("bus closed")

	// ErrNilWork indicates Run was called with nil work.
	ErrNilWork = errors.New("work cannot be nil")

	// ErrReentrantRun indicates Run was called from inside a run executing on
	// the same bus. The consumer is busy with the caller, so the nested run
	// could never start.
	ErrReentrantRun = errors.New("run submitted from inside a run on the same bus")

	// ErrNilBus indicates NewEvent was given a nil bus.
	ErrNilBus = errors.New("bus cannot be nil")
)

// PanicError wraps a value recovered from a panicking subscriber or run.
type PanicError struct {
	// Value is the value passed to panic.
	Value any
	// Stack is the goroutine stack at the point of recovery.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// SubscriberError wraps an error from one subscriber invocation.
type SubscriberError struct {
	// Event is the name of the event being emitted.
	Event string
	// Index is the subscriber's registration position.
	Index int
	// Batch is the batch the subscriber ran in (always 0 for High priority).
	Batch int
	// RunID identifies the run the subscriber ran in.
	RunID string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SubscriberError) Error() string {
	return fmt.Sprintf("event %s: subscriber %d (batch %d): %v", e.Event, e.Index, e.Batch, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SubscriberError) Unwrap() error {
	return e.Err
}

// EmitError wraps a failure to deliver an emit to the bus.
// Subscriber failures are reported as SubscriberError instead.
type EmitError struct {
	// Event is the name of the event being emitted.
	Event string
	// Batch is the batch that could not be submitted.
	Batch int
	// Err is the underlying error, usually ErrBusClosed or a context error.
	Err error
}

// Error implements the error interface.
func (e *EmitError) Error() string {
	return fmt.Sprintf("emit %s: batch %d: %v", e.Event, e.Batch, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *EmitError) Unwrap() error {
	return e.Err
}
