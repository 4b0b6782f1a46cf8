package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/randalmurphal/flowbus/pkg/flowbus"
)

func noopSubscriber[T any](context.Context, T) error { return nil }

func buildEvent[T any](bus *flowbus.Bus, priority flowbus.Priority, subs int) *flowbus.Event[T] {
	evt := flowbus.NewEvent[T](bus, "bench", priority)
	for i := 0; i < subs; i++ {
		evt.Subscribe(noopSubscriber[T])
	}
	return evt
}

// BenchmarkEmit_High measures one-run fan-out across subscriber counts.
func BenchmarkEmit_High(b *testing.B) {
	for _, subs := range []int{1, 10, 100} {
		b.Run(fmt.Sprintf("subs=%d", subs), func(b *testing.B) {
			evt := buildEvent[int](newBus(b), flowbus.PriorityHigh, subs)
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = evt.Emit(ctx, i)
			}
		})
	}
}

// BenchmarkEmit_Low measures batched fan-out; 100 subscribers is 5 runs.
func BenchmarkEmit_Low(b *testing.B) {
	for _, subs := range []int{1, 20, 100} {
		b.Run(fmt.Sprintf("subs=%d", subs), func(b *testing.B) {
			evt := buildEvent[int](newBus(b), flowbus.PriorityLow, subs)
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = evt.Emit(ctx, i)
			}
		})
	}
}

// BenchmarkEmit_ClonedPayload measures per-subscriber Clone overhead.
func BenchmarkEmit_ClonedPayload(b *testing.B) {
	evt := buildEvent[Payload](newBus(b), flowbus.PriorityHigh, 20)
	payload := Payload{ID: "bench", Values: make([]int, 256)}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = evt.Emit(ctx, payload)
	}
}

// BenchmarkEmit_Concurrent measures High and Low emitters sharing one bus.
func BenchmarkEmit_Concurrent(b *testing.B) {
	bus := newBus(b)
	high := buildEvent[int](bus, flowbus.PriorityHigh, 10)
	low := buildEvent[int](bus, flowbus.PriorityLow, 40)
	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		n := 0
		for pb.Next() {
			if n%2 == 0 {
				_ = high.Emit(ctx, n)
			} else {
				_ = low.Emit(ctx, n)
			}
			n++
		}
	})
}
