package api

import (
	"testing"
	"time"

	"trello-api/domain"
)

func BenchmarkTryEnqueue(b *testing.B) {
	batch := []domain.Event{domain.NewEvent(domain.EntityCard, domain.ActionCreated, "card-1", "user", nil, 0)}

	b.Run("Buffered", func(b *testing.B) {
		d := newTestDispatcher(1024, 0)

		b.ReportAllocs()
		for b.Loop() {
			if !d.tryEnqueue(batch) {
				b.Fatal("expected buffered enqueue to succeed")
			}
			select {
			case <-d.jobs:
			default:
				b.Fatal("expected buffered batch to be queued")
			}
		}
	})

	b.Run("BufferFull", func(b *testing.B) {
		d := newTestDispatcher(1, 0)
		d.jobs <- batch

		b.ReportAllocs()
		for b.Loop() {
			if d.tryEnqueue(batch) {
				b.Fatal("expected enqueue to fail when buffer is saturated")
			}
		}
	})

	b.Run("HandoffTimeout", func(b *testing.B) {
		d := newTestDispatcher(1, time.Nanosecond)
		d.jobs <- batch

		b.ReportAllocs()
		for b.Loop() {
			if d.tryEnqueue(batch) {
				b.Fatal("expected enqueue to fail after handoff timeout")
			}
		}
	})
}

func BenchmarkEmitStamping(b *testing.B) {
	for _, size := range []int{1, 8} {
		b.Run(map[int]string{1: "Single", 8: "Batch"}[size], func(b *testing.B) {
			var clock eventClock
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					clock.reserve(size)
				}
			})
		})
	}
}
