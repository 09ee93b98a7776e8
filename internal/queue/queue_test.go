package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/imtcpd/imtcpd/internal/message"
)

func TestQueue_EnqueueDequeueOrder(t *testing.T) {
	q := New(Policy{Capacity: 4})
	ctx := context.Background()

	for _, tag := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, &message.Message{InputName: tag}, true, nil); err != nil {
			t.Fatalf("Enqueue(%s): %v", tag, err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		msg, ok := q.Dequeue(ctx)
		if !ok {
			t.Fatalf("Dequeue: queue closed early")
		}
		if msg.InputName != want {
			t.Fatalf("Dequeue = %s, want %s", msg.InputName, want)
		}
	}
}

func TestQueue_ShutdownImmediateRejectsEnqueue(t *testing.T) {
	q := New(Policy{Capacity: 4})
	shutdown := &atomic.Bool{}
	shutdown.Store(true)

	err := q.Enqueue(context.Background(), &message.Message{}, true, shutdown)
	if !errors.Is(err, ErrShutdownImmediate) {
		t.Fatalf("Enqueue error = %v, want ErrShutdownImmediate", err)
	}
}

func TestQueue_CloseStopsFurtherEnqueue(t *testing.T) {
	q := New(Policy{Capacity: 4})
	q.Close()

	err := q.Enqueue(context.Background(), &message.Message{}, true, nil)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("Enqueue after Close error = %v, want ErrClosed", err)
	}
}

func TestQueue_IsLightDelayableHysteresis(t *testing.T) {
	q := New(Policy{Capacity: 10, HighWatermark: 5, LowWatermark: 2})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(ctx, &message.Message{}, true, nil); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	if !q.IsLightDelayable() {
		t.Fatalf("queue at high watermark should be light-delayable")
	}

	for i := 0; i < 3; i++ {
		if _, ok := q.Dequeue(ctx); !ok {
			t.Fatalf("Dequeue %d failed", i)
		}
	}
	if !q.IsLightDelayable() {
		t.Fatalf("queue should remain light-delayable above the low watermark")
	}

	if _, ok := q.Dequeue(ctx); !ok {
		t.Fatalf("Dequeue failed")
	}
	if q.IsLightDelayable() {
		t.Fatalf("queue should clear light-delayable at or below the low watermark")
	}
}

func TestQueue_DequeueBlocksUntilContextDone(t *testing.T) {
	q := New(Policy{Capacity: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	msg, ok := q.Dequeue(ctx)
	if ok || msg != nil {
		t.Fatalf("Dequeue on empty queue with expired context should return (nil, false)")
	}
}

func TestQueue_RecordDroppedOnShutdown(t *testing.T) {
	q := New(Policy{Capacity: 1})
	q.RecordDroppedOnShutdown()
	q.RecordDroppedOnShutdown()
	if got := q.DroppedOnShutdown(); got != 2 {
		t.Fatalf("DroppedOnShutdown = %d, want 2", got)
	}
}
