// Package queue implements the bounded, per-ruleset ingress queue the spec
// calls "qqueue" — an external collaborator fixed only by its enqueue/
// dequeue contract and its light-delayable backpressure signal.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/imtcpd/imtcpd/internal/message"
)

// ErrClosed is returned by Enqueue once the queue has been closed.
var ErrClosed = errors.New("queue: closed")

// ErrShutdownImmediate is returned by Enqueue when the shared shutdown flag
// was already set; the caller must count the message against
// DROPPED_ON_SHUTDOWN instead of silently discarding it.
var ErrShutdownImmediate = errors.New("queue: shutdown in progress")

// Policy configures a Queue's capacity and backpressure thresholds.
type Policy struct {
	// Capacity bounds the number of buffered messages.
	Capacity int

	// HighWatermark is the occupancy at or above which IsLightDelayable
	// reports true, signalling upstream producers to slow down.
	HighWatermark int

	// LowWatermark is the occupancy at or below which a previously
	// light-delayable queue stops signalling backpressure (hysteresis).
	// Zero defaults to HighWatermark/2.
	LowWatermark int
}

func (p Policy) normalized() Policy {
	if p.Capacity <= 0 {
		p.Capacity = DefaultCapacity
	}
	if p.HighWatermark <= 0 || p.HighWatermark > p.Capacity {
		p.HighWatermark = p.Capacity
	}
	if p.LowWatermark <= 0 {
		p.LowWatermark = p.HighWatermark / 2
	}
	return p
}

// DefaultCapacity is used when a Policy specifies no capacity.
const DefaultCapacity = 1000

// Queue is a bounded, thread-safe FIFO of *message.Message with a light-
// delayable backpressure signal derived from occupancy watermarks.
//
// This is the "main queue" or per-ruleset private queue the spec's
// GetRulesetQueue resolves to; its internals are otherwise opaque to the
// rest of the engine, which only calls Enqueue/Dequeue/Close.
type Queue struct {
	policy Policy
	ch     chan *message.Message

	mu            sync.Mutex
	delayable     bool
	closed        bool
	droppedOnShut atomic.Uint64
}

// New creates a Queue governed by the given policy.
func New(policy Policy) *Queue {
	p := policy.normalized()
	return &Queue{
		policy: p,
		ch:     make(chan *message.Message, p.Capacity),
	}
}

// Enqueue places msg on the queue. If shutdownImmediate is non-nil and
// already set, the message is rejected with ErrShutdownImmediate so the
// caller can bump DROPPED_ON_SHUTDOWN rather than drop it silently
// (spec §4.4 cancellation guarantee).
//
// When the queue is full, Enqueue blocks until space frees up or ctx is
// done, unless flowControl is false, in which case it applies the queue's
// own drop policy: the oldest-arriving message is dropped to admit the new
// one (spec §4.3: "If flow control is off, the queue may apply its own
// drop policy").
func (q *Queue) Enqueue(ctx context.Context, msg *message.Message, flowControl bool, shutdownImmediate *atomic.Bool) error {
	if shutdownImmediate != nil && shutdownImmediate.Load() {
		return ErrShutdownImmediate
	}

	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if flowControl {
		select {
		case q.ch <- msg:
			q.updateDelayable()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case q.ch <- msg:
	default:
		select {
		case <-q.ch:
		default:
		}
		select {
		case q.ch <- msg:
		default:
		}
	}
	q.updateDelayable()
	return nil
}

// Dequeue blocks until a message is available, the queue is closed and
// drained, or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*message.Message, bool) {
	select {
	case msg, ok := <-q.ch:
		q.updateDelayable()
		return msg, ok
	case <-ctx.Done():
		return nil, false
	}
}

// Len reports the current occupancy.
func (q *Queue) Len() int {
	return len(q.ch)
}

// IsLightDelayable reports whether occupancy is at or above the high
// watermark (set) and has not yet fallen back to the low watermark
// (cleared) — the backpressure signal consulted by the TCP session's
// flow-control gate.
func (q *Queue) IsLightDelayable() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.delayable
}

func (q *Queue) updateDelayable() {
	n := len(q.ch)
	q.mu.Lock()
	switch {
	case n >= q.policy.HighWatermark:
		q.delayable = true
	case n <= q.policy.LowWatermark:
		q.delayable = false
	}
	q.mu.Unlock()
}

// RecordDroppedOnShutdown increments the DROPPED_ON_SHUTDOWN counter. The
// TCP server calls this whenever a message cannot be enqueued because
// shutdown is already underway.
func (q *Queue) RecordDroppedOnShutdown() {
	q.droppedOnShut.Add(1)
}

// DroppedOnShutdown returns the total count recorded via
// RecordDroppedOnShutdown.
func (q *Queue) DroppedOnShutdown() uint64 {
	return q.droppedOnShut.Load()
}

// Close marks the queue closed. Buffered messages already enqueued remain
// available to Dequeue until drained; Enqueue fails with ErrClosed
// thereafter. This models the "drain or abandon per its shutdown policy"
// destruction step (spec §4.8).
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.ch)
}
