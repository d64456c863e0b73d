package audio

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultOutboundCapacity is the number of microphone frames that may wait for
// the network sender before new frames are dropped.
const DefaultOutboundCapacity = 5

// ─── OutboundQueue ───────────────────────────────────────────────────────────

// OutboundQueue is a bounded FIFO between the microphone callback and the
// network sender. Pushing never blocks: when the queue is full the newest
// frame is discarded and counted.
type OutboundQueue struct {
	ch      chan []byte
	dropped atomic.Uint64
	onDrop  func()
}

// NewOutboundQueue returns a queue holding at most capacity frames. A
// non-positive capacity selects [DefaultOutboundCapacity]. onDrop, if non-nil,
// is invoked from the pushing goroutine every time a frame is discarded and
// must be as cheap as the push itself.
func NewOutboundQueue(capacity int, onDrop func()) *OutboundQueue {
	if capacity <= 0 {
		capacity = DefaultOutboundCapacity
	}
	return &OutboundQueue{
		ch:     make(chan []byte, capacity),
		onDrop: onDrop,
	}
}

// TryPush enqueues frame without blocking. It returns false if the queue was
// full and the frame was dropped.
func (q *OutboundQueue) TryPush(frame []byte) bool {
	select {
	case q.ch <- frame:
		return true
	default:
		q.dropped.Add(1)
		if q.onDrop != nil {
			q.onDrop()
		}
		return false
	}
}

// Pop blocks until a frame is available or ctx is done.
func (q *OutboundQueue) Pop(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-q.ch:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of queued frames.
func (q *OutboundQueue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *OutboundQueue) Cap() int { return cap(q.ch) }

// Dropped returns the total number of frames discarded because the queue was full.
func (q *OutboundQueue) Dropped() uint64 { return q.dropped.Load() }

// ─── InboundQueue ────────────────────────────────────────────────────────────

// InboundQueue is an unbounded FIFO of PCM chunks received from the network.
// The zero value is ready to use.
type InboundQueue struct {
	mu    sync.Mutex
	items [][]byte
}

// Push appends chunk. It never blocks and never fails.
func (q *InboundQueue) Push(chunk []byte) {
	q.mu.Lock()
	q.items = append(q.items, chunk)
	q.mu.Unlock()
}

// TryPop removes and returns the oldest chunk. The boolean is false when the
// queue is empty.
func (q *InboundQueue) TryPop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	chunk := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return chunk, true
}

// Len returns the number of queued chunks.
func (q *InboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
