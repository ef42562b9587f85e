package engine

import (
	"sync"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/workflow"
)

// Instruction is one inbound instruction addressed to a thread.
type Instruction struct {
	ThreadID string
	Input    workflow.Input
}

// reply carries the outcome of a submitted instruction back to its caller.
type reply struct {
	outcome Outcome
	err     error
}

// queued is an instruction plus the optional channel its caller waits on.
type queued struct {
	ins   Instruction
	reply chan reply // nil for fire-and-forget
}

// instructionQueue is a thread-safe FIFO queue for instructions.
//
// The queue is unbounded so producers (stdin readers, HTTP handlers) never
// block on a slow tick. Run is the only consumer.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type instructionQueue struct {
	mu     sync.Mutex
	items  []queued
	closed bool
	signal chan struct{} // Signals availability (buffered, size 1)
}

// newInstructionQueue creates an empty queue.
func newInstructionQueue() *instructionQueue {
	return &instructionQueue{
		items:  make([]queued, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an item to the back of the queue.
// Returns false if the queue is closed.
func (q *instructionQueue) Enqueue(item queued) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, item)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front item without blocking.
// Returns (queued{}, false) if the queue is empty.
func (q *instructionQueue) TryDequeue() (queued, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return queued{}, false
	}

	item := q.items[0]
	// Clear the slot so the backing array does not pin the input messages
	q.items[0] = queued{}

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return item, true
}

// Wait returns a channel that signals when items may be available.
// The channel is closed once the queue is closed.
func (q *instructionQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *instructionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close signals that no more items will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *instructionQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
