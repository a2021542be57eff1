package engine

import (
	"sync"
	"time"
)

// completion reports a finished background action.
type completion struct {
	root     string
	task     string
	started  time.Time
	finished time.Time
	err      error
}

// completionQueue carries completions from action goroutines to the
// scheduler.
//
// Action goroutines push; only the scheduler drains. Pushing never blocks,
// so an action can finish even when no tick is running to reap it.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in Settle.
type completionQueue struct {
	mu     sync.Mutex
	items  []completion
	signal chan struct{} // Signals availability (buffered, size 1)
}

// newCompletionQueue creates an empty queue.
func newCompletionQueue() *completionQueue {
	return &completionQueue{
		items:  make([]completion, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Push appends a completion.
// Thread-safe: may be called from any goroutine.
func (q *completionQueue) Push(c completion) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, c)

	// Signal availability (non-blocking - buffer of 1 coalesces multiple signals)
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Drain removes and returns every queued completion in push order.
func (q *completionQueue) Drain() []completion {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = make([]completion, 0, cap(out))
	return out
}

// Wait returns a channel that signals when completions may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Drain
//	}
func (q *completionQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *completionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
