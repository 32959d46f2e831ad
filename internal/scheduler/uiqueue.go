package scheduler

import (
	"log"
	"sync"
)

// UIQueue models the host UI's single-threaded dispatch: callbacks posted
// from channel workers run one at a time on a dedicated goroutine. Post is
// non-blocking with at-most-once, next-tick delivery. Bursts are not
// coalesced — each channel update posts independently.
type UIQueue struct {
	ch chan func()

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewUIQueue creates a queue with the given buffer (0 = default of 64).
func NewUIQueue(buffer int) *UIQueue {
	if buffer <= 0 {
		buffer = 64
	}
	return &UIQueue{
		ch:   make(chan func(), buffer),
		done: make(chan struct{}),
	}
}

// Start launches the dispatch goroutine. Idempotent.
func (q *UIQueue) Start() {
	q.startOnce.Do(func() {
		go q.run()
	})
}

func (q *UIQueue) run() {
	for {
		select {
		case fn := <-q.ch:
			fn()
		case <-q.done:
			return
		}
	}
}

// Post enqueues fn for the next tick. Returns false (and drops fn) if the
// queue is full — a slow UI must not block a channel worker.
func (q *UIQueue) Post(fn func()) bool {
	select {
	case q.ch <- fn:
		return true
	default:
		log.Printf("[ui-queue] full, dropping posted callback")
		return false
	}
}

// Stop halts dispatch. Pending callbacks are discarded.
func (q *UIQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.done)
	})
}
