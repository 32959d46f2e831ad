package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestUIQueueRunsCallbacksInOrder(t *testing.T) {
	q := NewUIQueue(8)
	q.Start()
	defer q.Stop()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		i := i
		q.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if i == 2 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callbacks not dispatched")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("callbacks ran out of order: %v", order)
	}
}

// Posting into a full queue drops the callback instead of blocking the
// posting worker.
func TestUIQueuePostDropsWhenFull(t *testing.T) {
	q := NewUIQueue(2) // not started: nothing drains
	if !q.Post(func() {}) || !q.Post(func() {}) {
		t.Fatal("posts rejected with free capacity")
	}
	if q.Post(func() {}) {
		t.Error("post accepted beyond capacity")
	}
}

func TestUIQueueStopHaltsDispatch(t *testing.T) {
	q := NewUIQueue(8)
	q.Start()
	q.Stop()
	q.Stop() // idempotent

	time.Sleep(20 * time.Millisecond) // let the run loop exit
	var ran atomic.Int32
	q.Post(func() { ran.Add(1) })
	time.Sleep(50 * time.Millisecond)
	if ran.Load() != 0 {
		t.Error("callback ran after Stop")
	}
}
