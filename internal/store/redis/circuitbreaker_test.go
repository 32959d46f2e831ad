package redis

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errBackend = errors.New("connection refused")

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		cb.Execute(func() error { return errBackend })
	}
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	if cb.CurrentState() != StateClosed {
		t.Fatal("new breaker should be closed")
	}

	failN(cb, 2)
	if cb.CurrentState() != StateClosed {
		t.Fatal("breaker opened before reaching max failures")
	}

	failN(cb, 1)
	if cb.CurrentState() != StateOpen {
		t.Fatal("breaker did not open at max failures")
	}

	// Open circuit rejects without invoking fn.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if err != ErrCircuitOpen {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn invoked while circuit open")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	failN(cb, 2)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// Two more failures: count restarted, still closed.
	failN(cb, 2)
	if cb.CurrentState() != StateClosed {
		t.Error("breaker opened despite intervening success")
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	failN(cb, 1)
	if cb.CurrentState() != StateOpen {
		t.Fatal("breaker not open")
	}

	time.Sleep(20 * time.Millisecond)

	// A failed probe reopens.
	if err := cb.Execute(func() error { return errBackend }); err != errBackend {
		t.Fatalf("probe err = %v, want backend error", err)
	}
	if cb.CurrentState() != StateOpen {
		t.Error("failed probe did not reopen the breaker")
	}

	time.Sleep(20 * time.Millisecond)

	// A successful probe closes.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe err = %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Error("successful probe did not close the breaker")
	}
}

func TestBreakerNotifiesStateChanges(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	var mu sync.Mutex
	var transitions []State
	cb.OnStateChange = func(from, to State) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	}

	failN(cb, 1)
	time.Sleep(20 * time.Millisecond)
	cb.Execute(func() error { return nil })

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}
