package link

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// countingDialer hands out a fresh fake socket per dial and records every
// attempt.
type countingDialer struct {
	mu      sync.Mutex
	dials   int
	sockets []*fakeSocket
	err     error
}

func (d *countingDialer) dial() (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeSocket()
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *countingDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func TestLoopReconnectsWithFreshSocket(t *testing.T) {
	dialer := &countingDialer{}
	sessionErr := errors.New("reply timed out")

	var seen []Socket
	var seenMu sync.Mutex
	session := func(ctx context.Context, sock Socket) error {
		seenMu.Lock()
		seen = append(seen, sock)
		seenMu.Unlock()
		return sessionErr
	}

	l := NewLoop("test-loop", dialer.dial, session)
	l.Start()
	defer l.Stop()

	// First session fails immediately; the second dial happens only after
	// the cooldown elapses.
	deadline := time.Now().Add(reconnectCooldown + 2*time.Second)
	for dialer.dialCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if got := dialer.dialCount(); got < 2 {
		t.Fatalf("expected at least 2 dials after session failure, got %d", got)
	}

	seenMu.Lock()
	defer seenMu.Unlock()
	if len(seen) < 2 {
		t.Fatalf("expected at least 2 sessions, got %d", len(seen))
	}
	if seen[0] == seen[1] {
		t.Error("expected a fresh socket per session, got the same instance")
	}
	if !dialer.sockets[0].isClosed() {
		t.Error("expected the failed session's socket to be closed")
	}
}

func TestLoopStateTracksSession(t *testing.T) {
	dialer := &countingDialer{}
	release := make(chan struct{})
	session := func(ctx context.Context, sock Socket) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}

	l := NewLoop("test-loop", dialer.dial, session)
	if l.IsConnected() {
		t.Fatal("loop reported connected before Start")
	}
	l.Start()
	defer l.Stop()

	waitFor(t, time.Second, l.IsConnected)
	if got := l.State(); got != StateConnected {
		t.Errorf("state = %v, want %v", got, StateConnected)
	}
	close(release)
}

func TestLoopStopIsBoundedAndIdempotent(t *testing.T) {
	dialer := &countingDialer{}
	session := func(ctx context.Context, sock Socket) error {
		<-ctx.Done() // park mid-wait until cancelled
		return nil
	}

	l := NewLoop("test-loop", dialer.dial, session)
	l.Start()
	waitFor(t, time.Second, l.IsConnected)

	done := make(chan struct{})
	go func() {
		l.Stop()
		l.Stop() // second call must not block either
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return in time")
	}
	if l.IsConnected() {
		t.Error("loop still reports connected after Stop")
	}
}

func TestLoopStopWithoutStart(t *testing.T) {
	l := NewLoop("test-loop", (&countingDialer{}).dial, nil)
	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop on an unstarted loop blocked")
	}
}

func TestLoopDoubleStartIsNoOp(t *testing.T) {
	dialer := &countingDialer{}
	session := func(ctx context.Context, sock Socket) error {
		<-ctx.Done()
		return nil
	}
	l := NewLoop("test-loop", dialer.dial, session)
	l.Start()
	l.Start()
	defer l.Stop()

	waitFor(t, time.Second, l.IsConnected)
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("expected a single dial from double Start, got %d", got)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
