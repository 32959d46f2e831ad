package link

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"chartlinkv1/internal/model"
)

func testBar(closeAt int64, price float64) model.Bar {
	return model.Bar{
		Symbol:      "NIFTY",
		Resolution:  model.ResolutionMinute,
		PeriodCount: 1,
		CloseTime:   time.Unix(closeAt, 0).UTC(),
		Open:        price,
		High:        price,
		Low:         price,
		Close:       price,
		Volume:      1000,
	}
}

func TestPushSessionDrainsQueueInOrder(t *testing.T) {
	c := NewPushChannel(PushConfig{Endpoint: Endpoint{Host: "localhost", Port: 5556}})
	c.EnqueueBar(testBar(100, 10))
	c.EnqueueBar(testBar(160, 11))
	c.EnqueueBar(testBar(220, 12))

	sock := newFakeSocket()
	ctx, cancel := context.WithCancel(context.Background())
	sessionDone := make(chan error, 1)
	go func() { sessionDone <- c.runSession(ctx, sock) }()

	waitFor(t, 2*time.Second, func() bool { return sock.sentCount() == 3 })
	cancel()
	<-sessionDone

	for i, wantPrice := range []float64{10, 11, 12} {
		var bar model.Bar
		if err := json.Unmarshal(sock.sentAt(i), &bar); err != nil {
			t.Fatalf("push %d is not a bar: %v", i, err)
		}
		if bar.Close != wantPrice {
			t.Errorf("push %d close = %v, want %v", i, bar.Close, wantPrice)
		}
	}
	if got := c.QueueLen(); got != 0 {
		t.Errorf("queue not drained, %d bars remain", got)
	}
}

// A bar whose send fails is lost, not re-queued: across the socket failure
// and a fresh session, no bar is ever sent twice.
func TestPushSendsAtMostOnceAcrossFailure(t *testing.T) {
	c := NewPushChannel(PushConfig{Endpoint: Endpoint{Host: "localhost", Port: 5556}})
	c.EnqueueBar(testBar(100, 10))
	c.EnqueueBar(testBar(160, 11)) // this send will fail
	c.EnqueueBar(testBar(220, 12))

	broken := newFakeSocket()
	broken.sendErrs = map[int]error{2: errors.New("connection reset")}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.runSession(ctx, broken); err == nil {
		t.Fatal("expected session error after send failure")
	}
	if got := broken.sentCount(); got != 1 {
		t.Fatalf("broken socket carried %d bars, want 1", got)
	}

	// A fresh session (fresh socket) picks up the remaining queue; the
	// failed bar must not reappear.
	fresh := newFakeSocket()
	ctx2, cancel2 := context.WithCancel(context.Background())
	sessionDone := make(chan error, 1)
	go func() { sessionDone <- c.runSession(ctx2, fresh) }()
	waitFor(t, 2*time.Second, func() bool { return fresh.sentCount() == 1 })
	cancel2()
	<-sessionDone

	var bar model.Bar
	if err := json.Unmarshal(fresh.sentAt(0), &bar); err != nil {
		t.Fatalf("decode resent bar: %v", err)
	}
	if bar.Close != 12 {
		t.Errorf("fresh session sent bar with close %v, want 12 (failed bar resent)", bar.Close)
	}
}

func TestEnqueueBarNeverBlocks(t *testing.T) {
	c := NewPushChannel(PushConfig{Endpoint: Endpoint{Host: "localhost", Port: 5556}})
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5000; i++ {
			c.EnqueueBar(testBar(int64(i), float64(i)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("EnqueueBar blocked with no consumer")
	}
	if got := c.QueueLen(); got != 5000 {
		t.Errorf("queue length = %d, want 5000", got)
	}
}
