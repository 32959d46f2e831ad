package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"chartlinkv1/internal/model"
)

func bufBar(closeAt int64, price float64) model.Bar {
	return model.Bar{
		Symbol:      "NIFTY",
		Resolution:  model.ResolutionMinute,
		PeriodCount: 1,
		CloseTime:   time.Unix(closeAt, 0).UTC(),
		Close:       price,
	}
}

// With the circuit already open, writes never reach Redis: they land in the
// local buffer and WriteBar reports success.
func TestBufferedCacheBuffersWhileOpen(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	failN(cb, 1) // trip it; the long reset keeps it open for the whole test

	bc := NewBufferedCache(context.Background(), nil, cb, 100)

	var buffered int
	bc.OnBuffer = func() { buffered++ }

	for i := 0; i < 3; i++ {
		if err := bc.WriteBar(bufBar(int64(60*i), float64(i))); err != nil {
			t.Fatalf("WriteBar while open: %v", err)
		}
	}
	if bc.PendingCount() != 3 {
		t.Errorf("PendingCount = %d, want 3", bc.PendingCount())
	}
	if buffered != 3 {
		t.Errorf("OnBuffer ran %d times, want 3", buffered)
	}
}

func TestBufferedCacheDropsOldestWhenFull(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	failN(cb, 1)

	bc := NewBufferedCache(context.Background(), nil, cb, 2)
	for i := 0; i < 4; i++ {
		bc.WriteBar(bufBar(int64(60*i), float64(i)))
	}
	if bc.PendingCount() != 2 {
		t.Fatalf("PendingCount = %d, want 2", bc.PendingCount())
	}

	// The survivors are the two newest writes.
	bc.mu.Lock()
	defer bc.mu.Unlock()
	var first model.Bar
	if err := json.Unmarshal(bc.buffer[0], &first); err != nil {
		t.Fatalf("decode buffered bar: %v", err)
	}
	if first.Close != 2 {
		t.Errorf("oldest surviving buffered close = %v, want 2", first.Close)
	}
}
