package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"chartlinkv1/internal/model"
)

// BufferedCache wraps a Cache with a circuit breaker. While the circuit is
// open, writes are buffered locally and flushed once the circuit closes, so
// a Redis outage loses nothing on the ingest path.
type BufferedCache struct {
	cache *Cache
	cb    *CircuitBreaker
	ctx   context.Context

	mu     sync.Mutex
	buffer [][]byte // JSON-encoded bars
	maxBuf int

	// OnBuffer is called when a write is buffered (for metrics). Optional.
	OnBuffer func()
	// OnFlush is called after flushing buffered writes. Optional.
	OnFlush func(count int)
}

// NewBufferedCache creates a BufferedCache. maxBufferSize <= 0 defaults to
// 10000; beyond it the oldest buffered write is dropped.
func NewBufferedCache(ctx context.Context, cache *Cache, cb *CircuitBreaker, maxBufferSize int) *BufferedCache {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bc := &BufferedCache{
		cache:  cache,
		cb:     cb,
		ctx:    ctx,
		buffer: make([][]byte, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Flush when the circuit closes again
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bc.flush()
		}
	}

	return bc
}

// WriteBar writes through the circuit breaker, buffering locally while the
// circuit is open.
func (bc *BufferedCache) WriteBar(bar model.Bar) error {
	err := bc.cb.Execute(func() error {
		return bc.cache.WriteBar(bc.ctx, bar)
	})
	if err == ErrCircuitOpen {
		bc.bufferWrite(bar)
		return nil // buffered, not lost
	}
	return err
}

func (bc *BufferedCache) bufferWrite(bar model.Bar) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if len(bc.buffer) >= bc.maxBuf {
		// Buffer full — drop oldest
		bc.buffer = bc.buffer[1:]
	}
	bc.buffer = append(bc.buffer, bar.JSON())

	if bc.OnBuffer != nil {
		bc.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying cache.
func (bc *BufferedCache) flush() {
	bc.mu.Lock()
	if len(bc.buffer) == 0 {
		bc.mu.Unlock()
		return
	}
	toFlush := bc.buffer
	bc.buffer = make([][]byte, 0, 256)
	bc.mu.Unlock()

	flushed := 0
	for _, data := range toFlush {
		var bar model.Bar
		if json.Unmarshal(data, &bar) == nil {
			bc.cache.WriteBar(bc.ctx, bar)
			flushed++
		}
	}

	log.Printf("[redis] flushed %d buffered bar writes", flushed)
	if bc.OnFlush != nil {
		bc.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes awaiting flush.
func (bc *BufferedCache) PendingCount() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

// Underlying returns the wrapped Cache for read access.
func (bc *BufferedCache) Underlying() *Cache {
	return bc.cache
}
