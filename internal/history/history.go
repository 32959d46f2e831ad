// Package history keeps the client's recent completed bars so the reply
// channel can answer the compute service's pull queries without touching the
// host chart's data access.
package history

import (
	"sync"
	"time"

	"chartlinkv1/internal/model"
)

// History is a fixed-size circular buffer of recent bars for one series.
// The host appends from its own thread while the reply worker queries
// concurrently; both paths are safe.
type History struct {
	symbol      string
	resolution  model.Resolution
	periodCount int

	mu   sync.RWMutex
	buf  []model.Bar
	cap  int
	pos  int // next write position
	full bool
}

// New creates a history buffer for the given series identity. capacity <= 0
// takes a default of 500 bars.
func New(symbol string, resolution model.Resolution, periodCount, capacity int) *History {
	if capacity <= 0 {
		capacity = 500
	}
	return &History{
		symbol:      symbol,
		resolution:  resolution,
		periodCount: periodCount,
		buf:         make([]model.Bar, capacity),
		cap:         capacity,
	}
}

// Append records a completed bar, overwriting the oldest when full. Bars are
// expected in close-time order.
func (h *History) Append(bar model.Bar) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.pos] = bar
	h.pos = (h.pos + 1) % h.cap
	if h.pos == 0 && !h.full {
		h.full = true
	}
}

// Query answers a pull request. A parameter mismatch (wrong symbol,
// resolution, or period count) yields an empty result, never an error — the
// reply channel's contract forbids faults crossing the boundary.
func (h *History) Query(req model.PullRequest) ([]model.Bar, error) {
	if req.Symbol != h.symbol ||
		req.Resolution != h.resolution ||
		req.PeriodCount != h.periodCount {
		return nil, nil
	}
	return h.Range(req.StartTime, req.EndTime), nil
}

// Range returns bars with close time in [start, end] in close-time order.
func (h *History) Range(start, end time.Time) []model.Bar {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var result []model.Bar
	count := h.len()
	for i := 0; i < count; i++ {
		b := h.buf[h.index(i)]
		if !b.CloseTime.Before(start) && !b.CloseTime.After(end) {
			result = append(result, b)
		}
	}
	return result
}

// Len returns the number of bars currently held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.len()
}

func (h *History) len() int {
	if h.full {
		return h.cap
	}
	return h.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (h *History) index(logical int) int {
	if h.full {
		return (h.pos + logical) % h.cap
	}
	return logical
}
