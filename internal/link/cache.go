package link

import (
	"sync"
	"time"

	"chartlinkv1/internal/model"
)

// CachedResult is the latest overlay result shared between the request
// channel's worker and all readers. It is replaced atomically as a whole and
// never mutated in place.
type CachedResult struct {
	Elements   []model.RenderElement
	LastUpdate time.Time
	Token      int64 // server-reported detection time, UnixNano
}

// ResultCache is a thread-safe latest-value holder. Writes are whole-value
// swaps; reads copy out under a lock held only for the duration of the copy,
// so no reader ever observes a partially updated result.
type ResultCache struct {
	mu  sync.Mutex
	cur CachedResult
}

// NewResultCache returns an empty cache with a zero freshness token.
func NewResultCache() *ResultCache {
	return &ResultCache{}
}

// Replace swaps in a new result. detected is the server-reported timestamp
// used as the freshness token. The cache takes ownership of elements.
func (c *ResultCache) Replace(elements []model.RenderElement, detected time.Time) {
	c.mu.Lock()
	c.cur = CachedResult{
		Elements:   elements,
		LastUpdate: time.Now(),
		Token:      detected.UnixNano(),
	}
	c.mu.Unlock()
}

// Snapshot returns a copy of the current elements. Mutating the cache after a
// snapshot never changes the returned slice.
func (c *ResultCache) Snapshot() []model.RenderElement {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.RenderElement, len(c.cur.Elements))
	copy(out, c.cur.Elements)
	return out
}

// Token returns the current freshness token (0 until the first replace).
func (c *ResultCache) Token() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur.Token
}

// LastUpdate returns the local time of the most recent replace.
func (c *ResultCache) LastUpdate() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur.LastUpdate
}
