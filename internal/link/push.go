package link

import (
	"context"
	"fmt"
	"sync"

	"chartlinkv1/internal/metrics"
	"chartlinkv1/internal/model"
)

const pushPath = "/bars"

// PushConfig configures a PushChannel.
type PushConfig struct {
	Endpoint   Endpoint
	TOTPSecret string
	Metrics    *metrics.Metrics // optional
}

// PushChannel delivers bar-close notifications to the compute service on a
// best-effort, fire-and-forget basis (Channel B). The queue is unbounded:
// bar closes are infrequent, and a lost push is recoverable through the
// service's pull fallback on the reply channel.
type PushChannel struct {
	cfg  PushConfig
	q    *barQueue
	loop *Loop
}

// NewPushChannel constructs the channel. The worker is not started until Start.
func NewPushChannel(cfg PushConfig) *PushChannel {
	c := &PushChannel{
		cfg: cfg,
		q:   newBarQueue(),
	}
	dial := WebSocketDialer(cfg.Endpoint, pushPath, cfg.TOTPSecret)
	c.loop = NewLoop("push-channel", dial, c.runSession)
	if cfg.Metrics != nil {
		c.loop.OnReconnect = func() {
			cfg.Metrics.Reconnects.WithLabelValues("push").Inc()
		}
	}
	return c
}

// EnqueueBar appends a bar to the queue. Never blocks.
func (c *PushChannel) EnqueueBar(bar model.Bar) {
	c.q.enqueue(bar)
}

// QueueLen returns the number of bars waiting to be sent.
func (c *PushChannel) QueueLen() int { return c.q.len() }

// Start launches the channel worker. Idempotent.
func (c *PushChannel) Start() { c.loop.Start() }

// Stop shuts the channel down within the bounded join timeout.
func (c *PushChannel) Stop() { c.loop.Stop() }

// IsConnected reports the worker's connection state. Lock-free.
func (c *PushChannel) IsConnected() bool { return c.loop.IsConnected() }

// runSession drains the queue over one socket. A dequeued bar is sent at most
// once: if the send fails, the bar is lost and the socket recreated — no
// retry of a specific dropped message.
func (c *PushChannel) runSession(ctx context.Context, sock Socket) error {
	for {
		bar, ok := c.q.dequeue()
		if !ok {
			// Idle-sleep briefly to avoid busy-spin on an empty queue.
			if !sleepCtx(ctx, pollInterval) {
				return nil
			}
			continue
		}

		if err := sock.Send(bar.JSON()); err != nil {
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.PushSendFails.Inc()
			}
			return fmt.Errorf("send bar: %w", err)
		}
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.PushesSent.Inc()
		}
	}
}

// barQueue is an unbounded FIFO guarded by a mutex. The worker polls it with
// the shared 100ms granularity rather than blocking on a condition variable
// so that shutdown stays bounded.
type barQueue struct {
	mu    sync.Mutex
	items []model.Bar
}

func newBarQueue() *barQueue {
	return &barQueue{items: make([]model.Bar, 0, 16)}
}

func (q *barQueue) enqueue(bar model.Bar) {
	q.mu.Lock()
	q.items = append(q.items, bar)
	q.mu.Unlock()
}

func (q *barQueue) dequeue() (model.Bar, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return model.Bar{}, false
	}
	bar := q.items[0]
	q.items = q.items[1:]
	return bar, true
}

func (q *barQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
