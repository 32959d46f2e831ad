package link

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chartlinkv1/internal/logger"
	"chartlinkv1/internal/metrics"
	"chartlinkv1/internal/model"
)

const (
	requestQueueCap = 10
	replyTimeout    = 5 * time.Second
	requestPath     = "/overlay"
)

// PendingRequest is one queued overlay request.
type PendingRequest struct {
	ReferenceTS time.Time
	EnqueuedAt  time.Time
}

// RequestConfig configures a RequestChannel. The series identity fields are
// fixed for the channel's lifetime.
type RequestConfig struct {
	Endpoint    Endpoint
	Symbol      string
	Resolution  model.Resolution
	PeriodCount int
	SeriesKind  string
	TOTPSecret  string

	// OnUpdate is invoked after each successful cache replace. Callers use it
	// to post a redraw onto their own thread. Optional.
	OnUpdate func()

	// Cache receives the results. When nil a fresh cache is created; callers
	// that rebuild channels pass their own so the cache outlives any one
	// channel instance.
	Cache *ResultCache

	Metrics *metrics.Metrics // optional
}

func (cfg *RequestConfig) validate() error {
	if cfg.Symbol == "" {
		return fmt.Errorf("link: request channel symbol must not be empty")
	}
	if !cfg.Resolution.Valid() {
		return fmt.Errorf("link: invalid resolution %q", cfg.Resolution)
	}
	if cfg.PeriodCount <= 0 {
		return fmt.Errorf("link: period count must be positive, got %d", cfg.PeriodCount)
	}
	if cfg.SeriesKind == "" {
		return fmt.Errorf("link: series kind must not be empty")
	}
	return nil
}

// RequestChannel is the synchronous one-request-in-flight exchange with the
// compute service (Channel A). Enqueue never blocks the caller; results land
// in the shared ResultCache.
type RequestChannel struct {
	cfg   RequestConfig
	queue chan PendingRequest
	cache *ResultCache
	loop  *Loop
}

// NewRequestChannel validates cfg eagerly and constructs the channel. The
// worker is not started until Start.
func NewRequestChannel(cfg RequestConfig) (*RequestChannel, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewResultCache()
	}
	c := &RequestChannel{
		cfg:   cfg,
		queue: make(chan PendingRequest, requestQueueCap),
		cache: cache,
	}
	dial := WebSocketDialer(cfg.Endpoint, requestPath, cfg.TOTPSecret)
	c.loop = NewLoop("request-channel", dial, c.runSession)
	if cfg.Metrics != nil {
		c.loop.OnReconnect = func() {
			cfg.Metrics.Reconnects.WithLabelValues("request").Inc()
		}
	}
	return c, nil
}

// Enqueue places a request on the bounded queue. Returns false and logs if
// the queue is full; the newest request is the one dropped. Never blocks.
func (c *RequestChannel) Enqueue(referenceTS time.Time) bool {
	req := PendingRequest{ReferenceTS: referenceTS, EnqueuedAt: time.Now()}
	select {
	case c.queue <- req:
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RequestsEnqueued.Inc()
			c.cfg.Metrics.RequestQueueSaturationPct.Set(
				float64(len(c.queue)) / float64(cap(c.queue)) * 100)
		}
		return true
	default:
		log.Printf("[request-channel] queue full (%d), dropping request for %s",
			requestQueueCap, referenceTS.Format(time.RFC3339))
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RequestsDropped.Inc()
		}
		return false
	}
}

// Snapshot returns a copy of the cached overlay elements.
func (c *RequestChannel) Snapshot() []model.RenderElement {
	return c.cache.Snapshot()
}

// Cache exposes the shared result cache (the scheduler reads its token).
func (c *RequestChannel) Cache() *ResultCache {
	return c.cache
}

// Start launches the channel worker. Idempotent.
func (c *RequestChannel) Start() { c.loop.Start() }

// Stop shuts the channel down within the bounded join timeout.
func (c *RequestChannel) Stop() { c.loop.Stop() }

// IsConnected reports the worker's connection state. Lock-free.
func (c *RequestChannel) IsConnected() bool { return c.loop.IsConnected() }

// runSession services queued requests over one socket. A reply timeout is a
// connection failure, not a missed request: a lock-step exchange left in an
// unanswered state cannot safely accept a further send, so the whole session
// is torn down and the socket recreated.
func (c *RequestChannel) runSession(ctx context.Context, sock Socket) error {
	for {
		req, ok := c.dequeue(ctx)
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		msg := model.OverlayRequest{
			CorrelationID: uuid.NewString(),
			Symbol:        c.cfg.Symbol,
			SentAt:        time.Now().UTC(),
			ReferenceTS:   req.ReferenceTS,
			SeriesKind:    c.cfg.SeriesKind,
			Resolution:    c.cfg.Resolution,
			PeriodCount:   c.cfg.PeriodCount,
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		reqCtx := logger.WithCorrelationID(ctx, msg.CorrelationID)
		start := time.Now()
		if err := sock.Send(data); err != nil {
			return fmt.Errorf("send request: %w", err)
		}

		raw, err := sock.Recv(replyTimeout)
		if err != nil {
			if err == ErrRecvTimeout && c.cfg.Metrics != nil {
				c.cfg.Metrics.ReplyTimeouts.Inc()
			}
			return fmt.Errorf("await reply: %w", err)
		}

		var resp model.OverlayResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			// A garbled reply means the lock-step exchange is out of sync;
			// recreate the socket like a timeout.
			return fmt.Errorf("decode reply: %w", err)
		}

		c.cache.Replace(resp.Elements, resp.DetectedTS)
		rtt := time.Since(start)
		slog.Debug("overlay exchange complete",
			append([]any{slog.Duration("rtt", rtt), slog.Int("elements", len(resp.Elements))},
				logger.LogWithCorrelation(reqCtx)...)...)
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RequestRTT.Observe(rtt.Seconds())
			c.cfg.Metrics.CacheUpdates.Inc()
		}
		if c.cfg.OnUpdate != nil {
			c.cfg.OnUpdate()
		}
	}
}

// dequeue waits up to the poll interval for the next request so cancellation
// is observed at least every 100ms.
func (c *RequestChannel) dequeue(ctx context.Context) (PendingRequest, bool) {
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return PendingRequest{}, false
	case req := <-c.queue:
		return req, true
	case <-timer.C:
		return PendingRequest{}, false
	}
}
