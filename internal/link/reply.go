package link

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"chartlinkv1/internal/metrics"
	"chartlinkv1/internal/model"
)

const replyPath = "/pull"

// HistoryProvider answers pull queries against the caller's bar history. The
// implementation must be safe under concurrent access from the reply worker
// while the caller mutates it from its own thread, and must return an empty
// (not failed) result on any parameter mismatch.
type HistoryProvider interface {
	Query(req model.PullRequest) ([]model.Bar, error)
}

// ReplyConfig configures a ReplyChannel.
type ReplyConfig struct {
	Endpoint   Endpoint
	Provider   HistoryProvider
	TOTPSecret string
	Metrics    *metrics.Metrics // optional
}

// ReplyChannel answers the compute service's pull queries out of the local
// bar history (Channel C). The lock-step contract requires exactly one reply
// per request: a processing fault never skips the send — an error-annotated
// empty reply is substituted instead, because a missed round-trip corrupts
// the exchange for every subsequent request.
type ReplyChannel struct {
	cfg  ReplyConfig
	loop *Loop
}

// NewReplyChannel validates cfg eagerly and constructs the channel.
func NewReplyChannel(cfg ReplyConfig) (*ReplyChannel, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("link: reply channel requires a history provider")
	}
	c := &ReplyChannel{cfg: cfg}
	dial := WebSocketDialer(cfg.Endpoint, replyPath, cfg.TOTPSecret)
	c.loop = NewLoop("reply-channel", dial, c.runSession)
	if cfg.Metrics != nil {
		c.loop.OnReconnect = func() {
			cfg.Metrics.Reconnects.WithLabelValues("reply").Inc()
		}
	}
	return c, nil
}

// Start launches the channel worker. Idempotent.
func (c *ReplyChannel) Start() { c.loop.Start() }

// Stop shuts the channel down within the bounded join timeout.
func (c *ReplyChannel) Stop() { c.loop.Stop() }

// IsConnected reports the worker's connection state. Lock-free.
func (c *ReplyChannel) IsConnected() bool { return c.loop.IsConnected() }

// runSession receives pull requests with a short poll and always sends
// exactly one reply per request.
func (c *ReplyChannel) runSession(ctx context.Context, sock Socket) error {
	for {
		raw, err := sock.Recv(pollInterval)
		if err == ErrRecvTimeout {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("recv pull request: %w", err)
		}

		resp := c.buildReply(raw)
		data, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("marshal pull reply: %w", err)
		}
		if err := sock.Send(data); err != nil {
			return fmt.Errorf("send pull reply: %w", err)
		}
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RepliesServed.Inc()
			if resp.DebugInfo != "" {
				c.cfg.Metrics.ReplyErrors.Inc()
			}
		}
	}
}

// buildReply turns a raw pull request into a reply, recovering from any
// processing fault (decode error, provider error, provider panic) by
// substituting an error-annotated empty reply.
func (c *ReplyChannel) buildReply(raw []byte) (resp model.PullResponse) {
	var req model.PullRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("[reply-channel] bad pull request: %v", err)
		return model.PullResponse{DebugInfo: "bad request: " + err.Error()}
	}
	resp.RequestID = req.RequestID

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[reply-channel] provider panic for %s: %v", req.RequestID, r)
			resp = model.PullResponse{
				RequestID: req.RequestID,
				DebugInfo: fmt.Sprintf("provider panic: %v", r),
			}
		}
	}()

	bars, err := c.cfg.Provider.Query(req)
	if err != nil {
		log.Printf("[reply-channel] provider error for %s: %v", req.RequestID, err)
		resp.DebugInfo = "provider error: " + err.Error()
		return resp
	}
	resp.Bars = bars
	return resp
}
