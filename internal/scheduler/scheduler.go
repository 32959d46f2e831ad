// Package scheduler decides when to issue overlay requests and infers their
// success by watching the result cache's freshness token, since the wire
// protocol carries no dedicated acknowledgment.
package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"chartlinkv1/internal/metrics"
)

const (
	defaultSettleDelay   = 100 * time.Millisecond
	defaultProbeInterval = 300 * time.Millisecond
	defaultMaxAttempts   = 3
)

// Requester enqueues an overlay request for a reference timestamp.
// link.RequestChannel satisfies it.
type Requester interface {
	Enqueue(referenceTS time.Time) bool
}

// TokenSource exposes the cache's freshness token. link.ResultCache
// satisfies it.
type TokenSource interface {
	Token() int64
}

// Config configures a Scheduler. Zero durations and counts take the
// defaults (100ms settle, 300ms probes, 3 attempts).
type Config struct {
	Requests      Requester
	Tokens        TokenSource
	SettleDelay   time.Duration
	ProbeInterval time.Duration
	MaxAttempts   int
	Metrics       *metrics.Metrics // optional
}

// retrySession tracks one observation point's request/probe cycle. At most
// one session is active; a new observation key cancels and replaces it.
type retrySession struct {
	key      string
	refTS    time.Time
	baseline int64
	attempts int
}

// Scheduler issues a delayed request whenever the observation point changes
// and probes the freshness token a fixed number of times to infer success.
// Token change is a heuristic signal, not a correlation-id-verified
// acknowledgment: a concurrent unrelated success can be misattributed.
type Scheduler struct {
	cfg Config

	mu    sync.Mutex
	cur   *retrySession
	timer *time.Timer
	gen   uint64 // bumping it invalidates any pending timer callback
}

// New validates cfg and returns a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Requests == nil {
		return nil, fmt.Errorf("scheduler: requester must not be nil")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("scheduler: token source must not be nil")
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = defaultProbeInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &Scheduler{cfg: cfg}, nil
}

// Observe starts a retry session for a new observation point. Any pending
// timer from a prior point is cancelled first: reschedule supersedes, never
// stacks. The initial send happens after a short settle delay so the push
// channel has a chance to have already delivered fresh data for this point.
func (s *Scheduler) Observe(observationKey string, referenceTS time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTimerLocked()
	s.gen++
	gen := s.gen

	s.cur = &retrySession{
		key:      observationKey,
		refTS:    referenceTS,
		baseline: s.cfg.Tokens.Token(),
	}
	s.timer = time.AfterFunc(s.cfg.SettleDelay, func() {
		s.initialSend(gen)
	})
}

// Session returns the active observation key and attempt count, or ("", 0)
// when no session is active.
func (s *Scheduler) Session() (key string, attempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return "", 0
	}
	return s.cur.key, s.cur.attempts
}

// Stop cancels any pending session. The scheduler can be reused afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerLocked()
	s.gen++
	s.cur = nil
}

func (s *Scheduler) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) initialSend(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.cur == nil {
		return // superseded
	}
	s.cfg.Requests.Enqueue(s.cur.refTS)
	s.timer = time.AfterFunc(s.cfg.ProbeInterval, func() {
		s.probe(gen)
	})
}

// probe checks the freshness token against the session baseline. A change
// means success; an unchanged token on a non-final probe re-issues the
// request and reschedules; an unchanged token on the final probe abandons
// the session silently (logged, never surfaced as an error).
func (s *Scheduler) probe(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.cur == nil {
		return // superseded
	}

	sess := s.cur
	sess.attempts++

	if s.cfg.Tokens.Token() != sess.baseline {
		log.Printf("[scheduler] %s: fresh result observed on probe %d", sess.key, sess.attempts)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RetrySuccesses.Inc()
		}
		s.cur = nil
		return
	}

	if sess.attempts >= s.cfg.MaxAttempts {
		log.Printf("[scheduler] %s: no fresh result after %d probes, giving up", sess.key, sess.attempts)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RetryExhausted.Inc()
		}
		s.cur = nil
		return
	}

	s.cfg.Requests.Enqueue(sess.refTS)
	s.timer = time.AfterFunc(s.cfg.ProbeInterval, func() {
		s.probe(gen)
	})
}
