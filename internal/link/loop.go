package link

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// reconnectCooldown separates consecutive connection attempts.
	reconnectCooldown = 1 * time.Second
	// pollInterval bounds every internal dequeue/receive wait so the worker
	// re-checks cancellation at least this often.
	pollInterval = 100 * time.Millisecond
	// joinTimeout bounds how long Stop waits for the worker to exit.
	joinTimeout = 5 * time.Second
)

// ConnState is the reconnect loop's connection state.
type ConnState int32

const (
	StateDisconnected ConnState = 0
	StateConnecting   ConnState = 1
	StateConnected    ConnState = 2
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// SessionFunc runs one connected session over a freshly dialed socket. It
// returns when the session fails or ctx is cancelled; a non-nil error forces
// socket recreation after the cooldown. The loop closes the socket.
type SessionFunc func(ctx context.Context, sock Socket) error

// Loop is the shared resilient worker pattern behind all three channels. One
// background goroutine exclusively owns the socket: it dials, runs the
// channel's session, and on any failure recreates the socket after a fixed
// cooldown. The loop exits only on Stop.
type Loop struct {
	name    string
	dial    Dialer
	session SessionFunc

	state atomic.Int32

	// OnReconnect is called before each dial attempt (for metrics). Optional.
	OnReconnect func()

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLoop creates a reconnect loop. name appears in log lines.
func NewLoop(name string, dial Dialer, session SessionFunc) *Loop {
	return &Loop{
		name:    name,
		dial:    dial,
		session: session,
		done:    make(chan struct{}),
	}
}

// Start launches the worker goroutine. A second call is a no-op with a log
// line, not an error.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		log.Printf("[%s] already started, ignoring Start", l.name)
		return
	}
	l.started = true

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go l.run(ctx)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	defer l.state.Store(int32(StateDisconnected))

	for {
		if ctx.Err() != nil {
			return
		}

		l.state.Store(int32(StateConnecting))
		if l.OnReconnect != nil {
			l.OnReconnect()
		}
		sock, err := l.dial()
		if err != nil {
			l.state.Store(int32(StateDisconnected))
			log.Printf("[%s] connect failed: %v", l.name, err)
			if !sleepCtx(ctx, reconnectCooldown) {
				return
			}
			continue
		}

		l.state.Store(int32(StateConnected))
		log.Printf("[%s] connected", l.name)

		err = l.session(ctx, sock)
		l.state.Store(int32(StateDisconnected))
		sock.Close()

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("[%s] session ended: %v", l.name, err)
		}
		if !sleepCtx(ctx, reconnectCooldown) {
			return
		}
	}
}

// IsConnected reports whether a session is currently established. Lock-free.
func (l *Loop) IsConnected() bool {
	return ConnState(l.state.Load()) == StateConnected
}

// State returns the current connection state. Lock-free.
func (l *Loop) State() ConnState {
	return ConnState(l.state.Load())
}

// Stop signals cancellation and joins the worker with a bounded timeout.
// Safe to call multiple times; never blocks longer than joinTimeout.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	if !l.stopped {
		l.stopped = true
		l.cancel()
	}
	l.mu.Unlock()

	select {
	case <-l.done:
	case <-time.After(joinTimeout):
		log.Printf("[%s] worker did not exit within %s, proceeding", l.name, joinTimeout)
	}
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
