// Package overlay ties the three channels, the scheduler, and the bar
// history into one chart overlay session with an explicit lifecycle the host
// UI calls into — no inheritance from a host base class required.
package overlay

// State is the session lifecycle state exposed to the host.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Lifecycle is the host-facing surface of an overlay session.
type Lifecycle interface {
	// Init constructs and starts the channels. Construction errors (bad
	// endpoints, bad series parameters) surface here, never later.
	Init() error
	// State reports Ready when all channels are connected, Degraded while
	// any is reconnecting, Uninitialized before Init.
	State() State
	// Shutdown stops everything within the channels' bounded join timeouts.
	Shutdown()
}
