package link

import (
	"fmt"
	"log"
	"sync"
	"time"

	"chartlinkv1/internal/metrics"
)

const supervisorInterval = 5 * time.Second

// Channel is the lifecycle surface the supervisor manages. All three channel
// kinds satisfy it.
type Channel interface {
	Start()
	Stop()
	IsConnected() bool
}

// ChannelFactory builds a fresh, not-yet-started channel instance.
type ChannelFactory func() (Channel, error)

type supervised struct {
	name    string
	factory ChannelFactory
	ch      Channel
}

// Supervisor is the coarse outer self-healing layer: it polls each channel's
// health on a fixed interval and, on a negative result, performs a full
// teardown-and-reconstruct of that channel. This is distinct from the
// channel's own internal reconnect loop, which only recreates the socket.
type Supervisor struct {
	interval time.Duration
	metrics  *metrics.Metrics // optional

	mu      sync.Mutex
	entries []*supervised

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	done      chan struct{}
}

// NewSupervisor creates a supervisor with the given poll interval
// (0 = the 5s default).
func NewSupervisor(interval time.Duration, m *metrics.Metrics) *Supervisor {
	if interval <= 0 {
		interval = supervisorInterval
	}
	return &Supervisor{
		interval: interval,
		metrics:  m,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Register builds the initial channel instance through factory, starts it,
// and places it under supervision.
func (s *Supervisor) Register(name string, factory ChannelFactory) error {
	ch, err := factory()
	if err != nil {
		return fmt.Errorf("supervisor: build %s: %w", name, err)
	}
	ch.Start()

	s.mu.Lock()
	s.entries = append(s.entries, &supervised{name: name, factory: factory, ch: ch})
	s.mu.Unlock()
	return nil
}

// Channel returns the current instance registered under name, or nil.
// Callers must re-fetch after a rebuild rather than holding instances.
func (s *Supervisor) Channel(name string) Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.name == name {
			return e.ch
		}
	}
	return nil
}

// Start launches the polling loop. Idempotent.
func (s *Supervisor) Start() {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		go s.run()
	})
}

func (s *Supervisor) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *Supervisor) poll() {
	s.mu.Lock()
	entries := make([]*supervised, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	for _, e := range entries {
		connected := e.ch.IsConnected()
		if s.metrics != nil {
			v := 0.0
			if connected {
				v = 1
			}
			s.metrics.Connected.WithLabelValues(e.name).Set(v)
		}
		if connected {
			continue
		}
		log.Printf("[supervisor] %s unhealthy, rebuilding", e.name)
		s.rebuild(e)
	}
}

func (s *Supervisor) rebuild(e *supervised) {
	e.ch.Stop()
	fresh, err := e.factory()
	if err != nil {
		// Keep the stopped instance registered; the next poll retries.
		log.Printf("[supervisor] rebuild %s failed: %v", e.name, err)
		return
	}
	fresh.Start()

	s.mu.Lock()
	e.ch = fresh
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SupervisorRebuilds.WithLabelValues(e.name).Inc()
	}
}

// Stop halts polling and stops all supervised channels. Safe to call
// multiple times.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}

	s.mu.Lock()
	entries := make([]*supervised, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	for _, e := range entries {
		e.ch.Stop()
	}
}
