package overlay

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"chartlinkv1/internal/history"
	"chartlinkv1/internal/link"
	"chartlinkv1/internal/metrics"
	"chartlinkv1/internal/model"
	"chartlinkv1/internal/scheduler"
)

// Channel names under supervision.
const (
	chanRequest = "request"
	chanPush    = "push"
	chanReply   = "reply"
)

// SessionConfig fixes a session's series identity and endpoints. Changing
// any of these means shutting the session down and constructing a new one —
// channels are never reconfigured in place.
type SessionConfig struct {
	RequestEndpoint link.Endpoint
	PushEndpoint    link.Endpoint
	ReplyEndpoint   link.Endpoint

	Symbol      string
	Resolution  model.Resolution
	PeriodCount int
	SeriesKind  string

	TOTPSecret      string
	HistoryCapacity int

	// OnRedraw runs on the UI queue after each overlay update. Optional.
	OnRedraw func()

	// Report receives each overlay snapshot after the redraw. Optional.
	Report ReportSink

	SupervisorInterval time.Duration // 0 = 5s default
	Metrics            *metrics.Metrics
	Health             *metrics.HealthStatus // optional
}

// Session is one active overlay instance: three supervised channels, the
// shared result cache, the request scheduler, and the local bar history.
type Session struct {
	cfg SessionConfig

	cache   *link.ResultCache
	history *history.History
	ui      *scheduler.UIQueue
	sched   *scheduler.Scheduler
	sup     *link.Supervisor

	mu          sync.Mutex
	initialized bool
}

// NewSession prepares a session. No sockets are opened until Init.
func NewSession(cfg SessionConfig) *Session {
	return &Session{cfg: cfg}
}

// Init builds and starts the channels, the supervisor, the UI queue, and the
// scheduler. Invalid configuration fails here, fast.
func (s *Session) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return fmt.Errorf("overlay: session already initialized")
	}

	s.cache = link.NewResultCache()
	s.history = history.New(s.cfg.Symbol, s.cfg.Resolution, s.cfg.PeriodCount, s.cfg.HistoryCapacity)
	s.ui = scheduler.NewUIQueue(0)
	s.sup = link.NewSupervisor(s.cfg.SupervisorInterval, s.cfg.Metrics)

	sessionKey := s.cfg.Symbol + ":" + string(s.cfg.Resolution) + ":" + strconv.Itoa(s.cfg.PeriodCount)
	onUpdate := func() {
		if s.cfg.Health != nil {
			s.cfg.Health.SetLastCacheUpdate(time.Now())
		}
		if s.cfg.OnRedraw == nil && s.cfg.Report == nil {
			return
		}
		s.ui.Post(func() {
			if s.cfg.OnRedraw != nil {
				s.cfg.OnRedraw()
			}
			if s.cfg.Report != nil {
				s.cfg.Report.ConsumeOverlay(sessionKey, s.cache.Snapshot())
			}
		})
	}

	if err := s.sup.Register(chanRequest, func() (link.Channel, error) {
		return link.NewRequestChannel(link.RequestConfig{
			Endpoint:    s.cfg.RequestEndpoint,
			Symbol:      s.cfg.Symbol,
			Resolution:  s.cfg.Resolution,
			PeriodCount: s.cfg.PeriodCount,
			SeriesKind:  s.cfg.SeriesKind,
			TOTPSecret:  s.cfg.TOTPSecret,
			OnUpdate:    onUpdate,
			Cache:       s.cache,
			Metrics:     s.cfg.Metrics,
		})
	}); err != nil {
		return err
	}

	if err := s.sup.Register(chanPush, func() (link.Channel, error) {
		return link.NewPushChannel(link.PushConfig{
			Endpoint:   s.cfg.PushEndpoint,
			TOTPSecret: s.cfg.TOTPSecret,
			Metrics:    s.cfg.Metrics,
		}), nil
	}); err != nil {
		return err
	}

	if err := s.sup.Register(chanReply, func() (link.Channel, error) {
		return link.NewReplyChannel(link.ReplyConfig{
			Endpoint:   s.cfg.ReplyEndpoint,
			Provider:   s.history,
			TOTPSecret: s.cfg.TOTPSecret,
			Metrics:    s.cfg.Metrics,
		})
	}); err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Config{
		Requests: requesterFunc(s.enqueueRequest),
		Tokens:   s.cache,
		Metrics:  s.cfg.Metrics,
	})
	if err != nil {
		return err
	}
	s.sched = sched

	s.ui.Start()
	s.sup.Start()
	s.initialized = true
	return nil
}

// OnObservationChange is called by the host whenever the data point the user
// is looking at changes (live edge or manual step).
func (s *Session) OnObservationChange(observationKey string, referenceTS time.Time) {
	if s.sched != nil {
		s.sched.Observe(observationKey, referenceTS)
	}
}

// OnBarClose is called by the host when a bar completes: it is recorded in
// local history (for pull queries) and pushed to the service best-effort.
func (s *Session) OnBarClose(bar model.Bar) {
	if s.history != nil {
		s.history.Append(bar)
	}
	if s.sup == nil {
		return
	}
	if ch, ok := s.sup.Channel(chanPush).(*link.PushChannel); ok {
		ch.EnqueueBar(bar)
	}
}

// Snapshot returns a copy of the current overlay elements for rendering.
func (s *Session) Snapshot() []model.RenderElement {
	if s.cache == nil {
		return nil
	}
	return s.cache.Snapshot()
}

// History exposes the session's bar history (the reply channel's provider).
func (s *Session) History() *history.History { return s.history }

// State derives the lifecycle state from channel health.
func (s *Session) State() State {
	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()
	if !initialized {
		return StateUninitialized
	}

	for _, name := range []string{chanRequest, chanPush, chanReply} {
		ch := s.sup.Channel(name)
		connected := ch != nil && ch.IsConnected()
		if s.cfg.Health != nil {
			s.cfg.Health.SetChannelConnected(name, connected)
		}
		if !connected {
			return StateDegraded
		}
	}
	return StateReady
}

// Shutdown stops the scheduler, all channels, and the UI queue. Bounded by
// the channels' join timeouts; safe to call multiple times.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.sched.Stop()
	s.sup.Stop()
	s.ui.Stop()
}

// enqueueRequest routes through the supervisor so the scheduler always talks
// to the current request channel instance, even across rebuilds.
func (s *Session) enqueueRequest(referenceTS time.Time) bool {
	ch, ok := s.sup.Channel(chanRequest).(*link.RequestChannel)
	if !ok {
		return false
	}
	return ch.Enqueue(referenceTS)
}

// requesterFunc adapts a function to the scheduler.Requester interface.
type requesterFunc func(referenceTS time.Time) bool

func (f requesterFunc) Enqueue(referenceTS time.Time) bool { return f(referenceTS) }
