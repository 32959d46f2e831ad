package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the overlay link.
type Metrics struct {
	// Channel lifecycle
	Reconnects         *prometheus.CounterVec // labels: channel
	Connected          *prometheus.GaugeVec   // labels: channel (0/1)
	SupervisorRebuilds *prometheus.CounterVec // labels: channel

	// Channel A
	RequestsEnqueued prometheus.Counter
	RequestsDropped  prometheus.Counter
	RequestRTT       prometheus.Histogram
	ReplyTimeouts    prometheus.Counter
	CacheUpdates     prometheus.Counter

	// Channel B
	PushesSent    prometheus.Counter
	PushSendFails prometheus.Counter

	// Channel C
	RepliesServed prometheus.Counter
	ReplyErrors   prometheus.Counter

	// Scheduler
	RetrySuccesses prometheus.Counter
	RetryExhausted prometheus.Counter

	// Queue saturation (Channel A only; Channel B is unbounded)
	RequestQueueSaturationPct prometheus.Gauge
}

// New registers and returns all Prometheus metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in binaries; tests use a private registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartlink_reconnects_total",
			Help: "Socket reconnection attempts per channel",
		}, []string{"channel"}),
		Connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chartlink_connected",
			Help: "Channel connection state (0=down, 1=up)",
		}, []string{"channel"}),
		SupervisorRebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartlink_supervisor_rebuilds_total",
			Help: "Full channel teardown/rebuilds forced by the supervisor",
		}, []string{"channel"}),

		RequestsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartlink_requests_enqueued_total",
			Help: "Overlay requests accepted onto the request queue",
		}),
		RequestsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartlink_requests_dropped_total",
			Help: "Overlay requests dropped because the queue was full",
		}),
		RequestRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartlink_request_rtt_seconds",
			Help:    "Round-trip latency of overlay request/reply exchanges",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		ReplyTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartlink_reply_timeouts_total",
			Help: "Overlay replies that timed out (treated as connection loss)",
		}),
		CacheUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartlink_cache_updates_total",
			Help: "Atomic result-cache replacements",
		}),

		PushesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartlink_pushes_sent_total",
			Help: "Fire-and-forget bar pushes sent",
		}),
		PushSendFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartlink_push_send_fails_total",
			Help: "Bar push sends that failed (message lost by design)",
		}),

		RepliesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartlink_replies_served_total",
			Help: "Pull replies sent on the reply channel",
		}),
		ReplyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartlink_reply_errors_total",
			Help: "Pull replies that were error-annotated substitutes",
		}),

		RetrySuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartlink_retry_successes_total",
			Help: "Retry sessions that observed a freshness-token change",
		}),
		RetryExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartlink_retry_exhausted_total",
			Help: "Retry sessions abandoned after the final probe",
		}),

		RequestQueueSaturationPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartlink_request_queue_saturation_pct",
			Help: "Request queue fill percentage (len/cap * 100)",
		}),
	}

	reg.MustRegister(
		m.Reconnects,
		m.Connected,
		m.SupervisorRebuilds,
		m.RequestsEnqueued,
		m.RequestsDropped,
		m.RequestRTT,
		m.ReplyTimeouts,
		m.CacheUpdates,
		m.PushesSent,
		m.PushSendFails,
		m.RepliesServed,
		m.ReplyErrors,
		m.RetrySuccesses,
		m.RetryExhausted,
		m.RequestQueueSaturationPct,
	)

	return m
}

// HealthStatus represents link health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	RequestConnected bool      `json:"request_connected"`
	PushConnected    bool      `json:"push_connected"`
	ReplyConnected   bool      `json:"reply_connected"`
	LastCacheUpdate  time.Time `json:"last_cache_update"`
	StartedAt        time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetChannelConnected(channel string, v bool) {
	h.mu.Lock()
	switch channel {
	case "request":
		h.RequestConnected = v
	case "push":
		h.PushConnected = v
	case "reply":
		h.ReplyConnected = v
	}
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCacheUpdate(t time.Time) {
	h.mu.Lock()
	h.LastCacheUpdate = t
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.RequestConnected || !h.PushConnected || !h.ReplyConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status           string `json:"status"`
		Uptime           string `json:"uptime"`
		RequestConnected bool   `json:"request_connected"`
		PushConnected    bool   `json:"push_connected"`
		ReplyConnected   bool   `json:"reply_connected"`
		LastCacheUpdate  string `json:"last_cache_update"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		RequestConnected: h.RequestConnected,
		PushConnected:    h.PushConnected,
		ReplyConnected:   h.ReplyConnected,
		LastCacheUpdate:  h.LastCacheUpdate.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
