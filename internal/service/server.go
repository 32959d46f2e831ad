// Package service implements the remote compute side of the overlay link:
// it answers overlay requests, ingests pushed bars, and pulls missing bars
// back out of connected clients' local histories.
package service

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"chartlinkv1/internal/store/redis"
	"chartlinkv1/internal/store/sqlite"
)

// Config configures the compute service.
type Config struct {
	RequestAddr string // e.g. ":5555"
	PushAddr    string // e.g. ":5556"
	ReplyAddr   string // e.g. ":5557"

	// TOTPSecret enables link authentication when non-empty.
	TOTPSecret string

	Store *sqlite.Store        // durable bar store (required)
	Hot   *redis.BufferedCache // hot cache (optional)
}

// Server hosts the three channel listeners.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	puller   *Puller
	servers  []*http.Server
}

// New validates cfg and constructs the server.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("service: bar store is required")
	}
	if cfg.RequestAddr == "" || cfg.PushAddr == "" || cfg.ReplyAddr == "" {
		return nil, fmt.Errorf("service: all three listen addresses are required")
	}
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		puller: NewPuller(),
	}, nil
}

// Start launches the three listeners, each in its own goroutine.
func (s *Server) Start() {
	s.servers = []*http.Server{
		s.listen(s.cfg.RequestAddr, "/overlay", s.handleOverlay),
		s.listen(s.cfg.PushAddr, "/bars", s.handleIngest),
		s.listen(s.cfg.ReplyAddr, "/pull", s.handlePull),
	}
}

func (s *Server) listen(addr, path string, handler http.HandlerFunc) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(path, handler)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("[service] listening on %s%s", addr, path)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[service] listener %s error: %v", addr, err)
		}
	}()
	return srv
}

// Stop shuts down all listeners within ctx's deadline.
func (s *Server) Stop(ctx context.Context) {
	for _, srv := range s.servers {
		srv.Shutdown(ctx)
	}
}

// authorize validates the one-time code header when a shared secret is
// configured; otherwise every connection is accepted.
func (s *Server) authorize(r *http.Request) bool {
	if s.cfg.TOTPSecret == "" {
		return true
	}
	code := r.Header.Get("X-Link-Code")
	return code != "" && totp.Validate(code, s.cfg.TOTPSecret)
}

// upgrade authorizes and upgrades an HTTP request, or writes the failure.
func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	if !s.authorize(r) {
		log.Printf("[service] rejected unauthorized connection from %s", r.RemoteAddr)
		http.Error(w, "invalid link code", http.StatusUnauthorized)
		return nil, false
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[service] upgrade failed for %s: %v", r.RemoteAddr, err)
		return nil, false
	}
	return conn, true
}

const connReadLimit = 1 << 20

func configureConn(conn *websocket.Conn) {
	conn.SetReadLimit(connReadLimit)
	conn.SetReadDeadline(time.Time{})
}
