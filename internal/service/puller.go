package service

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chartlinkv1/internal/model"
)

const pullTimeout = 5 * time.Second

// pullClient is one connected reply-channel peer. The exchange is lock-step:
// the mutex serializes request/reply round-trips on the connection.
type pullClient struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
}

func (c *pullClient) markClosed() {
	c.once.Do(func() { close(c.closed) })
}

// Puller tracks connected reply-channel clients and issues pull queries
// against their local bar histories.
type Puller struct {
	mu      sync.Mutex
	clients []*pullClient
}

// NewPuller returns an empty puller.
func NewPuller() *Puller {
	return &Puller{}
}

// ClientCount returns the number of connected pull clients.
func (p *Puller) ClientCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// PullBars sends a pull request to one connected client and awaits its reply.
// The request id is filled in here; the reply must echo it.
func (p *Puller) PullBars(req model.PullRequest) ([]model.Bar, error) {
	client := p.pick()
	if client == nil {
		return nil, fmt.Errorf("puller: no clients connected")
	}
	req.RequestID = uuid.NewString()

	client.mu.Lock()
	defer client.mu.Unlock()

	client.conn.SetWriteDeadline(time.Now().Add(pullTimeout))
	if err := client.conn.WriteJSON(req); err != nil {
		p.drop(client)
		return nil, fmt.Errorf("puller: send: %w", err)
	}

	client.conn.SetReadDeadline(time.Now().Add(pullTimeout))
	var resp model.PullResponse
	if err := client.conn.ReadJSON(&resp); err != nil {
		// A missed round-trip invalidates the lock-step connection.
		p.drop(client)
		return nil, fmt.Errorf("puller: await reply: %w", err)
	}
	client.conn.SetReadDeadline(time.Time{})

	if resp.RequestID != req.RequestID {
		p.drop(client)
		return nil, fmt.Errorf("puller: reply id %q does not match request %q", resp.RequestID, req.RequestID)
	}
	if resp.DebugInfo != "" {
		log.Printf("[puller] client reported: %s", resp.DebugInfo)
	}
	return resp.Bars, nil
}

func (p *Puller) pick() *pullClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.clients) == 0 {
		return nil
	}
	return p.clients[0]
}

func (p *Puller) register(conn *websocket.Conn) *pullClient {
	client := &pullClient{conn: conn, closed: make(chan struct{})}
	p.mu.Lock()
	p.clients = append(p.clients, client)
	n := len(p.clients)
	p.mu.Unlock()
	log.Printf("[puller] client registered (%d total)", n)
	return client
}

func (p *Puller) drop(client *pullClient) {
	client.markClosed()
	p.mu.Lock()
	for i, c := range p.clients {
		if c == client {
			p.clients = append(p.clients[:i], p.clients[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
}

// handlePull services Channel C's server side: the connection is parked with
// the puller, which drives all traffic on it.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer conn.Close()
	configureConn(conn)

	client := s.puller.register(conn)
	defer s.puller.drop(client)

	// Hold the connection until the puller drops it or the peer goes away.
	// Pings double as liveness checks since the puller owns all reads.
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-client.closed:
			return
		case <-ticker.C:
			client.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			client.mu.Unlock()
			if err != nil {
				log.Printf("[puller] client gone: %v", err)
				return
			}
		}
	}
}
