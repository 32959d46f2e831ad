package link

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"
)

// Errors returned by Socket implementations.
var (
	// ErrRecvTimeout signals that no message arrived within the poll window.
	// For the reply channel this is a normal idle condition; for the request
	// channel a timeout after a send invalidates the socket.
	ErrRecvTimeout = errors.New("link: recv timed out")

	// ErrSocketClosed signals that the socket was closed underneath a call.
	ErrSocketClosed = errors.New("link: socket closed")
)

const (
	sendTimeout      = 5 * time.Second
	handshakeTimeout = 5 * time.Second
	recvBufferSize   = 64
)

// Socket is a message-oriented connection owned by exactly one worker
// goroutine. Implementations are not safe for concurrent use.
type Socket interface {
	// Send writes one message. A failed send leaves the socket unusable.
	Send(data []byte) error
	// Recv returns the next inbound message, ErrRecvTimeout after the given
	// wait, or a connection error.
	Recv(timeout time.Duration) ([]byte, error)
	// Close releases the connection. Safe to call multiple times.
	Close() error
}

// Dialer constructs a fresh Socket. The reconnect loop calls it on every
// transition into the connecting state; sockets are never reused.
type Dialer func() (Socket, error)

// WebSocketDialer returns a Dialer for the endpoint's channel path. When
// totpSecret is non-empty, each dial attaches a one-time code header that the
// service validates before upgrading.
func WebSocketDialer(ep Endpoint, path, totpSecret string) Dialer {
	url := ep.URL(path)
	return func() (Socket, error) {
		header := http.Header{}
		if totpSecret != "" {
			code, err := totp.GenerateCode(totpSecret, time.Now())
			if err != nil {
				return nil, err
			}
			header.Set("X-Link-Code", code)
		}

		dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
		conn, resp, err := dialer.Dial(url, header)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
			}
			return nil, err
		}
		return newWSSocket(conn), nil
	}
}

// wsSocket wraps a websocket connection. A dedicated reader pump feeds recvCh
// so that Recv can wait with a bounded timeout without poisoning the
// connection's read deadline. The pump belongs to the socket and dies with it,
// preserving the one-worker-per-socket discipline.
type wsSocket struct {
	conn    *websocket.Conn
	recvCh  chan []byte
	readErr chan error
	done    chan struct{}
	once    sync.Once
}

func newWSSocket(conn *websocket.Conn) *wsSocket {
	s := &wsSocket{
		conn:    conn,
		recvCh:  make(chan []byte, recvBufferSize),
		readErr: make(chan error, 1),
		done:    make(chan struct{}),
	}
	go s.readPump()
	return s
}

func (s *wsSocket) readPump() {
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case s.readErr <- err:
			default:
			}
			return
		}
		select {
		case s.recvCh <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *wsSocket) Send(data []byte) error {
	select {
	case <-s.done:
		return ErrSocketClosed
	default:
	}
	s.conn.SetWriteDeadline(time.Now().Add(sendTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) Recv(timeout time.Duration) ([]byte, error) {
	// Drain buffered messages before reporting a pump error so that no
	// delivered message is lost.
	select {
	case msg := <-s.recvCh:
		return msg, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-s.recvCh:
		return msg, nil
	case err := <-s.readErr:
		return nil, err
	case <-s.done:
		return nil, ErrSocketClosed
	case <-timer.C:
		return nil, ErrRecvTimeout
	}
}

func (s *wsSocket) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
