package link

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoServer upgrades and echoes every message back.
func echoServer(t *testing.T) (*httptest.Server, Endpoint) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(ts.URL, "http://"))
	if err != nil {
		t.Fatalf("parse test server address: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return ts, Endpoint{Host: host, Port: port}
}

func TestWebSocketDialerSendRecv(t *testing.T) {
	_, ep := echoServer(t)

	sock, err := WebSocketDialer(ep, "/", "")()
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sock.Close()

	if err := sock.Send([]byte("ping-1")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msg, err := sock.Recv(2 * time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(msg) != "ping-1" {
		t.Errorf("echoed %q, want ping-1", msg)
	}
}

func TestSocketRecvTimesOutWhenIdle(t *testing.T) {
	_, ep := echoServer(t)

	sock, err := WebSocketDialer(ep, "/", "")()
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sock.Close()

	start := time.Now()
	_, err = sock.Recv(50 * time.Millisecond)
	if err != ErrRecvTimeout {
		t.Fatalf("err = %v, want ErrRecvTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v, want ~50ms", elapsed)
	}

	// A timed-out idle Recv does not poison the socket: the next exchange
	// still works.
	if err := sock.Send([]byte("after-timeout")); err != nil {
		t.Fatalf("Send after timeout: %v", err)
	}
	msg, err := sock.Recv(2 * time.Second)
	if err != nil {
		t.Fatalf("Recv after timeout: %v", err)
	}
	if string(msg) != "after-timeout" {
		t.Errorf("echoed %q, want after-timeout", msg)
	}
}

func TestSocketCloseIsIdempotentAndFailsSends(t *testing.T) {
	_, ep := echoServer(t)

	sock, err := WebSocketDialer(ep, "/", "")()
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	sock.Close()
	sock.Close()

	if err := sock.Send([]byte("late")); err == nil {
		t.Error("Send on closed socket should fail")
	}
	if _, err := sock.Recv(50 * time.Millisecond); err == nil {
		t.Error("Recv on closed socket should fail")
	}
}

func TestDialerFailsFastOnClosedEndpoint(t *testing.T) {
	ts, ep := echoServer(t)
	ts.Close()

	if _, err := WebSocketDialer(ep, "/", "")(); err == nil {
		t.Error("expected dial error against closed listener")
	}
}
