// Package link implements the three-channel communication layer between the
// chart overlay client and the remote compute service: a request/reply
// channel, a fire-and-forget push channel, and a reactive reply channel.
// Each channel runs one background worker that exclusively owns its socket
// and reconnects with a fixed cooldown after any failure.
package link

import (
	"fmt"
	"strconv"
)

// Endpoint identifies one channel's remote listener. Immutable per channel
// instance; a parameter change tears down and reconstructs the channel.
type Endpoint struct {
	Host string
	Port int
}

// NewEndpoint validates host and port eagerly. Construction fails fast on
// invalid values rather than deferring failure to first use.
func NewEndpoint(host string, port int) (Endpoint, error) {
	if host == "" {
		return Endpoint{}, fmt.Errorf("link: endpoint host must not be empty")
	}
	if port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("link: endpoint port %d out of range", port)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// URL returns the websocket URL for the given channel path.
func (e Endpoint) URL(path string) string {
	return "ws://" + e.Host + ":" + strconv.Itoa(e.Port) + path
}

func (e Endpoint) String() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}
