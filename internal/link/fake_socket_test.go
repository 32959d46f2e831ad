package link

import (
	"sync"
	"time"
)

// fakeSocket is an in-memory Socket for worker-loop tests.
type fakeSocket struct {
	mu       sync.Mutex
	sent     [][]byte
	sendErrs map[int]error // 1-based send index → error
	closed   bool

	// onSend, when set, runs after a successful send (e.g. to queue a reply).
	onSend func(data []byte)

	recvQ   chan []byte
	recvErr chan error
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		recvQ:   make(chan []byte, 16),
		recvErr: make(chan error, 1),
	}
}

func (s *fakeSocket) Send(data []byte) error {
	s.mu.Lock()
	n := len(s.sent) + 1
	if err, ok := s.sendErrs[n]; ok {
		s.mu.Unlock()
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.sent = append(s.sent, cp)
	onSend := s.onSend
	s.mu.Unlock()

	if onSend != nil {
		onSend(cp)
	}
	return nil
}

func (s *fakeSocket) Recv(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-s.recvQ:
		return msg, nil
	case err := <-s.recvErr:
		return nil, err
	case <-timer.C:
		return nil, ErrRecvTimeout
	}
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSocket) sentAt(i int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[i]
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
