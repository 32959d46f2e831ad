package service

import (
	"testing"
	"time"

	"chartlinkv1/internal/model"
)

func TestPullBarsWithoutClients(t *testing.T) {
	p := NewPuller()
	if p.ClientCount() != 0 {
		t.Fatalf("ClientCount = %d, want 0", p.ClientCount())
	}
	if _, err := p.PullBars(model.PullRequest{Symbol: "NIFTY"}); err == nil {
		t.Error("expected error with no connected clients")
	}
}

func TestPullBarsRoundTrip(t *testing.T) {
	s := newTestServer(t, "")
	conn, _, _ := dialWS(t, s.handlePull, nil)
	if conn == nil {
		t.Fatal("dial failed")
	}

	// The client side of the exchange: echo the request id back with bars.
	go func() {
		var req model.PullRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		conn.WriteJSON(model.PullResponse{
			RequestID: req.RequestID,
			Bars: []model.Bar{{
				Symbol:      req.Symbol,
				Resolution:  req.Resolution,
				PeriodCount: req.PeriodCount,
				CloseTime:   time.Unix(60, 0).UTC(),
				Close:       100,
			}},
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.puller.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.puller.ClientCount() != 1 {
		t.Fatal("pull client never registered")
	}

	bars, err := s.puller.PullBars(model.PullRequest{
		StartTime:   time.Unix(0, 0).UTC(),
		EndTime:     time.Unix(600, 0).UTC(),
		Symbol:      "NIFTY",
		Resolution:  model.ResolutionMinute,
		PeriodCount: 1,
	})
	if err != nil {
		t.Fatalf("PullBars: %v", err)
	}
	if len(bars) != 1 || bars[0].Close != 100 {
		t.Errorf("unexpected pulled bars: %+v", bars)
	}
}

// A reply carrying the wrong request id invalidates the lock-step connection:
// the client is dropped, not trusted for the next exchange.
func TestPullBarsDropsClientOnIDMismatch(t *testing.T) {
	s := newTestServer(t, "")
	conn, _, _ := dialWS(t, s.handlePull, nil)
	if conn == nil {
		t.Fatal("dial failed")
	}

	go func() {
		var req model.PullRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		conn.WriteJSON(model.PullResponse{RequestID: "stale-id"})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.puller.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := s.puller.PullBars(model.PullRequest{Symbol: "NIFTY"}); err == nil {
		t.Fatal("expected error on id mismatch")
	}
	if got := s.puller.ClientCount(); got != 0 {
		t.Errorf("mismatched client still registered (%d)", got)
	}
}
