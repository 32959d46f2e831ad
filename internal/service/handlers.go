package service

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"chartlinkv1/internal/compute"
	"chartlinkv1/internal/model"
)

const (
	// overlayWindow is how many bars the overlay series is computed over.
	overlayWindow = 20
	// lookbackBars is how many bars of history an overlay request fetches;
	// extra depth lets the series warm up before the rendered window.
	lookbackBars = overlayWindow * 3
	// fallbackLookback is used for resolutions without a fixed bar duration.
	fallbackLookback = 24 * time.Hour
)

// handleOverlay services Channel A: one reply per request, lock-step.
func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer conn.Close()
	configureConn(conn)
	log.Printf("[service] overlay client connected: %s", r.RemoteAddr)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[service] overlay client gone: %v", err)
			return
		}

		var req model.OverlayRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			log.Printf("[service] bad overlay request: %v", err)
			return // lock-step exchange is out of sync, drop the conn
		}

		resp := s.buildOverlay(req)
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("[service] overlay reply failed: %v", err)
			return
		}
	}
}

// buildOverlay fetches the bar window ending at the reference timestamp,
// backfilling through the pull channel when the store has gaps, and computes
// the requested series. Faults yield an empty element set, never a missing
// reply.
func (s *Server) buildOverlay(req model.OverlayRequest) model.OverlayResponse {
	resp := model.OverlayResponse{
		CorrelationID: req.CorrelationID,
		DetectedTS:    time.Now().UTC(),
	}

	start := req.ReferenceTS.Add(-lookback(req.Resolution, req.PeriodCount))
	bars, err := s.cfg.Store.ReadRange(req.Symbol, req.Resolution, req.PeriodCount, start, req.ReferenceTS)
	if err != nil {
		log.Printf("[service] read bars: %v", err)
		return resp
	}

	if len(bars) < overlayWindow {
		if pulled := s.backfill(req, start); pulled > 0 {
			bars, err = s.cfg.Store.ReadRange(req.Symbol, req.Resolution, req.PeriodCount, start, req.ReferenceTS)
			if err != nil {
				log.Printf("[service] re-read bars: %v", err)
				return resp
			}
		}
	}

	elements, err := compute.Overlay(req.SeriesKind, overlayWindow, bars)
	if err != nil {
		log.Printf("[service] compute overlay: %v", err)
		return resp
	}
	resp.Elements = elements
	return resp
}

// backfill pulls missing bars out of a connected client's local history and
// stores them. Returns the number of bars recovered.
func (s *Server) backfill(req model.OverlayRequest, start time.Time) int {
	bars, err := s.puller.PullBars(model.PullRequest{
		StartTime:   start,
		EndTime:     req.ReferenceTS,
		Symbol:      req.Symbol,
		Resolution:  req.Resolution,
		PeriodCount: req.PeriodCount,
	})
	if err != nil {
		log.Printf("[service] pull backfill: %v", err)
		return 0
	}
	if len(bars) == 0 {
		return 0
	}
	s.storeBars(bars)
	log.Printf("[service] backfilled %d bars for %s", len(bars), req.Symbol)
	return len(bars)
}

// handleIngest services Channel B: pushed bars are stored; nothing is ever
// written back.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer conn.Close()
	configureConn(conn)
	log.Printf("[service] ingest client connected: %s", r.RemoteAddr)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[service] ingest client gone: %v", err)
			return
		}

		var bar model.Bar
		if err := json.Unmarshal(raw, &bar); err != nil {
			log.Printf("[service] bad bar push: %v", err)
			continue // fire-and-forget: a garbled push is dropped, not fatal
		}
		s.storeBars([]model.Bar{bar})
	}
}

func (s *Server) storeBars(bars []model.Bar) {
	if err := s.cfg.Store.InsertBars(bars); err != nil {
		log.Printf("[service] store bars: %v", err)
	}
	if s.cfg.Hot != nil {
		for _, bar := range bars {
			if err := s.cfg.Hot.WriteBar(bar); err != nil {
				log.Printf("[service] hot cache write: %v", err)
			}
		}
	}
}

// lookback converts a series' bar size into a time window deep enough for
// lookbackBars bars. Tick and volume bars have no fixed duration, so a
// generous fallback is used.
func lookback(resolution model.Resolution, periodCount int) time.Duration {
	switch resolution {
	case model.ResolutionMinute:
		return time.Duration(periodCount) * time.Minute * lookbackBars
	case model.ResolutionSecond:
		return time.Duration(periodCount) * time.Second * lookbackBars
	default:
		return fallbackLookback
	}
}
