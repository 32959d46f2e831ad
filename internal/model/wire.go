package model

import "time"

// Wire messages exchanged with the compute service. The schema is owned by
// the service side; these structs mirror it at contract level only.

// OverlayRequest asks the compute service for the overlay elements around a
// reference timestamp (Channel A, client → service).
type OverlayRequest struct {
	CorrelationID string     `json:"correlation_id"`
	Symbol        string     `json:"symbol"`
	SentAt        time.Time  `json:"sent_at"`
	ReferenceTS   time.Time  `json:"reference_ts"`
	SeriesKind    string     `json:"series_kind"` // e.g. "sma", "ema"
	Resolution    Resolution `json:"resolution"`
	PeriodCount   int        `json:"period_count"`
}

// OverlayResponse carries the computed render elements back to the client
// (Channel A, service → client). DetectedTS is the server-reported time the
// result was produced; the client uses it as its cache freshness token.
type OverlayResponse struct {
	CorrelationID string          `json:"correlation_id"`
	Elements      []RenderElement `json:"elements"`
	DetectedTS    time.Time       `json:"detected_ts"`
}

// The Channel B message is a bare Bar: the fire-and-forget bar-close
// notification carries no envelope and expects no reply.

// PullRequest asks the client for bars it holds in its local history
// (Channel C, service → client).
type PullRequest struct {
	RequestID   string     `json:"request_id"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	Symbol      string     `json:"symbol"`
	Resolution  Resolution `json:"resolution"`
	PeriodCount int        `json:"period_count"`
}

// PullResponse answers a PullRequest (Channel C, client → service). Exactly
// one PullResponse is sent per PullRequest; on a processing fault Bars is
// empty and DebugInfo describes the failure.
type PullResponse struct {
	RequestID string `json:"request_id"`
	Bars      []Bar  `json:"bars"`
	DebugInfo string `json:"debug_info,omitempty"`
}
