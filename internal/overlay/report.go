package overlay

import "chartlinkv1/internal/model"

// ReportSink receives finished overlay snapshots for downstream performance
// analytics. Only the contract lives here; report generation (aggregation,
// HTML/CSV output) is a separate consumer outside this module.
type ReportSink interface {
	// ConsumeOverlay is handed a private copy of the elements; the sink may
	// retain it. Called from the session's UI queue, never from a channel
	// worker.
	ConsumeOverlay(sessionKey string, elements []model.RenderElement)
}
