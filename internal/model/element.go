package model

import "time"

// ElementKind names the primitive a render element draws.
type ElementKind string

const (
	ElementLinePoint ElementKind = "line_point"
	ElementMarker    ElementKind = "marker"
	ElementBand      ElementKind = "band"
)

// RenderElement is one drawing primitive of a computed overlay. Elements are
// ordered by TS within a response and drawn by the host chart as-is.
type RenderElement struct {
	Kind  ElementKind `json:"kind"`
	TS    time.Time   `json:"ts"` // UTC anchor time on the chart's x axis
	Value float64     `json:"value"`
	// Upper/Lower are only set for band elements.
	Upper float64 `json:"upper,omitempty"`
	Lower float64 `json:"lower,omitempty"`
	Label string  `json:"label,omitempty"`
}
