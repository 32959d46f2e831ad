// Package compute produces chart overlay elements from bar series. It runs
// on the service side; the client never computes anything itself.
//
// All series implement the Series interface, receiving bars and producing
// float64 values.
package compute

import (
	"fmt"
	"strings"

	"chartlinkv1/internal/model"
)

// Series is the interface for all overlay series calculations.
type Series interface {
	// Name returns the series name (e.g., "SMA", "EMA").
	Name() string

	// Update feeds a new bar and recalculates.
	Update(bar model.Bar)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// NewSeries constructs a series by kind name. Unknown kinds are a
// configuration error surfaced eagerly.
func NewSeries(kind string, period int) (Series, error) {
	if period <= 0 {
		return nil, fmt.Errorf("compute: period must be positive, got %d", period)
	}
	switch strings.ToLower(kind) {
	case "sma":
		return NewSMA(period), nil
	case "ema":
		return NewEMA(period), nil
	default:
		return nil, fmt.Errorf("compute: unknown series kind %q", kind)
	}
}

// Overlay feeds bars (in close-time order) through a fresh series of the
// given kind and returns one line point per bar where the series was ready.
func Overlay(kind string, period int, bars []model.Bar) ([]model.RenderElement, error) {
	s, err := NewSeries(kind, period)
	if err != nil {
		return nil, err
	}

	elements := make([]model.RenderElement, 0, len(bars))
	for _, bar := range bars {
		s.Update(bar)
		if !s.Ready() {
			continue
		}
		elements = append(elements, model.RenderElement{
			Kind:  model.ElementLinePoint,
			TS:    bar.CloseTime,
			Value: s.Value(),
			Label: s.Name(),
		})
	}
	return elements, nil
}
