package model

import (
	"encoding/json"
	"time"
)

// Resolution names the sampling granularity of a bar series.
type Resolution string

const (
	ResolutionMinute Resolution = "minute"
	ResolutionSecond Resolution = "second"
	ResolutionTick   Resolution = "tick"
	ResolutionVolume Resolution = "volume"
)

// Valid reports whether r is a known resolution.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionMinute, ResolutionSecond, ResolutionTick, ResolutionVolume:
		return true
	}
	return false
}

// Bar is a single completed OHLCV bar of a series.
type Bar struct {
	Symbol      string     `json:"symbol"`
	Resolution  Resolution `json:"resolution"`
	PeriodCount int        `json:"period_count"` // granularity units per bar
	CloseTime   time.Time  `json:"close_time"`   // UTC
	Open        float64    `json:"open"`
	High        float64    `json:"high"`
	Low         float64    `json:"low"`
	Close       float64    `json:"close"`
	Volume      float64    `json:"volume"`
}

// SeriesKey returns "symbol:resolution:periodCount", the identity of the
// series this bar belongs to.
func (b *Bar) SeriesKey() string {
	return b.Symbol + ":" + string(b.Resolution) + ":" + itoa(b.PeriodCount)
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// itoa is a minimal int-to-string without importing strconv in hot path.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
