package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestResolutionValid(t *testing.T) {
	for _, r := range []Resolution{ResolutionMinute, ResolutionSecond, ResolutionTick, ResolutionVolume} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	for _, r := range []Resolution{"", "hour", "MINUTE"} {
		if r.Valid() {
			t.Errorf("%q should be invalid", r)
		}
	}
}

func TestSeriesKey(t *testing.T) {
	b := Bar{Symbol: "NIFTY", Resolution: ResolutionMinute, PeriodCount: 5}
	if got, want := b.SeriesKey(), "NIFTY:minute:5"; got != want {
		t.Errorf("SeriesKey = %q, want %q", got, want)
	}
}

func TestBarJSONRoundTrip(t *testing.T) {
	b := Bar{
		Symbol:      "NIFTY",
		Resolution:  ResolutionMinute,
		PeriodCount: 1,
		CloseTime:   time.Unix(600, 0).UTC(),
		Open:        10, High: 12, Low: 9, Close: 11, Volume: 1500,
	}
	var got Bar
	if err := json.Unmarshal(b.JSON(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != b {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
