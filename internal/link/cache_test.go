package link

import (
	"testing"
	"time"

	"chartlinkv1/internal/model"
)

func TestResultCacheReplaceAndToken(t *testing.T) {
	c := NewResultCache()

	if c.Token() != 0 {
		t.Fatalf("expected zero token on empty cache, got %d", c.Token())
	}

	detected := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	c.Replace([]model.RenderElement{
		{Kind: model.ElementLinePoint, TS: time.Unix(1000, 0).UTC(), Value: 42.5},
	}, detected)

	if got, want := c.Token(), detected.UnixNano(); got != want {
		t.Errorf("token = %d, want %d", got, want)
	}
	if got := c.Snapshot(); len(got) != 1 || got[0].Value != 42.5 {
		t.Errorf("unexpected snapshot: %+v", got)
	}
	if c.LastUpdate().IsZero() {
		t.Error("expected LastUpdate to be set after Replace")
	}
}

// A snapshot handed to a reader must not change when the cache is
// replaced afterwards.
func TestResultCacheSnapshotIsolation(t *testing.T) {
	c := NewResultCache()
	c.Replace([]model.RenderElement{
		{Kind: model.ElementLinePoint, TS: time.Unix(60, 0).UTC(), Value: 10},
		{Kind: model.ElementLinePoint, TS: time.Unix(120, 0).UTC(), Value: 20},
	}, time.Now())

	snap := c.Snapshot()

	c.Replace([]model.RenderElement{
		{Kind: model.ElementMarker, TS: time.Unix(180, 0).UTC(), Value: 99, Label: "flip"},
	}, time.Now())

	if len(snap) != 2 {
		t.Fatalf("snapshot length changed after Replace: %d", len(snap))
	}
	if snap[0].Value != 10 || snap[1].Value != 20 {
		t.Errorf("snapshot contents mutated: %+v", snap)
	}
}

func TestResultCacheTokenChangesPerUpdate(t *testing.T) {
	c := NewResultCache()

	c.Replace(nil, time.Unix(0, 100))
	first := c.Token()
	c.Replace(nil, time.Unix(0, 200))
	second := c.Token()

	if first == second {
		t.Errorf("expected distinct tokens across updates, both were %d", first)
	}
}
