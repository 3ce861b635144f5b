package feed

import (
	"testing"
	"time"

	"github.com/abelbrown/vibesphere/internal/model"
)

func TestRankWaves(t *testing.T) {
	now := baseTime
	ps := []model.Pulse{
		{ID: "plain", Resonance: 9999},
		{ID: "low", IsWave: true, Resonance: 10, CreatedAt: now},
		{ID: "views", IsWave: true, Resonance: 10, Views: 5000, CreatedAt: now},
		{ID: "old", IsWave: true, Resonance: 10, CreatedAt: now.Add(-72 * time.Hour)},
		{ID: "top", IsWave: true, Resonance: 500, CreatedAt: now},
	}
	got := ids(RankWaves(ps, now, 3))
	if want := []string{"top", "views", "old"}; !equalStrings(got, want) {
		t.Errorf("ranked = %v, want %v", got, want)
	}
}

func TestLoadWaves(t *testing.T) {
	h := newHarness(t, Config{})
	h.seed(pulseSpec{id: "a"})

	waves, fallback, err := LoadWaves(h.ctx, h.store, baseTime)
	if err != nil {
		t.Fatalf("LoadWaves failed: %v", err)
	}
	if !fallback || len(waves) != 3 {
		t.Fatalf("fallback=%v waves=%d, want built-in waves", fallback, len(waves))
	}
	for _, w := range waves {
		if !IsFallback(w.ID) || !w.IsWave {
			t.Errorf("unexpected wave %s", w.ID)
		}
	}

	h.store.Set(h.ctx, model.CollectionPulses, "w", model.Pulse{ID: "w", Caption: "trend", IsWave: true, CreatedAt: baseTime})
	waves, fallback, err = LoadWaves(h.ctx, h.store, baseTime)
	if err != nil {
		t.Fatalf("LoadWaves failed: %v", err)
	}
	if fallback || !equalStrings(ids(waves), []string{"w"}) {
		t.Errorf("fallback=%v waves=%v, want [w]", fallback, ids(waves))
	}
}

func TestFlags(t *testing.T) {
	clock := newManualClock()
	expired := 0
	f := NewFlags(clock, 600*time.Millisecond, func() { expired++ })

	f.Set(ActionLike, "a")
	clock.Advance(400 * time.Millisecond)
	f.Set(ActionLike, "a") // restart
	f.Set(ActionSave, "a")
	clock.Advance(400 * time.Millisecond)
	if !f.Active(ActionLike, "a") {
		t.Error("restarted flag expired early")
	}
	clock.Advance(200 * time.Millisecond)
	if f.Len() != 0 || expired != 2 {
		t.Errorf("len=%d expired=%d, want 0 and 2", f.Len(), expired)
	}

	f.Set(ActionEcho, "b")
	f.Stop()
	f.Set(ActionEcho, "c")
	if f.Len() != 0 || clock.Pending() != 0 {
		t.Error("stopped flags should hold nothing")
	}
	f.Reset()
	f.Set(ActionEcho, "c")
	if !f.Active(ActionEcho, "c") {
		t.Error("reset flags should accept entries")
	}
}
