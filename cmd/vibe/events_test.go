package main

import (
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/vibesphere/internal/otel"
)

const sampleLog = `{"t":"2026-03-01T10:00:00Z","level":"info","kind":"feed.load","comp":"feed","count":20,"dur_ms":12.5}
{"t":"2026-03-01T10:00:01Z","level":"debug","kind":"playback.transition","comp":"feed","idx":0,"phase":"playing","pulse":"p1"}
not json
{"t":"2026-03-01T10:00:02Z","level":"error","kind":"mutation.error","comp":"feed","pulse":"p2","err":"boom"}

{"t":"2026-03-01T10:00:03Z","level":"warn","kind":"playback.error","comp":"feed","idx":3,"pulse":"p2"}
`

func TestReadTailLines(t *testing.T) {
	all := func(otel.Event) bool { return true }

	got := readTailLines(strings.NewReader(sampleLog), 2, all)
	if len(got) != 2 {
		t.Fatalf("got %d lines, want 2", len(got))
	}
	if got[0].ev.Kind != otel.KindMutationError || got[1].ev.Kind != otel.KindPlaybackError {
		t.Errorf("tail kept %s, %s", got[0].ev.Kind, got[1].ev.Kind)
	}

	if got := readTailLines(strings.NewReader(sampleLog), 0, all); len(got) != 0 {
		t.Errorf("tail 0 returned %d lines", len(got))
	}
}

func TestEventFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter eventFilter
		want   int
	}{
		{"no filter", eventFilter{}, 4},
		{"kind prefix", eventFilter{Kind: "playback"}, 2},
		{"min level warn", eventFilter{MinLevel: "warn"}, 2},
		{"pulse", eventFilter{PulseID: "p2"}, 2},
		{"component miss", eventFilter{Comp: "ui"}, 0},
		{"combined", eventFilter{Kind: "playback", MinLevel: "warn"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readTailLines(strings.NewReader(sampleLog), 10, tt.filter.match)
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestFormatEvent(t *testing.T) {
	ev := otel.Event{
		Time:    time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC),
		Level:   otel.LevelDebug,
		Kind:    otel.KindPlaybackTransition,
		Comp:    "feed",
		Index:   otel.At(0),
		Phase:   "playing",
		PulseID: "p1",
		DurMs:   0.25,
	}
	got := formatEvent(ev)
	for _, want := range []string{"10:00:01.000", "DEBUG", "playback.transition", "#0", "phase=playing", "pulse=p1", "(0.25ms)"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatEvent() = %q, missing %q", got, want)
		}
	}
}

func TestDurPrecision(t *testing.T) {
	tests := []struct {
		ms   float64
		want int
	}{
		{250, 0},
		{12.5, 1},
		{0.3, 2},
	}
	for _, tt := range tests {
		if got := durPrecision(tt.ms); got != tt.want {
			t.Errorf("durPrecision(%v) = %d, want %d", tt.ms, got, tt.want)
		}
	}
}
