package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/vibesphere/internal/otel"
)

// debugPanelChrome is the number of terminal lines consumed by DebugPanel's
// border (top + bottom = 2) and vertical padding (top + bottom = 2).
// Must be updated if DebugPanel style changes.
const debugPanelChrome = 4

// debugFocuses are the event kind prefixes the f key cycles through in the
// debug overlay. The empty prefix shows everything.
var debugFocuses = []string{"", "feed.", "playback.", "interact.", "share."}

// debugOverlay renders the debug panel showing feed stats and recent events,
// limited to kinds starting with focus when it is set. Pure function with no
// side effects. Returns empty string if ring is nil.
func debugOverlay(ring *otel.RingBuffer, events *otel.Logger, focus string, width, height int, now time.Time) string {
	if ring == nil {
		return ""
	}

	stats := ring.Stats()
	recent := ring.Last(20)
	if focus != "" {
		recent = ring.Matching(focus, 20)
	}

	// Keyed lookups, not map iteration, so the order is stable.
	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Feed Stats"))
	lines = append(lines, fmt.Sprintf("  Loads:      %d initial, %d pages, %d fallback, %d errors",
		stats[otel.KindFeedLoad], stats[otel.KindFeedPage], stats[otel.KindFeedFallback], stats[otel.KindFeedError]))
	lines = append(lines, fmt.Sprintf("  Live:       %d merges, %d stale drops, %d searches",
		stats[otel.KindFeedMerge], stats[otel.KindFeedStale], stats[otel.KindFeedSearch]))
	lines = append(lines, fmt.Sprintf("  Playback:   %d transitions, %d errors",
		stats[otel.KindPlaybackTransition], stats[otel.KindPlaybackError]))
	lines = append(lines, fmt.Sprintf("  Actions:    %d likes, %d echoes, %d saves, %d shares, %d failed",
		stats[otel.KindLike], stats[otel.KindEcho], stats[otel.KindSave], stats[otel.KindShareComplete],
		stats[otel.KindMutationError]+stats[otel.KindShareError]))
	lines = append(lines, fmt.Sprintf("  Buffer:     %d / %d events, %d dropped", ring.Len(), ring.Cap(), events.Dropped()))
	if sid := events.SessionID(); sid != "" {
		lines = append(lines, "  Session:    "+sid)
	}
	lines = append(lines, "")

	header := "Recent Events"
	if focus != "" {
		header += " (" + strings.TrimSuffix(focus, ".") + ")"
	}
	lines = append(lines, DebugHeaderStyle.Render(header))
	for _, e := range recent {
		line := fmt.Sprintf("  %6s  %-20s", formatAge(now.Sub(e.Time)), string(e.Kind))
		if e.Phase != "" {
			line += "  " + e.Phase
		}
		if e.Index != nil {
			line += fmt.Sprintf("  #%d", *e.Index)
		}
		if e.PulseID != "" {
			line += "  " + truncateRunes(e.PulseID, 12)
		}
		if e.Msg != "" {
			line += "  " + truncateRunes(e.Msg, 30)
		}
		if e.Err != "" {
			line += "  ERR:" + truncateRunes(e.Err, 30)
		}
		lines = append(lines, line)
	}

	// Truncate to fit terminal height (subtract chrome added by DebugPanel border/padding)
	maxHeight := height - debugPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := 84
	if panelWidth > width-4 {
		panelWidth = width - 4
	}
	if panelWidth < 20 {
		panelWidth = 20
	}

	return DebugPanel.Width(panelWidth).Render(strings.Join(lines, "\n"))
}

// formatAge formats a duration as a compact human string.
// Handles negative durations from clock skew by clamping to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// debugStatusBar renders the status bar for the debug overlay.
func debugStatusBar(width int, focus string) string {
	if focus == "" {
		focus = "all"
	}
	keys := StatusBarKey.Render("f") + StatusBarText.Render(":focus "+focus) + " " +
		StatusBarKey.Render("D") + StatusBarText.Render(":close")
	return StatusBar.Width(width).Render("  [DEBUG]  " + keys)
}
