package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/abelbrown/vibesphere/internal/feed"
	"github.com/abelbrown/vibesphere/internal/model"
	"github.com/abelbrown/vibesphere/internal/share"
)

// CardState is everything about one Pulse the card needs beyond the Pulse.
type CardState struct {
	Active   bool
	Playback feed.Playback
	Flags    []feed.Action
	Liked    bool
	Saved    bool
	Progress string // rendered progress bar, empty when not playing
}

// RenderFeed renders the Pulse at target as a card followed by a peek at
// the next few items. Returns the rendered string for display.
func RenderFeed(s feed.Snapshot, target int, progress string, width, height int, now time.Time) string {
	if len(s.Items) == 0 {
		switch {
		case s.Loading:
			return HelpStyle.Render("Loading pulses...")
		case s.Searching:
			return HelpStyle.Render(fmt.Sprintf("No pulses match %q. Press Esc to go back.", s.Query))
		default:
			return HelpStyle.Render("No pulses yet. Press 'r' to refresh.")
		}
	}
	if target < 0 {
		target = 0
	}
	if target >= len(s.Items) {
		target = len(s.Items) - 1
	}

	p := s.Items[target]
	st := CardState{
		Active:   s.Playback.Index == target && s.Playback.Phase != feed.PhaseIdle,
		Playback: s.Playback,
		Flags:    s.Flags[p.ID],
		Liked:    s.Liked(p.ID),
		Saved:    s.Saved(p.ID),
	}
	if st.Active {
		st.Progress = progress
	}

	var b strings.Builder
	b.WriteString(RenderCard(p, st, width, now))
	b.WriteString("\n")

	lines := lipgloss.Height(b.String())
	for i := target + 1; i < len(s.Items) && lines < height; i++ {
		b.WriteString(PeekItem.Render(peekLine(s.Items[i], width-2)))
		b.WriteString("\n")
		lines++
	}
	if lines < height {
		switch {
		case s.LoadingMore:
			b.WriteString(PeekItem.Render("loading more..."))
		case s.Exhausted && target == len(s.Items)-1:
			b.WriteString(PeekItem.Render("you're all caught up"))
		}
	}
	return b.String()
}

// RenderCard renders one Pulse.
func RenderCard(p model.Pulse, st CardState, width int, now time.Time) string {
	inner := width - 4 // border + padding
	if inner < 20 {
		inner = 20
	}

	head := Username.Render("@"+p.Username) + MetaItem.Render(" · "+formatAgeShort(p.CreatedAt, now))
	if st.Active {
		badge := PhaseBadge.Render(phaseLabel(st.Playback))
		pad := inner - lipgloss.Width(head) - lipgloss.Width(badge)
		if pad < 1 {
			pad = 1
		}
		head += strings.Repeat(" ", pad) + badge
	}

	lines := []string{head, ""}
	for _, l := range wrap(p.Caption, inner) {
		lines = append(lines, Caption.Render(l))
	}
	if len(p.Tags) > 0 {
		tags := lo.Map(p.Tags, func(t string, _ int) string { return "#" + t })
		lines = append(lines, Tag.Render(truncate(strings.Join(tags, " "), inner)))
	}
	lines = append(lines, "")
	if st.Progress != "" {
		lines = append(lines, st.Progress)
	}
	lines = append(lines, counters(p, st))

	return Card.Width(width - 2).Render(strings.Join(lines, "\n"))
}

func counters(p model.Pulse, st CardState) string {
	flashing := func(a feed.Action) bool { return lo.Contains(st.Flags, a) }

	heart := "♡"
	if st.Liked {
		heart = "♥"
	}
	star := "☆"
	if st.Saved {
		star = "★"
	}

	parts := []struct {
		text  string
		on    bool
		flash bool
	}{
		{heart + " " + formatCount(p.Resonance), st.Liked, flashing(feed.ActionLike)},
		{"💬 " + formatCount(len(p.Echoes)), false, flashing(feed.ActionEcho)},
		{"↗ " + formatCount(p.Ripples), false, flashing(feed.ActionRipple)},
		{star, st.Saved, flashing(feed.ActionSave)},
	}
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch {
		case part.flash:
			out = append(out, Flash.Render(part.text))
		case part.on:
			out = append(out, Liked.Render(part.text))
		default:
			out = append(out, MetaItem.Render(part.text))
		}
	}
	return strings.Join(out, "   ")
}

func phaseLabel(pb feed.Playback) string {
	var label string
	switch pb.Phase {
	case feed.PhasePlaying:
		label = "▶ playing"
	case feed.PhasePaused:
		label = "❚❚ paused"
	case feed.PhaseBuffering:
		label = "… buffering"
	default:
		label = "idle"
	}
	if pb.Muted {
		label += " 🔇"
	}
	return label
}

func peekLine(p model.Pulse, width int) string {
	return truncate(fmt.Sprintf("@%s  %s", p.Username, firstLine(p.Caption)), width)
}

// RenderToast renders the current toast, or "" when there is none.
func RenderToast(t *share.Toast, width int) string {
	if t == nil {
		return ""
	}
	style := ToastSuccessStyle
	switch t.Kind {
	case share.ToastError:
		style = ToastErrorStyle
	case share.ToastWarning:
		style = ToastWarningStyle
	}
	return style.Width(width).Render(t.Message)
}

// RenderHeader renders the top line: app name, viewer and badges.
func RenderHeader(s feed.Snapshot, viewer *model.User, unread int, width int) string {
	left := Header.Render("VibeSphere")
	if s.Fallback {
		left += MetaItem.Render(" trending")
	}
	if s.Searching {
		left += " " + HeaderBadge.Render("search: "+truncate(s.Query, 24))
	}

	right := MetaItem.Render("signed out")
	if viewer != nil {
		right = Username.Render("@" + viewer.Username)
	}
	if unread > 0 {
		right = HeaderBadge.Render(fmt.Sprintf("🔔 %d", unread)) + " " + right
	}

	pad := width - lipgloss.Width(left) - lipgloss.Width(right)
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right
}

// RenderStatusBar renders the bottom status bar with key hints and position.
func RenderStatusBar(pos, total int, width int, loading bool, spin string) string {
	var position string
	switch {
	case loading:
		position = " " + spin + " Loading... "
	case total == 0:
		position = " 0/0 "
	default:
		position = fmt.Sprintf(" %d/%d ", pos+1, total)
	}

	keys := []string{
		StatusBarKey.Render("j/k") + StatusBarText.Render(":scroll"),
		StatusBarKey.Render("space") + StatusBarText.Render(":play"),
		StatusBarKey.Render("l") + StatusBarText.Render(":like"),
		StatusBarKey.Render("c") + StatusBarText.Render(":echo"),
		StatusBarKey.Render("s") + StatusBarText.Render(":share"),
		StatusBarKey.Render("b") + StatusBarText.Render(":save"),
		StatusBarKey.Render("/") + StatusBarText.Render(":search"),
		StatusBarKey.Render("n") + StatusBarText.Render(":inbox"),
		StatusBarKey.Render("w") + StatusBarText.Render(":waves"),
		StatusBarKey.Render("q") + StatusBarText.Render(":quit"),
	}
	keyHints := strings.Join(keys, " ")

	padding := width - lipgloss.Width(position) - lipgloss.Width(keyHints)
	if padding < 0 {
		padding = 0
	}
	return StatusBar.Width(width).Render(position + strings.Repeat(" ", padding) + keyHints)
}

func formatAgeShort(t, now time.Time) string {
	age := now.Sub(t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}

// formatCount abbreviates large counters: 1250 -> 1.2K, 2500000 -> 2.5M.
func formatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1_000_000)) + "M"
	case n >= 1_000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1_000)) + "K"
	default:
		return fmt.Sprintf("%d", n)
	}
}

func trimZero(s string) string { return strings.TrimSuffix(s, ".0") }

func formatClock(d time.Duration) string {
	s := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// truncate shortens s to width runes with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}

// wrap breaks s into lines of at most width runes on word boundaries.
func wrap(s string, width int) []string {
	var out []string
	for _, para := range strings.Split(s, "\n") {
		line := ""
		for _, w := range strings.Fields(para) {
			switch {
			case line == "":
				line = truncate(w, width)
			case utf8.RuneCountInString(line)+1+utf8.RuneCountInString(w) <= width:
				line += " " + w
			default:
				out = append(out, line)
				line = truncate(w, width)
			}
		}
		out = append(out, line)
	}
	return out
}
