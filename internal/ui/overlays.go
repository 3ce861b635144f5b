package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/vibesphere/internal/model"
)

// overlayChrome is the number of lines Overlay's border takes.
const overlayChrome = 2

func overlayWidth(width int) int {
	w := width - 4
	if w > 72 {
		w = 72
	}
	if w < 24 {
		w = 24
	}
	return w
}

// renderSearch renders the search overlay. In users mode the list holds
// user results; otherwise it holds recent searches.
func renderSearch(input string, history []string, historyCursor int, users []model.User, userCursor int, usersMode bool, viewer *model.User, width, height int) string {
	w := overlayWidth(width)
	title := "Search pulses"
	hint := "tab:users  enter:search  ↑/↓:recent  ctrl+d:clear recent  esc:close"
	if usersMode {
		title = "Search people"
		hint = "tab:pulses  enter:search  ↑/↓:select  ctrl+f:follow  esc:close"
	}

	lines := []string{OverlayTitle.Render(title), input, ""}
	rows := height - overlayChrome - len(lines) - 2
	if rows < 1 {
		rows = 1
	}

	if usersMode {
		if len(users) == 0 {
			lines = append(lines, MetaItem.Render("no people yet"))
		}
		for i, u := range users {
			if i >= rows {
				break
			}
			row := fmt.Sprintf("@%s  %s", u.Username, u.DisplayName)
			if viewer != nil && viewer.IsVibingWith(u.UID) {
				row += "  · vibing"
			}
			row = truncate(row, w-4)
			if i == userCursor {
				row = Selected.Render(row)
			}
			lines = append(lines, row)
		}
	} else {
		if len(history) > 0 {
			lines = append(lines, MetaItem.Render("Recent"))
		}
		for i, q := range history {
			if i >= rows {
				break
			}
			row := truncate(q, w-4)
			if i == historyCursor {
				row = Selected.Render(row)
			}
			lines = append(lines, row)
		}
	}

	lines = append(lines, "", MetaItem.Render(truncate(hint, w-4)))
	return Overlay.Width(w).Render(strings.Join(lines, "\n"))
}

// renderComments renders the echoes of p and the draft input.
func renderComments(p model.Pulse, input string, width, height int, now time.Time) string {
	w := overlayWidth(width)
	lines := []string{OverlayTitle.Render(fmt.Sprintf("Echoes on @%s's Pulse (%d)", p.Username, len(p.Echoes))), ""}

	rows := height - overlayChrome - 6
	if rows < 1 {
		rows = 1
	}
	echoes := p.Echoes
	if len(echoes) > rows {
		echoes = echoes[len(echoes)-rows:]
	}
	if len(echoes) == 0 {
		lines = append(lines, MetaItem.Render("Be the first to echo."))
	}
	for _, e := range echoes {
		head := Username.Render("@"+e.Username) + MetaItem.Render(" "+formatAgeShort(e.CreatedAt, now))
		lines = append(lines, head+"  "+truncate(firstLine(e.Content), w-lipgloss.Width(head)-6))
	}

	lines = append(lines, "", input, MetaItem.Render("enter:echo  esc:close"))
	return Overlay.Width(w).Render(strings.Join(lines, "\n"))
}

// renderInbox renders the notification list.
func renderInbox(items []model.Notification, cursor int, width, height int, now time.Time) string {
	w := overlayWidth(width)
	lines := []string{OverlayTitle.Render("Notifications"), ""}

	rows := height - overlayChrome - 4
	if rows < 1 {
		rows = 1
	}
	if len(items) == 0 {
		lines = append(lines, MetaItem.Render("Nothing yet."))
	}
	start := 0
	if cursor >= rows {
		start = cursor - rows + 1
	}
	for i := start; i < len(items) && i < start+rows; i++ {
		n := items[i]
		row := fmt.Sprintf("@%s %s", n.FromUsername, n.Text())
		if n.Content != "" && n.Type == model.NotifyEcho {
			row += ": " + firstLine(n.Content)
		}
		row = truncate(row, w-12) + "  " + formatAgeShort(n.CreatedAt, now)
		switch {
		case i == cursor:
			row = Selected.Render(row)
		case !n.IsRead:
			row = Unread.Render("• " + row)
		default:
			row = MetaItem.Render("  " + row)
		}
		lines = append(lines, row)
	}

	lines = append(lines, "", MetaItem.Render("j/k:move  a:mark all read  esc:close"))
	return Overlay.Width(w).Render(strings.Join(lines, "\n"))
}

// renderWaves renders the trending list.
func renderWaves(waves []model.Pulse, cursor int, fallback, loading bool, spin string, width, height int) string {
	w := overlayWidth(width)
	title := "🌊 Waves"
	if fallback {
		title += MetaItem.Render("  (editor's picks)")
	}
	lines := []string{OverlayTitle.Render(title), ""}
	if loading {
		lines = append(lines, spin+" ranking waves...")
	}

	rows := height - overlayChrome - 4
	if rows < 1 {
		rows = 1
	}
	for i, p := range waves {
		if i >= rows {
			break
		}
		row := fmt.Sprintf("%2d. @%s  %s", i+1, p.Username, firstLine(p.Caption))
		row = truncate(row, w-14) + "  ♥ " + formatCount(p.Resonance)
		if i == cursor {
			row = Selected.Render(row)
		}
		lines = append(lines, row)
	}

	lines = append(lines, "", MetaItem.Render("j/k:move  esc:close"))
	return Overlay.Width(w).Render(strings.Join(lines, "\n"))
}
