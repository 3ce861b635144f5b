package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application. SetTheme swaps them.
var (
	colorPrimary   = lipgloss.Color("99")  // Violet
	colorSecondary = lipgloss.Color("245") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("205") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorWarning   = lipgloss.Color("214") // Amber
	colorError     = lipgloss.Color("196") // Red
	colorText      = lipgloss.Color("255")
	colorSurface   = lipgloss.Color("236")
)

var (
	// Header is the top line with the app name and viewer.
	Header lipgloss.Style
	// HeaderBadge marks the unread count and search state.
	HeaderBadge lipgloss.Style

	// Card frames the active Pulse.
	Card lipgloss.Style
	// Username style for @handles.
	Username lipgloss.Style
	// Caption style for pulse captions.
	Caption lipgloss.Style
	// Tag style for #tags.
	Tag lipgloss.Style
	// MetaItem style for ages and counters.
	MetaItem lipgloss.Style
	// Flash is the short highlight after a like, echo, ripple or save.
	Flash lipgloss.Style
	// Liked marks counters the viewer contributed to.
	Liked lipgloss.Style
	// PeekItem style for the next items under the card.
	PeekItem lipgloss.Style
	// PhaseBadge shows the playback phase.
	PhaseBadge lipgloss.Style

	// StatusBar style for the bottom status bar.
	StatusBar lipgloss.Style
	// StatusBarKey style for key hints in status bar.
	StatusBarKey lipgloss.Style
	// StatusBarText style for descriptive text in status bar.
	StatusBarText lipgloss.Style

	// Toast styles, one per share.ToastKind.
	ToastSuccessStyle lipgloss.Style
	ToastWarningStyle lipgloss.Style
	ToastErrorStyle   lipgloss.Style

	// ErrorStyle for displaying errors.
	ErrorStyle lipgloss.Style
	// HelpStyle for help text.
	HelpStyle lipgloss.Style

	// Overlay frames the search, comments, inbox and waves panels.
	Overlay lipgloss.Style
	// OverlayTitle heads an overlay.
	OverlayTitle lipgloss.Style
	// Selected marks the highlighted row in an overlay.
	Selected lipgloss.Style
	// Unread marks unread notifications.
	Unread lipgloss.Style

	// DebugPanel frames the debug overlay.
	DebugPanel lipgloss.Style
	// DebugHeaderStyle heads a debug section.
	DebugHeaderStyle lipgloss.Style
)

func init() { buildStyles() }

// SetTheme switches between the "dark" and "light" palettes.
func SetTheme(name string) {
	if name == "light" {
		colorPrimary = lipgloss.Color("55")
		colorSecondary = lipgloss.Color("242")
		colorMuted = lipgloss.Color("247")
		colorHighlight = lipgloss.Color("162")
		colorText = lipgloss.Color("235")
		colorSurface = lipgloss.Color("254")
	} else {
		colorPrimary = lipgloss.Color("99")
		colorSecondary = lipgloss.Color("245")
		colorMuted = lipgloss.Color("240")
		colorHighlight = lipgloss.Color("205")
		colorText = lipgloss.Color("255")
		colorSurface = lipgloss.Color("236")
	}
	buildStyles()
}

func buildStyles() {
	Header = lipgloss.NewStyle().Bold(true).Foreground(colorHighlight).Padding(0, 1)
	HeaderBadge = lipgloss.NewStyle().Foreground(colorText).Background(colorPrimary).Padding(0, 1)

	Card = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorPrimary).
		Padding(0, 1)
	Username = lipgloss.NewStyle().Bold(true).Foreground(colorHighlight)
	Caption = lipgloss.NewStyle().Foreground(colorText)
	Tag = lipgloss.NewStyle().Foreground(colorPrimary)
	MetaItem = lipgloss.NewStyle().Foreground(colorSecondary)
	Flash = lipgloss.NewStyle().Bold(true).Foreground(colorSurface).Background(colorHighlight)
	Liked = lipgloss.NewStyle().Bold(true).Foreground(colorHighlight)
	PeekItem = lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 1)
	PhaseBadge = lipgloss.NewStyle().Foreground(colorText).Background(colorSurface).Padding(0, 1)

	StatusBar = lipgloss.NewStyle().Foreground(colorText).Background(colorSurface).Padding(0, 1)
	StatusBarKey = lipgloss.NewStyle().Foreground(colorHighlight).Bold(true)
	StatusBarText = lipgloss.NewStyle().Foreground(colorSecondary)

	ToastSuccessStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true).Padding(0, 1)
	ToastWarningStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true).Padding(0, 1)
	ToastErrorStyle = lipgloss.NewStyle().Foreground(colorError).Bold(true).Padding(0, 1)

	ErrorStyle = lipgloss.NewStyle().Foreground(colorError).Bold(true).Padding(0, 1)
	HelpStyle = lipgloss.NewStyle().Foreground(colorMuted).Padding(1, 2)

	Overlay = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorHighlight).
		Padding(0, 1)
	OverlayTitle = lipgloss.NewStyle().Bold(true).Foreground(colorHighlight)
	Selected = lipgloss.NewStyle().Bold(true).Foreground(colorText).Background(colorPrimary)
	Unread = lipgloss.NewStyle().Bold(true).Foreground(colorText)

	DebugPanel = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(colorMuted).
		Padding(1, 2)
	DebugHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(colorHighlight)
}
