// Package ui provides the Bubble Tea TUI for vibesphere.
package ui

import (
	"github.com/abelbrown/vibesphere/internal/feed"
	"github.com/abelbrown/vibesphere/internal/model"
	"github.com/abelbrown/vibesphere/internal/share"
)

// FeedChanged carries a fresh copy of the feed controller state.
type FeedChanged struct {
	Snapshot feed.Snapshot
}

// InboxUpdated is sent when the viewer's notifications change.
// Items is newest first. A sign-out sends an empty update.
type InboxUpdated struct {
	Items  []model.Notification
	Unread int
}

// ViewerChanged is sent when someone signs in or out.
type ViewerChanged struct {
	Viewer *model.User
}

// WavesLoaded is sent when the trending list has been ranked.
type WavesLoaded struct {
	Waves    []model.Pulse
	Fallback bool
	Err      error
}

// UsersFound is sent when a user search finishes.
type UsersFound struct {
	Query string
	Users []model.User
	Err   error
}

// Shared is sent when a share attempt finishes.
type Shared struct {
	PulseID string
	Result  share.Result
}

// ActionDone reports the outcome of a fire-and-forget interaction
// (like, echo, save, follow, mark read). Errors are shown in the status bar.
type ActionDone struct {
	Action string
	Err    error
}

// Buffered is sent when the simulated player finishes buffering an index.
type Buffered struct {
	Index int
	Gen   int
}

// PlayerTick advances the playback progress bar.
type PlayerTick struct{}
