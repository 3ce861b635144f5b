// Package otel provides structured observability for vibesphere.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer provides live in-memory inspection for the debug overlay.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Feed events
	KindFeedLoad     EventKind = "feed.load"
	KindFeedPage     EventKind = "feed.page"
	KindFeedFallback EventKind = "feed.fallback"
	KindFeedError    EventKind = "feed.error"
	KindFeedSearch   EventKind = "feed.search"
	KindFeedMerge    EventKind = "feed.merge"
	KindFeedStale    EventKind = "feed.stale" // result dropped after unmount

	// Playback events
	KindPlaybackTransition EventKind = "playback.transition"
	KindPlaybackError      EventKind = "playback.error"

	// Interaction events
	KindLike          EventKind = "interact.like"
	KindEcho          EventKind = "interact.echo"
	KindSave          EventKind = "interact.save"
	KindMutationError EventKind = "mutation.error"

	// Share events
	KindShareComplete EventKind = "share.complete"
	KindShareError    EventKind = "share.error"

	// Identity events
	KindSignIn  EventKind = "auth.sign_in"
	KindSignOut EventKind = "auth.sign_out"

	// Store events
	KindStoreError EventKind = "store.error"

	// UI events
	KindKeyPress   EventKind = "ui.key"
	KindViewRender EventKind = "ui.render"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"

	// Trace events
	KindMsgReceived EventKind = "trace.msg_received"
	KindMsgHandled  EventKind = "trace.msg_handled"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "feed", "ui", "coord", "main"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for entire app run
	Dur       time.Duration  `json:"-"`                    // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"`     // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	PulseID   string         `json:"pulse,omitempty"`
	Index     *int           `json:"idx,omitempty"`
	Phase     string         `json:"phase,omitempty"` // playback phase after a transition
	Query     string         `json:"query,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// At returns a pointer for Event.Index, which is a pointer so index 0 is
// still serialized.
func At(i int) *int { return &i }

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
