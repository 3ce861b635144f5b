// Package feed implements the VibeSphere feed controller.
//
// The controller owns one vertically paged list of Pulses in which exactly
// one item is active. It decides which item plays, when the next page is
// fetched, and how viewer actions (resonate, echo, ripple, save) reach the
// document store. It does not render anything: the UI reads Snapshot after
// every OnChange callback.
//
// # Playback
//
//	        LoadInitial (non-empty)
//	Idle ─────────────────────────────> Buffering(0)
//
//	Buffering(i) ── ready && intent=play ──> Playing(i)
//	Playing(i)   ── tap / media paused ────> Paused(i)
//	Paused(i)    ── tap && media ready ───> Playing(i)
//	any(i)       ── SetActiveIndex(j≠i) ──> Buffering(j)  (debounced)
//
// A failed play lands in Paused(i). Index changes are coalesced: only the
// last target inside the debounce window pauses and rewinds the other
// players and starts the new one.
//
// # Consistency
//
// Counts shown in the feed come from the store. Mutations return the
// patched document and live subscription deliveries replace items with an
// equal or newer Version, so whichever write lands last wins. Local intent
// is never queued against remote updates.
//
// # Lifetime
//
// Mount starts the viewer and live-change subscriptions; Unmount releases
// them, stops every timer and pauses the active player. Any backend result
// that arrives after Unmount is dropped.
package feed
