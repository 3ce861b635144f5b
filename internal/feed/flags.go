package feed

import (
	"sync"
	"time"
)

// Action names an interaction that plays a short animation.
type Action string

const (
	ActionLike   Action = "like"
	ActionEcho   Action = "echo"
	ActionRipple Action = "ripple"
	ActionSave   Action = "save"
)

type flagKey struct {
	action Action
	id     string
}

type flagEntry struct {
	timer Timer
	token uint64
}

// Flags is an expiring set of (action, pulse id) entries. Each entry removes
// itself after the TTL; setting it again restarts the countdown.
type Flags struct {
	clock    Clock
	ttl      time.Duration
	onExpire func()

	mu      sync.Mutex
	entries map[flagKey]flagEntry
	next    uint64
	stopped bool
}

// NewFlags creates an empty set. onExpire, if non-nil, runs after an entry
// is removed by its timer.
func NewFlags(clock Clock, ttl time.Duration, onExpire func()) *Flags {
	return &Flags{
		clock:    clock,
		ttl:      ttl,
		onExpire: onExpire,
		entries:  make(map[flagKey]flagEntry),
	}
}

// Set raises the flag for (a, id).
func (f *Flags) Set(a Action, id string) {
	k := flagKey{a, id}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	if old, ok := f.entries[k]; ok {
		old.timer.Stop()
	}
	f.next++
	token := f.next
	t := f.clock.AfterFunc(f.ttl, func() { f.expire(k, token) })
	f.entries[k] = flagEntry{timer: t, token: token}
}

func (f *Flags) expire(k flagKey, token uint64) {
	f.mu.Lock()
	e, ok := f.entries[k]
	if !ok || e.token != token {
		f.mu.Unlock()
		return
	}
	delete(f.entries, k)
	cb := f.onExpire
	f.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Active reports whether (a, id) is raised.
func (f *Flags) Active(a Action, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[flagKey{a, id}]
	return ok
}

// Len is the number of raised flags.
func (f *Flags) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// ActiveSet copies the raised flags as id -> actions.
func (f *Flags) ActiveSet() map[string][]Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]Action, len(f.entries))
	for k := range f.entries {
		out[k.id] = append(out[k.id], k.action)
	}
	return out
}

// Stop cancels every timer and clears the set. Later Sets are ignored
// until Reset.
func (f *Flags) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, e := range f.entries {
		e.timer.Stop()
		delete(f.entries, k)
	}
	f.stopped = true
}

// Reset re-enables a stopped set.
func (f *Flags) Reset() {
	f.mu.Lock()
	f.stopped = false
	f.mu.Unlock()
}
