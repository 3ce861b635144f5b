package feed

import (
	"github.com/abelbrown/vibesphere/internal/model"
	"github.com/abelbrown/vibesphere/internal/share"
)

// Snapshot is a copy of the controller state for rendering. Nothing in it
// aliases controller memory.
type Snapshot struct {
	Items    []model.Pulse
	Playback Playback
	Target   int // index the view is scrolled to; Playback.Index follows after the debounce

	Flags map[string][]Action
	Toast *share.Toast

	Searching bool
	Query     string
	History   []string
	Users     []model.User

	Loading     bool
	LoadingMore bool
	Exhausted   bool
	Fallback    bool
	Err         error

	Viewer        *model.User
	SearchOverlay bool
	CommentsFor   string
	Draft         string // draft for CommentsFor
}

// Snapshot copies the current state.
func (c *Controller) Snapshot() Snapshot {
	flags := c.flags.ActiveSet()

	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Items:         make([]model.Pulse, len(c.items)),
		Playback:      c.playback,
		Target:        c.target,
		Flags:         flags,
		Searching:     c.searching,
		Query:         c.query,
		History:       append([]string(nil), c.recent...),
		Users:         append([]model.User(nil), c.users...),
		Loading:       c.loading,
		LoadingMore:   c.loadingMore,
		Exhausted:     c.exhausted,
		Fallback:      c.fallback,
		Err:           c.lastErr,
		SearchOverlay: c.searchOverlay,
		CommentsFor:   c.commentsFor,
		Draft:         c.drafts[c.commentsFor],
	}
	for i, p := range c.items {
		s.Items[i] = p.Clone()
	}
	if c.toast != nil {
		t := *c.toast
		s.Toast = &t
	}
	if c.viewer != nil {
		v := c.viewer.Public()
		s.Viewer = &v
	}
	return s
}

// Active returns the item at the playback index.
func (s Snapshot) Active() (model.Pulse, bool) {
	if s.Playback.Phase == PhaseIdle || s.Playback.Index >= len(s.Items) {
		return model.Pulse{}, false
	}
	return s.Items[s.Playback.Index], true
}

// Item returns the listed Pulse with id.
func (s Snapshot) Item(id string) (model.Pulse, bool) {
	for _, p := range s.Items {
		if p.ID == id {
			return p, true
		}
	}
	return model.Pulse{}, false
}

// Flagged reports whether the animation for (a, id) is running.
func (s Snapshot) Flagged(a Action, id string) bool {
	for _, got := range s.Flags[id] {
		if got == a {
			return true
		}
	}
	return false
}

// Liked reports whether the viewer resonated with id.
func (s Snapshot) Liked(id string) bool {
	if s.Viewer == nil {
		return false
	}
	p, ok := s.Item(id)
	return ok && p.HasResonated(s.Viewer.UID)
}

// Saved reports whether id is in the viewer's favorites.
func (s Snapshot) Saved(id string) bool {
	return s.Viewer != nil && s.Viewer.HasFavorite(id)
}
