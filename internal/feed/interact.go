package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/abelbrown/vibesphere/internal/docstore"
	"github.com/abelbrown/vibesphere/internal/logging"
	"github.com/abelbrown/vibesphere/internal/model"
	"github.com/abelbrown/vibesphere/internal/otel"
	"github.com/abelbrown/vibesphere/internal/share"
)

// Like toggles the viewer's resonance on a Pulse. The toggle direction is
// decided by membership of the viewer in ResonatedBy; the count moves only
// when that membership changes in the store, and never below zero. Without a viewer, or when taps arrive faster than the
// limiter allows, Like does nothing.
func (c *Controller) Like(ctx context.Context, id string) error {
	viewer, p, gen, ok := c.lookup(id)
	if !ok || viewer == nil || !c.limiter.Allow() {
		return nil
	}
	on := !p.HasResonated(viewer.UID)
	c.flags.Set(ActionLike, id)
	c.changed()

	if IsFallback(id) {
		c.replaceLocal(gen, p.WithResonance(viewer.UID, on))
		return nil
	}

	patch := docstore.Patch{
		docstore.ArrayUnion("resonatedBy", viewer.UID),
		docstore.Increment("resonance", 1).When("resonatedBy"),
	}
	if !on {
		patch = docstore.Patch{
			docstore.ArrayRemove("resonatedBy", viewer.UID),
			docstore.IncrementFloor("resonance", -1, 0).When("resonatedBy"),
		}
	}
	doc, err := c.store.Mutate(ctx, model.CollectionPulses, id, patch)
	if err != nil {
		return c.mutationFailed("like", id, err)
	}
	c.applyDoc(gen, doc)
	c.events.Emit(otel.Event{Kind: otel.KindLike, Comp: "feed", PulseID: id, Extra: map[string]any{"on": on}})

	if on {
		c.notify(ctx, viewer, p, model.NotifyResonance, "")
	}
	return nil
}

// AddComment appends an Echo to a Pulse. Blank text or a missing viewer is
// a silent no-op. The draft for id is cleared once the store accepts it.
func (c *Controller) AddComment(ctx context.Context, id, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	viewer, p, gen, ok := c.lookup(id)
	if !ok || viewer == nil {
		return nil
	}

	echo := model.Echo{
		ID:        uuid.NewString(),
		UserID:    viewer.UID,
		Username:  viewer.Username,
		UserPhoto: viewer.PhotoURL,
		Content:   text,
		CreatedAt: c.clock.Now().UTC(),
	}
	c.flags.Set(ActionEcho, id)
	c.changed()

	if IsFallback(id) {
		p.Echoes = append(append([]model.Echo(nil), p.Echoes...), echo)
		c.replaceLocal(gen, p)
		c.clearDraft(gen, id)
		return nil
	}

	doc, err := c.store.Mutate(ctx, model.CollectionPulses, id, docstore.Patch{docstore.ArrayUnion("echoes", echo)})
	if err != nil {
		return c.mutationFailed("echo", id, err)
	}
	c.applyDoc(gen, doc)
	c.clearDraft(gen, id)
	c.events.Emit(otel.Event{Kind: otel.KindEcho, Comp: "feed", PulseID: id})

	c.notify(ctx, viewer, p, model.NotifyEcho, text)
	return nil
}

// SetDraft stores the unsent comment for a Pulse.
func (c *Controller) SetDraft(id, text string) {
	c.mu.Lock()
	if text == "" {
		delete(c.drafts, id)
	} else {
		c.drafts[id] = text
	}
	c.mu.Unlock()
}

// Draft returns the unsent comment for a Pulse.
func (c *Controller) Draft(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drafts[id]
}

func (c *Controller) clearDraft(gen uint64, id string) {
	c.mu.Lock()
	if !c.stale(gen) {
		delete(c.drafts, id)
	}
	c.mu.Unlock()
	c.changed()
}

// Share hands the Pulse link to the platform sharer, falling back to the
// clipboard. A toast is shown on every path. A delivered share bumps the
// ripple count.
func (c *Controller) Share(ctx context.Context, id string) share.Result {
	viewer, p, gen, ok := c.lookup(id)
	if !ok {
		return share.Result{Method: share.MethodNone, Err: fmt.Errorf("share %s: %w", id, docstore.ErrNotFound)}
	}
	c.flags.Set(ActionRipple, id)
	c.changed()

	res := share.Deliver(ctx, c.sharer, c.clip, share.PayloadFor(c.cfg.ShareBaseURL, p))
	c.showToast(res.Toast)

	if !res.OK() {
		logging.Warn("feed: share failed", "pulse", id, "error", res.Err)
		c.events.Emit(otel.Event{Kind: otel.KindShareError, Level: otel.LevelWarn, Comp: "feed", PulseID: id, Err: errString(res.Err)})
		return res
	}
	c.events.Emit(otel.Event{Kind: otel.KindShareComplete, Comp: "feed", PulseID: id, Msg: string(res.Method)})

	if IsFallback(id) {
		p.Ripples++
		c.replaceLocal(gen, p)
		return res
	}
	doc, err := c.store.Mutate(ctx, model.CollectionPulses, id, docstore.Patch{docstore.Increment("ripples", 1)})
	if err != nil {
		c.mutationFailed("ripple", id, err)
		return res
	}
	c.applyDoc(gen, doc)
	if viewer != nil {
		c.notify(ctx, viewer, p, model.NotifyRipple, "")
	}
	return res
}

// Save adds a Pulse to the viewer's favorites.
func (c *Controller) Save(ctx context.Context, id string) error {
	return c.setSaved(ctx, id, true)
}

// Unsave removes a Pulse from the viewer's favorites.
func (c *Controller) Unsave(ctx context.Context, id string) error {
	return c.setSaved(ctx, id, false)
}

// ToggleSave is the tap handler for the save button.
func (c *Controller) ToggleSave(ctx context.Context, id string) error {
	c.mu.Lock()
	viewer := c.viewer
	c.mu.Unlock()
	if viewer == nil || !c.limiter.Allow() {
		return nil
	}
	return c.setSaved(ctx, id, !viewer.HasFavorite(id))
}

func (c *Controller) setSaved(ctx context.Context, id string, saved bool) error {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return ErrUnmounted
	}
	viewer, gen := c.viewer, c.gen
	c.mu.Unlock()
	if viewer == nil || id == "" {
		return nil
	}
	if saved {
		c.flags.Set(ActionSave, id)
	}

	op := docstore.ArrayUnion("favorites", id)
	if !saved {
		op = docstore.ArrayRemove("favorites", id)
	}
	doc, err := c.store.Mutate(ctx, model.CollectionUsers, viewer.UID, docstore.Patch{op})
	if err != nil {
		return c.mutationFailed("save", id, err)
	}
	var u model.User
	if err := doc.Decode(&u); err != nil {
		return c.mutationFailed("save", id, err)
	}

	c.mu.Lock()
	if !c.stale(gen) && c.viewer != nil && c.viewer.UID == viewer.UID {
		v := *c.viewer
		v.Favorites = append([]string(nil), u.Favorites...)
		c.viewer = &v
	}
	c.mu.Unlock()

	c.events.Emit(otel.Event{Kind: otel.KindSave, Comp: "feed", PulseID: id, Extra: map[string]any{"saved": saved}})
	c.changed()
	return nil
}

// lookup returns the viewer, the listed Pulse with id, and the current
// generation.
func (c *Controller) lookup(id string) (*model.User, model.Pulse, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.torn {
		return nil, model.Pulse{}, 0, false
	}
	i := c.indexOfLocked(id)
	if i < 0 {
		return nil, model.Pulse{}, 0, false
	}
	return c.viewer, c.items[i].Clone(), c.gen, true
}

// applyDoc merges a document returned by a mutation.
func (c *Controller) applyDoc(gen uint64, doc docstore.Document) {
	c.merge(gen, []docstore.Document{doc})
}

// merge applies store documents to listed items. Newer or equal versions
// win; deletions drop the item unless it is the one playing.
func (c *Controller) merge(gen uint64, docs []docstore.Document) {
	c.mu.Lock()
	if c.stale(gen) {
		c.mu.Unlock()
		return
	}
	updated, removed := 0, 0
	for _, d := range docs {
		i := c.indexOfLocked(d.ID)
		if i < 0 {
			continue
		}
		if d.Deleted {
			if i == c.playback.Index && c.playback.Phase != PhaseIdle {
				continue
			}
			c.removeLocked(i)
			removed++
			continue
		}
		if d.Version < c.items[i].Version {
			continue
		}
		p, err := decodePulse(d)
		if err != nil {
			logging.Warn("feed: dropping undecodable update", "id", d.ID, "error", err)
			continue
		}
		c.items[i] = p
		updated++
	}
	var refs []PulseRef
	if removed > 0 {
		refs = refsOf(c.items)
	}
	c.mu.Unlock()

	if updated == 0 && removed == 0 {
		return
	}
	if refs != nil {
		c.media.Load(refs)
	}
	if otel.TraceEnabled() {
		c.events.Emit(otel.Event{Kind: otel.KindFeedMerge, Level: otel.LevelDebug, Comp: "feed", Count: updated + removed})
	}
	c.changed()
}

func (c *Controller) removeLocked(i int) {
	c.items = append(c.items[:i:i], c.items[i+1:]...)
	if i < c.playback.Index {
		c.playback.Index--
	}
	if i < c.target {
		c.target--
	}
	if c.target >= len(c.items) && c.target > 0 {
		c.target = len(c.items) - 1
	}
}

// replaceLocal updates a Pulse that has no backing document.
func (c *Controller) replaceLocal(gen uint64, p model.Pulse) {
	c.mu.Lock()
	if c.stale(gen) {
		c.mu.Unlock()
		return
	}
	if i := c.indexOfLocked(p.ID); i >= 0 {
		c.items[i] = p
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) notify(ctx context.Context, from *model.User, p model.Pulse, kind model.NotificationType, content string) {
	if c.notifier == nil || p.UserID == "" || p.UserID == from.UID {
		return
	}
	err := c.notifier.Publish(ctx, model.Notification{
		UserID:        p.UserID,
		Type:          kind,
		FromUserID:    from.UID,
		FromUsername:  from.Username,
		FromUserPhoto: from.PhotoURL,
		Content:       content,
		PulseID:       p.ID,
	})
	if err != nil {
		logging.Warn("feed: notification not delivered", "type", kind, "pulse", p.ID, "error", err)
	}
}

func (c *Controller) mutationFailed(op, id string, err error) error {
	logging.Warn("feed: "+op+" failed", "pulse", id, "error", err)
	c.events.Emit(otel.Event{Kind: otel.KindMutationError, Level: otel.LevelWarn, Comp: "feed", PulseID: id, Msg: op, Err: err.Error()})
	return fmt.Errorf("%s %s: %w", op, id, err)
}

// showToast replaces the current toast and schedules its removal.
func (c *Controller) showToast(t share.Toast) {
	if t.Message == "" {
		return
	}
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	if c.toastTimer != nil {
		c.toastTimer.Stop()
	}
	c.toast = &t
	c.toastSeq++
	seq := c.toastSeq
	c.toastTimer = c.clock.AfterFunc(c.cfg.ToastTTL, func() { c.expireToast(seq) })
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) expireToast(seq uint64) {
	c.mu.Lock()
	if seq != c.toastSeq || c.toast == nil {
		c.mu.Unlock()
		return
	}
	c.toast = nil
	c.toastTimer = nil
	c.mu.Unlock()
	c.changed()
}

// DismissToast hides the toast early.
func (c *Controller) DismissToast() {
	c.mu.Lock()
	c.toastSeq++
	c.toast = nil
	if c.toastTimer != nil {
		c.toastTimer.Stop()
		c.toastTimer = nil
	}
	c.mu.Unlock()
	c.changed()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
