package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/vibesphere/internal/docstore"
	"github.com/abelbrown/vibesphere/internal/model"
	"github.com/abelbrown/vibesphere/internal/share"
)

func storedPulse(t *testing.T, h *harness, id string) model.Pulse {
	t.Helper()
	doc, err := h.store.Get(h.ctx, model.CollectionPulses, id)
	if err != nil {
		t.Fatalf("Get %s failed: %v", id, err)
	}
	p, err := decodePulse(doc)
	if err != nil {
		t.Fatalf("decode %s failed: %v", id, err)
	}
	return p
}

func TestLike_ToggleSequence(t *testing.T) {
	h := newHarness(t, Config{})
	h.seed(pulseSpec{id: "a", author: "author", caption: "clip"})
	h.mount()
	viewer := h.signIn("viewer")
	h.c.LoadInitial(h.ctx)

	want, liked := 0, false
	for i := 0; i < 7; i++ {
		if err := h.c.Like(h.ctx, "a"); err != nil {
			t.Fatalf("Like #%d failed: %v", i, err)
		}
		liked = !liked
		if liked {
			want++
		} else {
			want--
		}

		s := h.c.Snapshot()
		p, _ := s.Item("a")
		if p.Resonance != want {
			t.Errorf("after tap %d: resonance = %d, want %d", i, p.Resonance, want)
		}
		if p.Resonance < 0 {
			t.Fatalf("after tap %d: negative resonance", i)
		}
		if got := p.HasResonated(viewer.UID); got != liked {
			t.Errorf("after tap %d: liked = %v, want %v", i, got, liked)
		}
		if s.Liked("a") != liked {
			t.Errorf("after tap %d: snapshot Liked = %v", i, s.Liked("a"))
		}
	}

	stored := storedPulse(t, h, "a")
	if stored.Resonance != want || stored.HasResonated(viewer.UID) != liked {
		t.Errorf("store = %d/%v, want %d/%v", stored.Resonance, stored.HasResonated(viewer.UID), want, liked)
	}
}

func TestLike_NeverNegative(t *testing.T) {
	h := newHarness(t, Config{})
	h.mount()
	h.signIn("viewer")
	// Inconsistent document: the viewer is listed but the count is zero.
	h.store.Set(h.ctx, model.CollectionPulses, "odd", model.Pulse{
		ID: "odd", UserID: "author", Username: "author", Caption: "odd",
		ResonatedBy: []string{"viewer"}, Echoes: []model.Echo{}, CreatedAt: baseTime,
	})
	h.c.LoadInitial(h.ctx)

	if err := h.c.Like(h.ctx, "odd"); err != nil {
		t.Fatalf("Like failed: %v", err)
	}
	p, _ := h.c.Snapshot().Item("odd")
	if p.Resonance != 0 || p.HasResonated("viewer") {
		t.Errorf("after unlike: resonance=%d liked=%v, want 0 and false", p.Resonance, p.HasResonated("viewer"))
	}
}

func TestLike_OverlappingTapsCountOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.seed(pulseSpec{id: "a"})
	h.mount()
	h.signIn("viewer")
	h.c.LoadInitial(h.ctx)

	// Both taps read the local copy as not liked before either write lands.
	var barrier sync.WaitGroup
	barrier.Add(2)
	h.store.mutateBarrier = &barrier

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.c.Like(h.ctx, "a"); err != nil {
				t.Errorf("Like failed: %v", err)
			}
		}()
	}
	wg.Wait()
	h.store.mutateBarrier = nil

	p := storedPulse(t, h, "a")
	if p.Resonance != len(p.ResonatedBy) || p.Resonance != 1 {
		t.Errorf("resonance=%d resonatedBy=%v, want one like from viewer", p.Resonance, p.ResonatedBy)
	}
}

func TestLike_NotifiesAuthorOnlyOnToggleOn(t *testing.T) {
	h := newHarness(t, Config{})
	h.seed(pulseSpec{id: "a", author: "author"}, pulseSpec{id: "mine", author: "viewer", age: time.Minute})
	h.mount()
	h.signIn("viewer")
	h.c.LoadInitial(h.ctx)

	h.c.Like(h.ctx, "a")    // on
	h.c.Like(h.ctx, "a")    // off
	h.c.Like(h.ctx, "mine") // self

	authorInbox, _ := h.notes.List(h.ctx, "author")
	if len(authorInbox) != 1 || authorInbox[0].Type != model.NotifyResonance || authorInbox[0].PulseID != "a" {
		t.Errorf("author inbox = %+v, want one resonance notification", authorInbox)
	}
	self, _ := h.notes.List(h.ctx, "viewer")
	if len(self) != 0 {
		t.Errorf("self-like produced %d notifications", len(self))
	}
}

func TestLike_SilentNoOps(t *testing.T) {
	tests := []struct {
		name   string
		signIn bool
		id     string
	}{
		{"signed out", false, "a"},
		{"unknown pulse", true, "missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.seed(pulseSpec{id: "a"})
			h.mount()
			if tt.signIn {
				h.signIn("viewer")
			}
			h.c.LoadInitial(h.ctx)

			if err := h.c.Like(h.ctx, tt.id); err != nil {
				t.Fatalf("Like returned %v, want silent no-op", err)
			}
			if p := storedPulse(t, h, "a"); p.Resonance != 0 {
				t.Errorf("resonance = %d, want untouched", p.Resonance)
			}
			if len(h.c.Snapshot().Flags) != 0 {
				t.Error("no animation expected")
			}
		})
	}
}

func TestLike_TapLimiter(t *testing.T) {
	h := newHarness(t, Config{TapRate: rate.Every(time.Hour), TapBurst: 1})
	h.seed(pulseSpec{id: "a"})
	h.mount()
	h.signIn("viewer")
	h.c.LoadInitial(h.ctx)

	h.c.Like(h.ctx, "a")
	h.c.Like(h.ctx, "a") // dropped

	if p := storedPulse(t, h, "a"); p.Resonance != 1 {
		t.Errorf("resonance = %d, want 1 (second tap rate limited)", p.Resonance)
	}
}

func TestLike_FallbackItemIsLocal(t *testing.T) {
	h := newHarness(t, Config{})
	h.mount()
	h.signIn("viewer")
	h.c.LoadInitial(h.ctx)

	before, _ := h.c.Snapshot().Item("trending1")
	if err := h.c.Like(h.ctx, "trending1"); err != nil {
		t.Fatalf("Like failed: %v", err)
	}
	after, _ := h.c.Snapshot().Item("trending1")
	if after.Resonance != before.Resonance+1 || !after.HasResonated("viewer") {
		t.Errorf("resonance %d -> %d, want +1", before.Resonance, after.Resonance)
	}
}

func TestLike_MutationErrorReturned(t *testing.T) {
	h := newHarness(t, Config{})
	h.seed(pulseSpec{id: "a"})
	h.mount()
	h.signIn("viewer")
	h.c.LoadInitial(h.ctx)

	// Removed underneath the feed; the local copy is still listed because
	// it is active.
	h.store.Delete(h.ctx, model.CollectionPulses, "a")

	err := h.c.Like(h.ctx, "a")
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("Like error = %v, want ErrNotFound", err)
	}
	if !h.c.Snapshot().Flagged(ActionLike, "a") {
		t.Error("animation fires before the store answers")
	}
}

func TestFlagsExpire(t *testing.T) {
	h := newHarness(t, Config{FlagTTL: 600 * time.Millisecond})
	h.seed(pulseSpec{id: "a"})
	h.mount()
	h.signIn("viewer")
	h.c.LoadInitial(h.ctx)

	h.c.Like(h.ctx, "a")
	if !h.c.Snapshot().Flagged(ActionLike, "a") {
		t.Fatal("like flag not raised")
	}
	h.clock.Advance(599 * time.Millisecond)
	if !h.c.Snapshot().Flagged(ActionLike, "a") {
		t.Fatal("flag cleared too early")
	}
	h.clock.Advance(time.Millisecond)
	if h.c.Snapshot().Flagged(ActionLike, "a") {
		t.Error("flag still raised after its TTL")
	}
}

func TestAddComment(t *testing.T) {
	h := newHarness(t, Config{})
	h.seed(pulseSpec{id: "a", author: "author"})
	h.mount()
	h.signIn("viewer")
	h.c.LoadInitial(h.ctx)

	h.c.OpenComments("a")
	h.c.SetDraft("a", "  love it  ")
	if got := h.c.Snapshot().Draft; got != "  love it  " {
		t.Fatalf("draft = %q", got)
	}

	if err := h.c.AddComment(h.ctx, "a", h.c.Draft("a")); err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}

	p, _ := h.c.Snapshot().Item("a")
	if len(p.Echoes) != 1 {
		t.Fatalf("echoes = %d, want 1", len(p.Echoes))
	}
	e := p.Echoes[0]
	if e.Content != "love it" || e.UserID != "viewer" || e.ID == "" || !e.CreatedAt.Equal(baseTime) {
		t.Errorf("echo = %+v", e)
	}
	if h.c.Draft("a") != "" {
		t.Error("draft not cleared after success")
	}
	if !h.c.Snapshot().Flagged(ActionEcho, "a") {
		t.Error("echo flag not raised")
	}
	inbox, _ := h.notes.List(h.ctx, "author")
	if len(inbox) != 1 || inbox[0].Type != model.NotifyEcho || inbox[0].Content != "love it" {
		t.Errorf("author inbox = %+v", inbox)
	}
}

func TestAddComment_NoOps(t *testing.T) {
	tests := []struct {
		name   string
		signIn bool
		text   string
	}{
		{"blank", true, "   \n\t"},
		{"empty", true, ""},
		{"signed out", false, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.seed(pulseSpec{id: "a"})
			h.mount()
			if tt.signIn {
				h.signIn("viewer")
			}
			h.c.LoadInitial(h.ctx)
			h.c.SetDraft("a", "keep me")

			if err := h.c.AddComment(h.ctx, "a", tt.text); err != nil {
				t.Fatalf("AddComment returned %v", err)
			}
			if p := storedPulse(t, h, "a"); len(p.Echoes) != 0 {
				t.Errorf("echoes = %d, want 0", len(p.Echoes))
			}
			if h.c.Draft("a") != "keep me" {
				t.Error("draft should survive a no-op")
			}
		})
	}
}

func TestAddComment_FailureKeepsDraft(t *testing.T) {
	h := newHarness(t, Config{})
	h.seed(pulseSpec{id: "a"})
	h.mount()
	h.signIn("viewer")
	h.c.LoadInitial(h.ctx)
	h.c.SetDraft("a", "hello")
	h.store.Delete(h.ctx, model.CollectionPulses, "a")

	if err := h.c.AddComment(h.ctx, "a", "hello"); err == nil {
		t.Fatal("expected an error from the store")
	}
	if h.c.Draft("a") != "hello" {
		t.Error("draft must be kept when the echo was not stored")
	}
}

func TestShare(t *testing.T) {
	tests := []struct {
		name       string
		sharer     share.Sharer
		clipErr    error
		wantMethod share.Method
		wantKind   share.ToastKind
		wantRipple int
	}{
		{"platform", stubSharer{}, nil, share.MethodPlatform, share.ToastSuccess, 1},
		{"platform fails, clipboard", stubSharer{err: errors.New("sheet crashed")}, nil, share.MethodClipboard, share.ToastSuccess, 1},
		{"no platform, clipboard", nil, nil, share.MethodClipboard, share.ToastSuccess, 1},
		{"both fail", stubSharer{err: share.ErrUnavailable}, errors.New("no clipboard"), share.MethodNone, share.ToastError, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{ShareBaseURL: "https://vibe.test/"})
			h.c.sharer = tt.sharer
			h.clip.err = tt.clipErr
			h.seed(pulseSpec{id: "a", author: "author", caption: "look"})
			h.mount()
			h.c.LoadInitial(h.ctx)

			res := h.c.Share(h.ctx, "a")
			if res.Method != tt.wantMethod {
				t.Errorf("method = %s, want %s", res.Method, tt.wantMethod)
			}
			s := h.c.Snapshot()
			if s.Toast == nil || s.Toast.Kind != tt.wantKind {
				t.Errorf("toast = %+v, want kind %s", s.Toast, tt.wantKind)
			}
			if tt.wantMethod == share.MethodClipboard && h.clip.text != "https://vibe.test/pulse/a" {
				t.Errorf("clipboard = %q", h.clip.text)
			}
			if p := storedPulse(t, h, "a"); p.Ripples != tt.wantRipple {
				t.Errorf("ripples = %d, want %d", p.Ripples, tt.wantRipple)
			}
		})
	}
}

func TestShare_ToastExpires(t *testing.T) {
	h := newHarness(t, Config{ToastTTL: 5 * time.Second})
	h.seed(pulseSpec{id: "a"})
	h.mount()
	h.c.LoadInitial(h.ctx)

	h.c.Share(h.ctx, "a")
	h.clock.Advance(3 * time.Second)
	h.c.Share(h.ctx, "a") // restarts the countdown
	h.clock.Advance(3 * time.Second)
	if h.c.Snapshot().Toast == nil {
		t.Fatal("second toast expired with the first one's timer")
	}
	h.clock.Advance(2 * time.Second)
	if h.c.Snapshot().Toast != nil {
		t.Error("toast still visible after its TTL")
	}
}

func TestSaveUnsaveRoundTrip(t *testing.T) {
	h := newHarness(t, Config{})
	h.seed(pulseSpec{id: "a"}, pulseSpec{id: "b", age: time.Minute})
	h.mount()
	h.signIn("viewer", "b", "z")
	h.c.LoadInitial(h.ctx)

	before := h.c.Snapshot().Viewer.Favorites

	if err := h.c.Save(h.ctx, "a"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !h.c.Snapshot().Saved("a") {
		t.Fatal("a not saved")
	}
	if err := h.c.Unsave(h.ctx, "a"); err != nil {
		t.Fatalf("Unsave failed: %v", err)
	}

	after := h.c.Snapshot().Viewer.Favorites
	if !equalStrings(after, before) {
		t.Errorf("favorites = %v, want %v", after, before)
	}
	doc, _ := h.store.Get(h.ctx, model.CollectionUsers, "viewer")
	var u model.User
	doc.Decode(&u)
	if !equalStrings(u.Favorites, before) {
		t.Errorf("stored favorites = %v, want %v", u.Favorites, before)
	}
}

func TestSave_IndependentOfLike(t *testing.T) {
	h := newHarness(t, Config{})
	h.seed(pulseSpec{id: "a"})
	h.mount()
	h.signIn("viewer")
	h.c.LoadInitial(h.ctx)

	h.c.Save(h.ctx, "a")
	s := h.c.Snapshot()
	if s.Liked("a") {
		t.Error("saving must not like")
	}
	p, _ := s.Item("a")
	if p.Resonance != 0 {
		t.Errorf("resonance = %d after save", p.Resonance)
	}
}

func TestToggleSave(t *testing.T) {
	h := newHarness(t, Config{})
	h.seed(pulseSpec{id: "a"})
	h.mount()
	h.signIn("viewer")
	h.c.LoadInitial(h.ctx)
	ctx := context.Background()

	h.c.ToggleSave(ctx, "a")
	if !h.c.Snapshot().Saved("a") {
		t.Fatal("first toggle should save")
	}
	h.c.ToggleSave(ctx, "a")
	if h.c.Snapshot().Saved("a") {
		t.Error("second toggle should unsave")
	}
}

func TestSave_SignedOutIsNoOp(t *testing.T) {
	h := newHarness(t, Config{})
	h.mount()
	if err := h.c.Save(h.ctx, "a"); err != nil {
		t.Errorf("Save returned %v, want nil", err)
	}
}
