package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/vibesphere/internal/docstore"
	"github.com/abelbrown/vibesphere/internal/logging"
	"github.com/abelbrown/vibesphere/internal/model"
	"github.com/abelbrown/vibesphere/internal/otel"
	"github.com/abelbrown/vibesphere/internal/share"
)

// ErrUnmounted is returned for work that finished after Unmount. The result
// has been discarded.
var ErrUnmounted = errors.New("feed: controller unmounted")

// Viewer is the current-viewer observable.
type Viewer interface {
	Current() *model.User
	Subscribe(fn func(*model.User)) (unsubscribe func())
}

// History persists recent search queries.
type History interface {
	SearchHistory() ([]string, error)
	AddSearch(q string) ([]string, error)
	ClearSearchHistory() error
}

// Notifier delivers activity notifications to Pulse authors.
type Notifier interface {
	Publish(ctx context.Context, n model.Notification) error
}

// Config tunes the controller.
type Config struct {
	PageSize      int
	Debounce      time.Duration // index-change coalescing window
	FlagTTL       time.Duration // animation flag lifetime
	ToastTTL      time.Duration
	LoadThreshold float64 // distance from content end that triggers LoadMore
	ShareBaseURL  string

	// TapRate limits like and save taps. Zero means unlimited.
	TapRate  rate.Limit
	TapBurst int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		PageSize:      20,
		Debounce:      150 * time.Millisecond,
		FlagTTL:       600 * time.Millisecond,
		ToastTTL:      5 * time.Second,
		LoadThreshold: 1000,
		ShareBaseURL:  "https://vibesphere.app",
		TapRate:       rate.Every(100 * time.Millisecond),
		TapBurst:      3,
	}
}

// Deps are the controller's collaborators. Store is required; everything
// else may be nil.
type Deps struct {
	Store     docstore.Store
	Viewer    Viewer
	History   History
	Sharer    share.Sharer
	Clipboard share.Clipboard
	Notifier  Notifier
	Media     Media
	Events    *otel.Logger
	Clock     Clock

	// OnChange is called after every state change, outside the lock.
	OnChange func()
}

// Controller is the feed state machine. Safe for concurrent use; backend
// and media calls are made without holding the lock.
type Controller struct {
	cfg      Config
	store    docstore.Store
	viewerOb Viewer
	history  History
	sharer   share.Sharer
	clip     share.Clipboard
	notifier Notifier
	media    Media
	events   *otel.Logger
	clock    Clock
	onChange func()
	limiter  *rate.Limiter
	flags    *Flags

	mu          sync.Mutex
	items       []model.Pulse
	cursor      string
	exhausted   bool
	fallback    bool
	loading     bool
	loadingMore bool
	epoch       uint64 // bumped whenever items is replaced
	lastErr     error

	playback    Playback
	target      int
	debounce    Timer
	debounceSeq uint64

	searching bool
	query     string
	recent    []string
	users     []model.User

	viewer        *model.User
	drafts        map[string]string
	commentsFor   string
	searchOverlay bool

	toast      *share.Toast
	toastTimer Timer
	toastSeq   uint64

	gen         uint64
	mounted     bool
	torn        bool
	sub         *docstore.Subscription
	subCancel   context.CancelFunc
	unsubViewer func()
}

// New creates a controller. Call Mount before handing it to the UI.
func New(cfg Config, deps Deps) *Controller {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.FlagTTL <= 0 {
		cfg.FlagTTL = def.FlagTTL
	}
	if cfg.ToastTTL <= 0 {
		cfg.ToastTTL = def.ToastTTL
	}
	if cfg.LoadThreshold <= 0 {
		cfg.LoadThreshold = def.LoadThreshold
	}
	if cfg.ShareBaseURL == "" {
		cfg.ShareBaseURL = def.ShareBaseURL
	}
	if cfg.TapRate == 0 {
		cfg.TapRate = rate.Inf
	}
	if cfg.TapBurst <= 0 {
		cfg.TapBurst = 1
	}

	clock := deps.Clock
	if clock == nil {
		clock = realClock{}
	}
	media := deps.Media
	if media == nil {
		media = nopMedia{}
	}

	c := &Controller{
		cfg:      cfg,
		store:    deps.Store,
		viewerOb: deps.Viewer,
		history:  deps.History,
		sharer:   deps.Sharer,
		clip:     deps.Clipboard,
		notifier: deps.Notifier,
		media:    media,
		events:   deps.Events,
		clock:    clock,
		onChange: deps.OnChange,
		limiter:  rate.NewLimiter(cfg.TapRate, cfg.TapBurst),
		drafts:   make(map[string]string),
	}
	c.flags = NewFlags(clock, cfg.FlagTTL, c.changed)

	if c.viewerOb != nil {
		c.viewer = c.viewerOb.Current()
	}
	if c.history != nil {
		h, err := c.history.SearchHistory()
		if err != nil {
			logging.Warn("feed: reading search history", "error", err)
		}
		c.recent = h
	}
	return c
}

// Mount starts the viewer subscription and the live pulses subscription.
// Mounting an already mounted controller is a no-op.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.mounted && !c.torn {
		c.mu.Unlock()
		return nil
	}
	c.mounted = true
	c.torn = false
	c.gen++
	c.loading = false
	c.loadingMore = false
	c.mu.Unlock()
	c.flags.Reset()

	// Subscribe calls back synchronously, so the lock must not be held.
	if c.viewerOb != nil {
		unsub := c.viewerOb.Subscribe(c.setViewer)
		c.mu.Lock()
		c.unsubViewer = unsub
		c.mu.Unlock()
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub, err := c.store.Subscribe(subCtx, model.CollectionPulses, nil)
	if err != nil {
		cancel()
		logging.Warn("feed: live subscription unavailable", "error", err)
		c.events.Error(otel.KindStoreError, "feed", err)
		return fmt.Errorf("subscribe pulses: %w", err)
	}

	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		cancel()
		sub.Close()
		return ErrUnmounted
	}
	c.sub = sub
	c.subCancel = cancel
	gen := c.gen
	c.mu.Unlock()

	go c.consume(sub, gen)
	return nil
}

// Unmount releases subscriptions, stops timers and pauses the active
// player. Results of requests still in flight are discarded.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	c.torn = true
	c.gen++
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	if c.toastTimer != nil {
		c.toastTimer.Stop()
		c.toastTimer = nil
	}
	c.toast = nil
	sub, cancel, unsub := c.sub, c.subCancel, c.unsubViewer
	c.sub, c.subCancel, c.unsubViewer = nil, nil, nil
	active := c.playback
	c.mu.Unlock()

	c.flags.Stop()
	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Close()
	}
	if unsub != nil {
		unsub()
	}
	if active.Phase != PhaseIdle {
		c.media.Pause(active.Index)
	}
}

func (c *Controller) consume(sub *docstore.Subscription, gen uint64) {
	defer logging.Recover("feed.consume")
	for snap := range sub.C {
		c.merge(gen, snap.Docs)
	}
}

func (c *Controller) setViewer(u *model.User) {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	if u != nil {
		pub := u.Public()
		u = &pub
	}
	c.viewer = u
	c.mu.Unlock()
	c.changed()
}

// LoadInitial replaces the list with the newest page. An empty store yields
// the Trending list. On error the current list is kept.
func (c *Controller) LoadInitial(ctx context.Context) error {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return ErrUnmounted
	}
	gen := c.gen
	c.loading = true
	c.mu.Unlock()
	c.changed()

	start := time.Now()
	page, err := c.fetchPage(ctx, "")

	c.mu.Lock()
	if c.stale(gen) {
		c.mu.Unlock()
		c.events.Emit(otel.Event{Kind: otel.KindFeedStale, Comp: "feed", Msg: "initial page"})
		return ErrUnmounted
	}
	c.loading = false
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		c.readFailed("load initial", err)
		c.changed()
		return err
	}

	items := page.Items
	fallback := len(items) == 0
	if fallback {
		items = Trending(c.clock.Now())
	}
	c.items = items
	c.cursor = page.Cursor
	c.exhausted = fallback || len(page.Items) < c.cfg.PageSize || page.Cursor == ""
	c.fallback = fallback
	c.searching = false
	c.query = ""
	c.lastErr = nil
	c.epoch++
	refs, n := refsOf(c.items), len(c.items)
	from, to := c.resetPlaybackLocked()
	c.mu.Unlock()
	c.transitioned(from, to)

	kind := otel.KindFeedLoad
	if fallback {
		kind = otel.KindFeedFallback
	}
	c.events.Emit(otel.Event{Kind: kind, Comp: "feed", Count: n, Dur: time.Since(start)})
	logging.Debug("feed: initial load", "items", n, "fallback", fallback)

	c.media.Load(refs)
	c.changed()
	if n > 0 {
		c.activate(0, n)
	}
	return nil
}

// LoadMore appends the next page. At most one request is in flight; calls
// while one is running, while searching, or after the last page are no-ops.
func (c *Controller) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return ErrUnmounted
	}
	if c.loadingMore || c.searching || c.exhausted || c.cursor == "" {
		c.mu.Unlock()
		return nil
	}
	c.loadingMore = true
	gen, epoch, cursor := c.gen, c.epoch, c.cursor
	c.mu.Unlock()
	c.changed()

	start := time.Now()
	page, err := c.fetchPage(ctx, cursor)

	c.mu.Lock()
	if c.stale(gen) {
		c.mu.Unlock()
		c.events.Emit(otel.Event{Kind: otel.KindFeedStale, Comp: "feed", Msg: "next page", Count: len(page.Items)})
		return ErrUnmounted
	}
	c.loadingMore = false
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		c.readFailed("load more", err)
		c.changed()
		return err
	}
	if epoch != c.epoch {
		// The list was replaced while the page was in flight.
		c.mu.Unlock()
		c.changed()
		return nil
	}

	seen := make(map[string]bool, len(c.items))
	for _, p := range c.items {
		seen[p.ID] = true
	}
	for _, p := range page.Items {
		if !seen[p.ID] {
			c.items = append(c.items, p)
		}
	}
	c.cursor = page.Cursor
	c.exhausted = len(page.Items) < c.cfg.PageSize || page.Cursor == ""
	c.lastErr = nil
	refs := refsOf(c.items)
	exhausted := c.exhausted
	c.mu.Unlock()

	c.events.Emit(otel.Event{Kind: otel.KindFeedPage, Comp: "feed", Count: len(page.Items), Dur: time.Since(start)})
	logging.Debug("feed: page appended", "items", len(page.Items), "exhausted", exhausted)

	c.media.Load(refs)
	c.changed()
	return nil
}

// Scroll is a scroll position report from the view.
type Scroll struct {
	Offset         float64
	ViewportHeight float64
	ContentHeight  float64
}

// OnScroll derives the active index from the scroll offset and prefetches
// the next page near the end of the content. Errors are logged, never
// returned.
func (c *Controller) OnScroll(ctx context.Context, s Scroll) {
	if s.ViewportHeight <= 0 {
		return
	}
	idx := int(math.Round(s.Offset / s.ViewportHeight))

	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	move := idx != c.target && idx >= 0 && idx < len(c.items)
	more := !c.exhausted && !c.searching && c.cursor != "" && !c.loadingMore
	c.mu.Unlock()

	if move {
		c.SetActiveIndex(idx)
	}
	if more && s.Offset+s.ViewportHeight >= s.ContentHeight-c.cfg.LoadThreshold {
		if err := c.LoadMore(ctx); err != nil && !errors.Is(err, ErrUnmounted) {
			logging.Debug("feed: scroll prefetch failed", "error", err)
		}
	}
}

// SetActiveIndex schedules a transition to item i. Calls inside the
// debounce window replace each other; only the last one takes effect.
func (c *Controller) SetActiveIndex(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.torn || i < 0 || i >= len(c.items) {
		return
	}
	c.target = i
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounceSeq++
	seq := c.debounceSeq
	c.debounce = c.clock.AfterFunc(c.cfg.Debounce, func() { c.fireIndex(seq) })
}

// Next and Prev move the target one item down or up.
func (c *Controller) Next() { c.step(1) }
func (c *Controller) Prev() { c.step(-1) }

func (c *Controller) step(d int) {
	c.mu.Lock()
	i := c.target + d
	c.mu.Unlock()
	c.SetActiveIndex(i)
}

func (c *Controller) fireIndex(seq uint64) {
	c.mu.Lock()
	if c.torn || seq != c.debounceSeq {
		c.mu.Unlock()
		return
	}
	c.debounce = nil
	j := c.target
	if j >= len(c.items) || (j == c.playback.Index && c.playback.Phase != PhaseIdle) {
		c.mu.Unlock()
		return
	}
	from := c.playback
	c.playback.Index = j
	c.playback.Phase = PhaseBuffering
	c.playback.WantPlay = true
	to := c.playback
	n := len(c.items)
	c.mu.Unlock()

	c.transitioned(from, to)
	c.changed()
	c.activate(j, n)
}

// activate pauses and rewinds every player but j and starts j if it is
// already buffered.
func (c *Controller) activate(j, n int) {
	for k := 0; k < n; k++ {
		if k != j {
			c.media.Pause(k)
			c.media.Rewind(k)
		}
	}
	if c.media.Ready(j) {
		c.play(j)
	}
}

func (c *Controller) play(i int) {
	err := c.media.Play(i)

	c.mu.Lock()
	if c.torn || c.playback.Index != i || c.playback.Phase == PhaseIdle || !c.playback.WantPlay {
		c.mu.Unlock()
		return
	}
	from := c.playback
	if err != nil {
		c.playback.Phase = PhasePaused
		c.playback.WantPlay = false
	} else {
		c.playback.Phase = PhasePlaying
	}
	to := c.playback
	c.mu.Unlock()

	if err != nil {
		logging.Debug("feed: play rejected", "index", i, "error", err)
		c.events.Emit(otel.Event{Kind: otel.KindPlaybackError, Level: otel.LevelWarn, Comp: "feed", Index: otel.At(i), Err: err.Error()})
	}
	c.transitioned(from, to)
	c.changed()
}

// MediaReady reports that player i has buffered enough to play.
func (c *Controller) MediaReady(i int) {
	c.mu.Lock()
	ok := !c.torn && c.playback.Index == i && c.playback.Phase == PhaseBuffering && c.playback.WantPlay
	c.mu.Unlock()
	if ok {
		c.play(i)
	}
}

// MediaPlaying reports that player i started on its own.
func (c *Controller) MediaPlaying(i int) {
	c.setPhase(i, PhasePlaying, func(p Phase) bool { return p == PhaseBuffering || p == PhasePaused })
}

// MediaPaused reports that player i stopped on its own, for example because
// autoplay was blocked.
func (c *Controller) MediaPaused(i int) {
	c.setPhase(i, PhasePaused, func(p Phase) bool { return p == PhasePlaying })
}

// MediaFailed reports a decode or network error on player i.
func (c *Controller) MediaFailed(i int, err error) {
	c.setPhase(i, PhasePaused, func(p Phase) bool { return p != PhaseIdle })
	if err != nil {
		c.events.Emit(otel.Event{Kind: otel.KindPlaybackError, Level: otel.LevelWarn, Comp: "feed", Index: otel.At(i), Err: err.Error()})
	}
}

func (c *Controller) setPhase(i int, to Phase, from func(Phase) bool) {
	c.mu.Lock()
	if c.torn || c.playback.Index != i || !from(c.playback.Phase) {
		c.mu.Unlock()
		return
	}
	before := c.playback
	c.playback.Phase = to
	c.playback.WantPlay = to == PhasePlaying
	after := c.playback
	c.mu.Unlock()

	c.transitioned(before, after)
	c.changed()
}

// TogglePlay handles a tap on the active item. A paused item only resumes
// if its player is ready; otherwise the tap is dropped.
func (c *Controller) TogglePlay() {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	pb := c.playback
	switch pb.Phase {
	case PhasePlaying:
		c.playback.Phase = PhasePaused
		c.playback.WantPlay = false
		after := c.playback
		c.mu.Unlock()
		c.media.Pause(pb.Index)
		c.transitioned(pb, after)
		c.changed()

	case PhasePaused:
		c.mu.Unlock()
		if !c.media.Ready(pb.Index) {
			return
		}
		c.mu.Lock()
		if c.playback.Index != pb.Index || c.playback.Phase != PhasePaused {
			c.mu.Unlock()
			return
		}
		c.playback.WantPlay = true
		c.mu.Unlock()
		c.play(pb.Index)

	case PhaseBuffering:
		c.playback.WantPlay = !c.playback.WantPlay
		c.mu.Unlock()
		c.changed()

	default:
		c.mu.Unlock()
	}
}

// ToggleMute flips the mute flag on every player. Playback is unaffected.
func (c *Controller) ToggleMute() {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	c.playback.Muted = !c.playback.Muted
	muted := c.playback.Muted
	c.mu.Unlock()

	c.media.SetMuted(muted)
	c.changed()
}

// resetPlaybackLocked puts the new list at index 0 and returns the states
// before and after. Caller holds mu.
func (c *Controller) resetPlaybackLocked() (from, to Playback) {
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	c.debounceSeq++
	from = c.playback
	c.target = 0
	c.playback = Playback{Muted: from.Muted}
	if len(c.items) > 0 {
		c.playback.Phase = PhaseBuffering
		c.playback.WantPlay = true
	}
	return from, c.playback
}

func (c *Controller) transitioned(from, to Playback) {
	if from == to {
		return
	}
	c.events.Emit(otel.Event{
		Kind:  otel.KindPlaybackTransition,
		Level: otel.LevelDebug,
		Comp:  "feed",
		Index: otel.At(to.Index),
		Phase: to.Phase.String(),
		Msg:   from.String() + " -> " + to.String(),
	})
}

func (c *Controller) fetchPage(ctx context.Context, cursor string) (model.FeedPage, error) {
	page, err := c.store.QueryPage(ctx, docstore.Query{
		Collection: model.CollectionPulses,
		OrderBy:    "createdAt",
		Descending: true,
		Cursor:     cursor,
		Limit:      c.cfg.PageSize,
	})
	if err != nil {
		return model.FeedPage{}, fmt.Errorf("query pulses: %w", err)
	}
	out := model.FeedPage{Cursor: page.Cursor, Items: make([]model.Pulse, 0, len(page.Docs))}
	for _, d := range page.Docs {
		p, err := decodePulse(d)
		if err != nil {
			logging.Warn("feed: skipping undecodable pulse", "id", d.ID, "error", err)
			continue
		}
		out.Items = append(out.Items, p)
	}
	return out, nil
}

func decodePulse(d docstore.Document) (model.Pulse, error) {
	var p model.Pulse
	if err := d.Decode(&p); err != nil {
		return model.Pulse{}, err
	}
	p.ID = d.ID
	p.Version = d.Version
	if p.CreatedAt.IsZero() {
		p.CreatedAt = d.CreatedAt
	}
	return p, nil
}

// stale reports whether a request started under gen must be discarded.
// Caller holds mu.
func (c *Controller) stale(gen uint64) bool {
	return c.torn || c.gen != gen
}

func (c *Controller) readFailed(op string, err error) {
	logging.Warn("feed: "+op+" failed", "error", err)
	c.events.Emit(otel.Event{Kind: otel.KindFeedError, Level: otel.LevelError, Comp: "feed", Msg: op, Err: err.Error()})
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

func (c *Controller) indexOfLocked(id string) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

func refsOf(items []model.Pulse) []PulseRef {
	refs := make([]PulseRef, len(items))
	for i, p := range items {
		refs[i] = PulseRef{ID: p.ID, VideoURL: p.VideoURL, Duration: p.Duration}
	}
	return refs
}

type nopMedia struct{}

func (nopMedia) Load([]PulseRef) {}
func (nopMedia) Play(int) error  { return nil }
func (nopMedia) Pause(int)       {}
func (nopMedia) Rewind(int)      {}
func (nopMedia) Ready(int) bool  { return false }
func (nopMedia) SetMuted(bool)   {}
