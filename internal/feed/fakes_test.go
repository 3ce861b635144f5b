package feed

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abelbrown/vibesphere/internal/docstore"
	"github.com/abelbrown/vibesphere/internal/model"
	"github.com/abelbrown/vibesphere/internal/notify"
	"github.com/abelbrown/vibesphere/internal/prefs"
	"github.com/abelbrown/vibesphere/internal/share"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// manualClock fires timers only from Advance.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock *manualClock
	at    time.Time
	f     func()
	done  bool
}

func newManualClock() *manualClock { return &manualClock{now: baseTime} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.done
	t.done = true
	return was
}

// Advance moves time forward and runs every timer that came due, in order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	live := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.done:
		case !t.at.After(c.now):
			t.done = true
			due = append(due, t)
		default:
			live = append(live, t)
		}
	}
	c.timers = live
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

func (c *manualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// recordingMedia is a scripted player.
type recordingMedia struct {
	mu      sync.Mutex
	ready   map[int]bool
	allOK   bool
	playErr error
	plays   []int
	pauses  []int
	rewinds []int
	muted   bool
	loaded  []PulseRef
}

func newRecordingMedia() *recordingMedia {
	return &recordingMedia{ready: make(map[int]bool)}
}

func (m *recordingMedia) Load(items []PulseRef) {
	m.mu.Lock()
	m.loaded = items
	m.mu.Unlock()
}

func (m *recordingMedia) Play(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays = append(m.plays, i)
	return m.playErr
}

func (m *recordingMedia) Pause(i int) {
	m.mu.Lock()
	m.pauses = append(m.pauses, i)
	m.mu.Unlock()
}

func (m *recordingMedia) Rewind(i int) {
	m.mu.Lock()
	m.rewinds = append(m.rewinds, i)
	m.mu.Unlock()
}

func (m *recordingMedia) Ready(i int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allOK || m.ready[i]
}

func (m *recordingMedia) SetMuted(v bool) {
	m.mu.Lock()
	m.muted = v
	m.mu.Unlock()
}

func (m *recordingMedia) setReady(all bool) {
	m.mu.Lock()
	m.allOK = all
	m.mu.Unlock()
}

func (m *recordingMedia) reset() {
	m.mu.Lock()
	m.plays, m.pauses, m.rewinds = nil, nil, nil
	m.mu.Unlock()
}

func (m *recordingMedia) Plays() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.plays...)
}

func (m *recordingMedia) Loaded() []PulseRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PulseRef(nil), m.loaded...)
}

func (m *recordingMedia) Pauses() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.pauses...)
}

// gatedStore counts page queries and can hold them until released.
type gatedStore struct {
	*docstore.SQLite

	queries  atomic.Int32
	gate     chan struct{}
	started  chan struct{}
	queryErr error
	scanErr  error

	// mutateBarrier holds each Mutate until every caller it counts has
	// arrived.
	mutateBarrier *sync.WaitGroup
}

func (s *gatedStore) QueryPage(ctx context.Context, q docstore.Query) (docstore.Page, error) {
	s.queries.Add(1)
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	if s.queryErr != nil {
		return docstore.Page{}, s.queryErr
	}
	return s.SQLite.QueryPage(ctx, q)
}

func (s *gatedStore) Mutate(ctx context.Context, collection, id string, patch docstore.Patch) (docstore.Document, error) {
	if s.mutateBarrier != nil {
		s.mutateBarrier.Done()
		s.mutateBarrier.Wait()
	}
	return s.SQLite.Mutate(ctx, collection, id, patch)
}

func (s *gatedStore) Scan(ctx context.Context, collection string, f docstore.Filter) ([]docstore.Document, error) {
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	return s.SQLite.Scan(ctx, collection, f)
}

// staticViewer is a viewer observable with a settable user.
type staticViewer struct {
	mu   sync.Mutex
	user *model.User
	fns  map[int]func(*model.User)
	next int
}

func (v *staticViewer) Current() *model.User {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.user == nil {
		return nil
	}
	u := v.user.Public()
	return &u
}

func (v *staticViewer) Subscribe(fn func(*model.User)) func() {
	v.mu.Lock()
	if v.fns == nil {
		v.fns = make(map[int]func(*model.User))
	}
	id := v.next
	v.next++
	v.fns[id] = fn
	v.mu.Unlock()

	fn(v.Current())
	return func() {
		v.mu.Lock()
		delete(v.fns, id)
		v.mu.Unlock()
	}
}

func (v *staticViewer) Set(u *model.User) {
	v.mu.Lock()
	v.user = u
	fns := make([]func(*model.User), 0, len(v.fns))
	for _, fn := range v.fns {
		fns = append(fns, fn)
	}
	v.mu.Unlock()
	for _, fn := range fns {
		fn(v.Current())
	}
}

func (v *staticViewer) Listeners() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.fns)
}

type stubSharer struct{ err error }

func (s stubSharer) Share(context.Context, share.Payload) error { return s.err }

type stubClipboard struct {
	mu   sync.Mutex
	text string
	err  error
}

func (c *stubClipboard) WriteText(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.text = s
	return nil
}

var errBackend = errors.New("backend unavailable")

type harness struct {
	t      *testing.T
	ctx    context.Context
	store  *gatedStore
	clock  *manualClock
	media  *recordingMedia
	viewer *staticViewer
	prefs  *prefs.Store
	notes  *notify.Service
	clip   *stubClipboard
	c      *Controller
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	st, err := docstore.Open(":memory:")
	if err != nil {
		t.Fatalf("docstore.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	pf, err := prefs.Open(":memory:")
	if err != nil {
		t.Fatalf("prefs.Open failed: %v", err)
	}
	t.Cleanup(func() { pf.Close() })

	h := &harness{
		t:      t,
		ctx:    context.Background(),
		store:  &gatedStore{SQLite: st},
		clock:  newManualClock(),
		media:  newRecordingMedia(),
		viewer: &staticViewer{},
		prefs:  pf,
		notes:  notify.New(st),
		clip:   &stubClipboard{},
	}
	h.c = New(cfg, Deps{
		Store:     h.store,
		Viewer:    h.viewer,
		History:   pf,
		Clipboard: h.clip,
		Notifier:  h.notes,
		Media:     h.media,
		Clock:     h.clock,
	})
	t.Cleanup(h.c.Unmount)
	return h
}

func (h *harness) mount() {
	h.t.Helper()
	if err := h.c.Mount(h.ctx); err != nil {
		h.t.Fatalf("Mount failed: %v", err)
	}
}

// signIn stores a user document and makes it the viewer.
func (h *harness) signIn(uid string, favorites ...string) model.User {
	h.t.Helper()
	u := model.User{
		UID:        uid,
		Username:   uid,
		Email:      uid + "@example.com",
		Tribe:      []string{},
		VibingWith: []string{},
		Favorites:  append([]string{}, favorites...),
		CreatedAt:  baseTime,
	}
	if _, err := h.store.Set(h.ctx, model.CollectionUsers, uid, u); err != nil {
		h.t.Fatalf("Set user failed: %v", err)
	}
	h.viewer.Set(&u)
	return u
}

type pulseSpec struct {
	id      string
	author  string
	caption string
	tags    []string
	age     time.Duration
}

func (h *harness) seed(ps ...pulseSpec) {
	h.t.Helper()
	for _, s := range ps {
		author := s.author
		if author == "" {
			author = "author"
		}
		p := model.Pulse{
			ID:          s.id,
			UserID:      author,
			Username:    author,
			VideoURL:    "file:///videos/" + s.id + ".mp4",
			Caption:     s.caption,
			Tags:        s.tags,
			ResonatedBy: []string{},
			Echoes:      []model.Echo{},
			Duration:    15,
			CreatedAt:   baseTime.Add(-s.age),
		}
		if _, err := h.store.Set(h.ctx, model.CollectionPulses, s.id, p); err != nil {
			h.t.Fatalf("seed %s failed: %v", s.id, err)
		}
	}
}

// seedN stores n pulses p00..p(n-1), p00 newest.
func (h *harness) seedN(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.seed(pulseSpec{id: pulseID(i), caption: "pulse " + pulseID(i), age: time.Duration(i) * time.Minute})
	}
}

func pulseID(i int) string {
	return "p" + string(rune('0'+i/10)) + string(rune('0'+i%10))
}

func ids(ps []model.Pulse) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
