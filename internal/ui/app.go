package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/vibesphere/internal/feed"
	"github.com/abelbrown/vibesphere/internal/model"
	"github.com/abelbrown/vibesphere/internal/otel"
	"github.com/abelbrown/vibesphere/internal/share"
)

// pageHeight is the virtual height of one card in scroll units. The feed
// controller measures its prefetch threshold in the same units.
const pageHeight = 800.0

// playerTickInterval refreshes the progress bar.
const playerTickInterval = 250 * time.Millisecond

// Feed is the feed controller as the UI drives it.
type Feed interface {
	Mount(ctx context.Context) error
	LoadInitial(ctx context.Context) error
	OnScroll(ctx context.Context, s feed.Scroll)
	Snapshot() feed.Snapshot

	TogglePlay()
	ToggleMute()
	MediaReady(i int)

	Like(ctx context.Context, id string) error
	AddComment(ctx context.Context, id, text string) error
	SetDraft(id, text string)
	Share(ctx context.Context, id string) share.Result
	ToggleSave(ctx context.Context, id string) error
	DismissToast()

	Search(ctx context.Context, q string) error
	ClearHistory() error
	SearchUsers(ctx context.Context, q string) ([]model.User, error)
	SetSearchOverlay(open bool)
	OpenComments(id string)
	CloseComments()
}

// AppConfig holds the collaborators of the App. Only Feed is required.
type AppConfig struct {
	Ctx    context.Context
	Feed   Feed
	Player *Player // nil disables simulated buffering and the progress bar

	LoadWaves   func() tea.Cmd
	Follow      func(uid string) tea.Cmd
	MarkAllRead func() tea.Cmd

	Events    *otel.Logger
	Ring      *otel.RingBuffer
	ShowDebug bool
	Now       func() time.Time
}

type viewMode int

const (
	modeFeed viewMode = iota
	modeSearch
	modeComments
	modeInbox
	modeWaves
)

// App is the root Bubble Tea model.
// IMPORTANT: App does NOT hold the document store. Everything it shows
// comes from feed snapshots and relayed messages.
type App struct {
	ctx         context.Context
	feed        Feed
	player      *Player
	loadWaves   func() tea.Cmd
	follow      func(uid string) tea.Cmd
	markAllRead func() tea.Cmd
	events      *otel.Logger
	ring        *otel.RingBuffer
	now         func() time.Time

	snap    feed.Snapshot
	listKey string // identifies the current list so a new list resets pos
	pos     int    // index the view is scrolled to
	buffer  int    // index a buffering command is pending for, -1 when none

	mode          viewMode
	input         textinput.Model
	usersMode     bool
	historyCursor int
	userCursor    int
	commentsFor   string

	inbox       []model.Notification
	unread      int
	inboxCursor int
	viewer      *model.User

	waves         []model.Pulse
	wavesFallback bool
	wavesLoading  bool
	wavesCursor   int

	spinner spinner.Model
	bar     progress.Model

	status string // last interaction error, cleared on the next key
	width  int
	height int
	ready  bool
	debug  bool
	focus  int // index into debugFocuses
}

// NewApp creates an App from cfg.
func NewApp(cfg AppConfig) App {
	ctx := cfg.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	ti := textinput.New()
	ti.CharLimit = 280
	ti.Prompt = "› "

	s := spinner.New()
	s.Spinner = spinner.Dot

	return App{
		ctx:           ctx,
		feed:          cfg.Feed,
		player:        cfg.Player,
		loadWaves:     cfg.LoadWaves,
		follow:        cfg.Follow,
		markAllRead:   cfg.MarkAllRead,
		events:        cfg.Events,
		ring:          cfg.Ring,
		now:           now,
		buffer:        -1,
		input:         ti,
		historyCursor: -1,
		spinner:       s,
		bar:           progress.New(progress.WithGradient("#7D56F4", "#FF5FAF"), progress.WithoutPercentage()),
		debug:         cfg.ShowDebug && cfg.Ring != nil,
	}
}

// Init mounts the feed and loads the first page.
func (a App) Init() tea.Cmd {
	if a.feed == nil {
		return nil
	}
	f, ctx := a.feed, a.ctx
	load := func() tea.Msg {
		if err := f.Mount(ctx); err != nil {
			return ActionDone{Action: "mount", Err: err}
		}
		if err := f.LoadInitial(ctx); err != nil {
			return ActionDone{Action: "load", Err: err}
		}
		return FeedChanged{Snapshot: f.Snapshot()}
	}
	return tea.Batch(load, a.spinner.Tick, playerTick())
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.input.Width = overlayWidth(msg.Width) - 6
		a.bar.Width = msg.Width - 20
		if a.bar.Width < 10 {
			a.bar.Width = 10
		}
		return a, nil

	case FeedChanged:
		return a.applySnapshot(msg.Snapshot)

	case ViewerChanged:
		a.viewer = msg.Viewer
		return a, nil

	case InboxUpdated:
		a.inbox = msg.Items
		a.unread = msg.Unread
		if a.inboxCursor >= len(a.inbox) {
			a.inboxCursor = 0
		}
		return a, nil

	case WavesLoaded:
		a.wavesLoading = false
		if msg.Err != nil {
			a.status = "waves: " + msg.Err.Error()
			return a, nil
		}
		a.waves = msg.Waves
		a.wavesFallback = msg.Fallback
		a.wavesCursor = 0
		return a, nil

	case UsersFound:
		if msg.Err != nil {
			a.status = "people search: " + msg.Err.Error()
		}
		a.userCursor = 0
		return a.applySnapshot(a.feed.Snapshot())

	case Shared:
		return a.applySnapshot(a.feed.Snapshot())

	case ActionDone:
		if msg.Err != nil {
			a.status = msg.Action + ": " + msg.Err.Error()
			a.events.Error(otel.KindError, "ui", msg.Err)
		}
		if a.feed == nil {
			return a, nil
		}
		return a.applySnapshot(a.feed.Snapshot())

	case Buffered:
		if a.buffer == msg.Index {
			a.buffer = -1
		}
		if a.player != nil && a.player.MarkBuffered(msg) {
			a.feed.MediaReady(msg.Index)
			return a.applySnapshot(a.feed.Snapshot())
		}
		return a, nil

	case PlayerTick:
		return a, playerTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	if a.mode == modeSearch || a.mode == modeComments {
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd
	}
	return a, nil
}

// applySnapshot takes a new feed state and starts buffering the active
// item when the simulated player has not got it yet.
func (a App) applySnapshot(s feed.Snapshot) (tea.Model, tea.Cmd) {
	a.snap = s
	if s.Viewer != nil || a.viewer == nil {
		a.viewer = s.Viewer
	}

	key := listKey(s)
	if key != a.listKey {
		a.listKey = key
		a.pos = s.Target
	}
	if a.pos >= len(s.Items) {
		a.pos = len(s.Items) - 1
	}
	if a.pos < 0 {
		a.pos = 0
	}

	if a.mode == modeComments && s.CommentsFor == "" {
		a.mode = modeFeed
	}

	pb := s.Playback
	if a.player == nil || pb.Phase != feed.PhaseBuffering || a.player.Ready(pb.Index) {
		return a, nil
	}
	if a.buffer == pb.Index {
		return a, nil
	}
	a.buffer = pb.Index
	return a, a.player.Buffer(pb.Index)
}

func listKey(s feed.Snapshot) string {
	first := ""
	if len(s.Items) > 0 {
		first = s.Items[0].ID
	}
	mode := "feed"
	if s.Searching {
		mode = "search:" + s.Query
	}
	return mode + "|" + first
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a.status = ""
	if otel.TraceEnabled() {
		a.events.Emit(otel.Event{Kind: otel.KindKeyPress, Level: otel.LevelDebug, Comp: "ui", Msg: msg.String()})
	}

	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}
	if a.feed == nil {
		if msg.String() == "q" {
			return a, tea.Quit
		}
		return a, nil
	}

	switch a.mode {
	case modeSearch:
		return a.handleSearchKey(msg)
	case modeComments:
		return a.handleCommentsKey(msg)
	case modeInbox:
		return a.handleInboxKey(msg)
	case modeWaves:
		return a.handleWavesKey(msg)
	}

	if a.debug && msg.String() == "f" {
		a.focus = (a.focus + 1) % len(debugFocuses)
		return a, nil
	}
	if a.debug && msg.String() != "D" && msg.String() != "q" {
		return a, nil
	}

	switch msg.String() {
	case "q":
		return a, tea.Quit

	case "D":
		a.debug = !a.debug && a.ring != nil
		return a, nil

	case "j", "down":
		if a.pos < len(a.snap.Items)-1 {
			a.pos++
		}
		return a, a.scroll()

	case "k", "up":
		if a.pos > 0 {
			a.pos--
		}
		return a, a.scroll()

	case "g", "home":
		a.pos = 0
		return a, a.scroll()

	case " ":
		a.feed.TogglePlay()
		return a.applySnapshot(a.feed.Snapshot())

	case "m":
		a.feed.ToggleMute()
		return a.applySnapshot(a.feed.Snapshot())

	case "l":
		if id := a.currentID(); id != "" {
			return a, a.act("like", func(ctx context.Context) error { return a.feed.Like(ctx, id) })
		}
		return a, nil

	case "b":
		if id := a.currentID(); id != "" {
			return a, a.act("save", func(ctx context.Context) error { return a.feed.ToggleSave(ctx, id) })
		}
		return a, nil

	case "s":
		if id := a.currentID(); id != "" {
			f, ctx := a.feed, a.ctx
			return a, func() tea.Msg { return Shared{PulseID: id, Result: f.Share(ctx, id)} }
		}
		return a, nil

	case "c":
		id := a.currentID()
		if id == "" {
			return a, nil
		}
		a.feed.OpenComments(id)
		a.commentsFor = id
		a.mode = modeComments
		a.input.Placeholder = "Add an echo..."
		a.input.SetValue(a.feed.Snapshot().Draft)
		a.input.CursorEnd()
		a.input.Focus()
		m, _ := a.applySnapshot(a.feed.Snapshot())
		return m, textinput.Blink

	case "/":
		a.feed.SetSearchOverlay(true)
		a.mode = modeSearch
		a.usersMode = false
		a.historyCursor = -1
		a.input.Placeholder = "Search captions, tags, creators"
		a.input.SetValue(a.snap.Query)
		a.input.CursorEnd()
		a.input.Focus()
		m, _ := a.applySnapshot(a.feed.Snapshot())
		return m, textinput.Blink

	case "n":
		a.mode = modeInbox
		a.inboxCursor = 0
		return a, nil

	case "w":
		a.mode = modeWaves
		if a.loadWaves != nil {
			a.wavesLoading = true
			return a, a.loadWaves()
		}
		return a, nil

	case "r":
		return a, a.act("load", a.feed.LoadInitial)

	case "esc":
		if a.snap.Toast != nil {
			a.feed.DismissToast()
			return a.applySnapshot(a.feed.Snapshot())
		}
		if a.snap.Searching {
			return a, a.act("search", func(ctx context.Context) error { return a.feed.Search(ctx, "") })
		}
		return a, nil
	}

	return a, nil
}

func (a App) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return a.closeSearch()

	case "tab":
		a.usersMode = !a.usersMode
		a.historyCursor = -1
		a.userCursor = 0
		if a.usersMode {
			a.input.Placeholder = "Search people"
		} else {
			a.input.Placeholder = "Search captions, tags, creators"
		}
		return a, nil

	case "enter":
		q := a.input.Value()
		f := a.feed
		if a.usersMode {
			return a, func() tea.Msg {
				users, err := f.SearchUsers(a.ctx, q)
				return UsersFound{Query: q, Users: users, Err: err}
			}
		}
		m, _ := a.closeSearch()
		return m, a.act("search", func(ctx context.Context) error { return f.Search(ctx, q) })

	case "up":
		if a.usersMode {
			if a.userCursor > 0 {
				a.userCursor--
			}
			return a, nil
		}
		if a.historyCursor > 0 {
			a.historyCursor--
			a.input.SetValue(a.snap.History[a.historyCursor])
			a.input.CursorEnd()
		}
		return a, nil

	case "down":
		if a.usersMode {
			if a.userCursor < len(a.snap.Users)-1 {
				a.userCursor++
			}
			return a, nil
		}
		if a.historyCursor < len(a.snap.History)-1 {
			a.historyCursor++
			a.input.SetValue(a.snap.History[a.historyCursor])
			a.input.CursorEnd()
		}
		return a, nil

	case "ctrl+d":
		if !a.usersMode {
			a.historyCursor = -1
			return a, a.act("clear history", func(context.Context) error { return a.feed.ClearHistory() })
		}
		return a, nil

	case "ctrl+f":
		if a.usersMode && a.follow != nil && a.userCursor < len(a.snap.Users) {
			return a, a.follow(a.snap.Users[a.userCursor].UID)
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a App) closeSearch() (tea.Model, tea.Cmd) {
	a.feed.SetSearchOverlay(false)
	a.mode = modeFeed
	a.usersMode = false
	a.input.Blur()
	return a.applySnapshot(a.feed.Snapshot())
}

func (a App) handleCommentsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.feed.CloseComments()
		a.mode = modeFeed
		a.input.Blur()
		return a.applySnapshot(a.feed.Snapshot())

	case "enter":
		id, text := a.commentsFor, a.input.Value()
		if strings.TrimSpace(text) == "" {
			return a, nil
		}
		a.input.SetValue("")
		return a, a.act("echo", func(ctx context.Context) error { return a.feed.AddComment(ctx, id, text) })
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	a.feed.SetDraft(a.commentsFor, a.input.Value())
	return a, cmd
}

func (a App) handleInboxKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "n", "q":
		a.mode = modeFeed
	case "j", "down":
		if a.inboxCursor < len(a.inbox)-1 {
			a.inboxCursor++
		}
	case "k", "up":
		if a.inboxCursor > 0 {
			a.inboxCursor--
		}
	case "a":
		if a.markAllRead != nil && a.unread > 0 {
			return a, a.markAllRead()
		}
	}
	return a, nil
}

func (a App) handleWavesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "w", "q":
		a.mode = modeFeed
	case "j", "down":
		if a.wavesCursor < len(a.waves)-1 {
			a.wavesCursor++
		}
	case "k", "up":
		if a.wavesCursor > 0 {
			a.wavesCursor--
		}
	}
	return a, nil
}

// scroll reports the view position to the controller. The controller
// derives the active index and prefetches near the end.
func (a App) scroll() tea.Cmd {
	f, ctx := a.feed, a.ctx
	s := feed.Scroll{
		Offset:         float64(a.pos) * pageHeight,
		ViewportHeight: pageHeight,
		ContentHeight:  float64(len(a.snap.Items)) * pageHeight,
	}
	return func() tea.Msg {
		f.OnScroll(ctx, s)
		return nil
	}
}

// act runs an interaction off the Update goroutine.
func (a App) act(name string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := a.ctx
	return func() tea.Msg {
		return ActionDone{Action: name, Err: fn(ctx)}
	}
}

func (a App) currentID() string {
	if a.pos < 0 || a.pos >= len(a.snap.Items) {
		return ""
	}
	return a.snap.Items[a.pos].ID
}

func playerTick() tea.Cmd {
	return tea.Tick(playerTickInterval, func(time.Time) tea.Msg { return PlayerTick{} })
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}
	now := a.now()

	if a.debug {
		focus := debugFocuses[a.focus]
		return debugOverlay(a.ring, a.events, focus, a.width, a.height-1, now) + "\n" + debugStatusBar(a.width, focus)
	}

	header := RenderHeader(a.snap, a.viewer, a.unread, a.width)
	statusBar := RenderStatusBar(a.pos, len(a.snap.Items), a.width, a.snap.Loading || a.snap.LoadingMore, a.spinner.View())

	var footer []string
	if t := RenderToast(a.snap.Toast, a.width); t != "" {
		footer = append(footer, t)
	}
	if a.status != "" {
		footer = append(footer, ErrorStyle.Width(a.width).Render(truncate(a.status, a.width-2)))
	}

	bodyHeight := a.height - 2 - len(footer)
	if bodyHeight < 1 {
		bodyHeight = 1
	}

	var body string
	switch a.mode {
	case modeSearch:
		body = renderSearch(a.input.View(), a.snap.History, a.historyCursor, a.snap.Users, a.userCursor, a.usersMode, a.viewer, a.width, bodyHeight)
	case modeComments:
		body = renderComments(a.commentedPulse(), a.input.View(), a.width, bodyHeight, now)
	case modeInbox:
		body = renderInbox(a.inbox, a.inboxCursor, a.width, bodyHeight, now)
	case modeWaves:
		body = renderWaves(a.waves, a.wavesCursor, a.wavesFallback, a.wavesLoading, a.spinner.View(), a.width, bodyHeight)
	default:
		body = RenderFeed(a.snap, a.pos, a.progressBar(), a.width, bodyHeight, now)
	}
	body = lipgloss.NewStyle().Height(bodyHeight).MaxHeight(bodyHeight).Render(body)

	parts := append([]string{header, body}, footer...)
	parts = append(parts, statusBar)
	return strings.Join(parts, "\n")
}

func (a App) commentedPulse() model.Pulse {
	if p, ok := a.snap.Item(a.commentsFor); ok {
		return p
	}
	return model.Pulse{ID: a.commentsFor}
}

func (a App) progressBar() string {
	pb := a.snap.Playback
	if a.player == nil || pb.Phase == feed.PhaseIdle || pb.Phase == feed.PhaseBuffering {
		return ""
	}
	elapsed, total := a.player.Progress(pb.Index)
	if total <= 0 {
		return ""
	}
	pct := float64(elapsed) / float64(total)
	return a.bar.ViewAs(pct) + MetaItem.Render(" "+formatClock(elapsed)+" / "+formatClock(total))
}

// Pos returns the scrolled-to index (for testing).
func (a App) Pos() int {
	return a.pos
}

// Mode reports the open panel (for testing).
func (a App) Mode() string {
	switch a.mode {
	case modeSearch:
		return "search"
	case modeComments:
		return "comments"
	case modeInbox:
		return "inbox"
	case modeWaves:
		return "waves"
	default:
		return "feed"
	}
}
