// Package coord relays background state changes into the vibesphere UI.
package coord

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/vibesphere/internal/feed"
	"github.com/abelbrown/vibesphere/internal/logging"
	"github.com/abelbrown/vibesphere/internal/model"
	"github.com/abelbrown/vibesphere/internal/notify"
	"github.com/abelbrown/vibesphere/internal/ui"
)

// Sender is the part of *tea.Program the coordinator needs.
type Sender interface {
	Send(msg tea.Msg)
}

// snapshotter is the feed controller seen from here.
type snapshotter interface {
	Snapshot() feed.Snapshot
}

// viewerSource is the identity service seen from here.
type viewerSource interface {
	Subscribe(fn func(*model.User)) (unsubscribe func())
}

// inboxOpener is the notification service seen from here.
type inboxOpener interface {
	Watch(ctx context.Context, uid string) (*notify.Inbox, error)
}

// Coordinator forwards feed changes, viewer changes and notification
// updates to the program. Uses context cancellation as the ONLY stop
// mechanism.
type Coordinator struct {
	feed   snapshotter
	viewer viewerSource
	notes  inboxOpener // optional: nil disables the inbox relay

	changes chan struct{} // coalesced feed change signal
	viewers chan *model.User

	mu      sync.Mutex
	group   *errgroup.Group
	started bool
}

// NewCoordinator creates a Coordinator. viewer and notes may be nil.
func NewCoordinator(f snapshotter, viewer viewerSource, notes inboxOpener) *Coordinator {
	return &Coordinator{
		feed:    f,
		viewer:  viewer,
		notes:   notes,
		changes: make(chan struct{}, 1),
		viewers: make(chan *model.User, 1),
	}
}

// FeedChanged signals that the feed state moved. It never blocks, so it
// can be handed to the feed controller as its OnChange hook. Signals that
// arrive before the relay picks up the previous one are merged.
func (c *Coordinator) FeedChanged() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Start begins relaying. Call with a cancellable context.
func (c *Coordinator) Start(ctx context.Context, program Sender) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	g, ctx := errgroup.WithContext(ctx)
	c.group = g
	c.mu.Unlock()

	g.Go(func() error {
		c.relayFeed(ctx, program)
		return nil
	})
	if c.viewer != nil {
		g.Go(func() error {
			c.relayViewer(ctx, program)
			return nil
		})
	}
}

// Wait blocks until the relay goroutines exit.
// Call after canceling the context passed to Start.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	g := c.group
	c.mu.Unlock()
	if g != nil {
		_ = g.Wait() // relays never fail
	}
}

func (c *Coordinator) relayFeed(ctx context.Context, program Sender) {
	defer logging.Recover("coord.feed")
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.changes:
			if program != nil {
				program.Send(ui.FeedChanged{Snapshot: c.feed.Snapshot()})
			}
		}
	}
}

// relayViewer follows the signed-in user and keeps one notification inbox
// open for whoever that is.
func (c *Coordinator) relayViewer(ctx context.Context, program Sender) {
	defer logging.Recover("coord.viewer")

	unsubscribe := c.viewer.Subscribe(func(u *model.User) {
		// Latest wins.
		select {
		case <-c.viewers:
		default:
		}
		select {
		case c.viewers <- u:
		default:
		}
	})
	defer unsubscribe()

	var (
		inbox   *notify.Inbox
		updates <-chan []model.Notification
		uid     string
		first   = true
	)
	closeInbox := func() {
		if inbox != nil {
			inbox.Close()
			inbox, updates = nil, nil
		}
	}
	defer closeInbox()

	for {
		select {
		case <-ctx.Done():
			return

		case u := <-c.viewers:
			send(program, ui.ViewerChanged{Viewer: u})
			next := ""
			if u != nil {
				next = u.UID
			}
			if next == uid && !first {
				continue
			}
			first = false
			uid = next
			closeInbox()
			send(program, ui.InboxUpdated{})
			if uid == "" || c.notes == nil {
				continue
			}
			in, err := c.notes.Watch(ctx, uid)
			if err != nil {
				logging.Warn("coord: inbox unavailable", "uid", uid, "error", err)
				continue
			}
			inbox, updates = in, in.Updates()

		case items := <-updates:
			send(program, ui.InboxUpdated{Items: items, Unread: unread(items)})
		}
	}
}

func send(program Sender, msg tea.Msg) {
	if program != nil {
		program.Send(msg)
	}
}

func unread(ns []model.Notification) int {
	n := 0
	for _, it := range ns {
		if !it.IsRead {
			n++
		}
	}
	return n
}
