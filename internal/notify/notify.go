// Package notify writes activity notifications and keeps a live, newest-first
// inbox for the viewer.
package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/vibesphere/internal/docstore"
	"github.com/abelbrown/vibesphere/internal/logging"
	"github.com/abelbrown/vibesphere/internal/model"
)

// Service publishes and reads notifications.
type Service struct {
	store docstore.Store
	now   func() time.Time
}

func New(store docstore.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Publish stores n. Notifications to yourself are dropped. ID and CreatedAt
// are filled in when empty.
func (s *Service) Publish(ctx context.Context, n model.Notification) error {
	if n.UserID == "" || n.UserID == n.FromUserID {
		return nil
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	if _, err := s.store.Add(ctx, model.CollectionNotifications, n.ID, n); err != nil {
		return fmt.Errorf("publish %s notification: %w", n.Type, err)
	}
	return nil
}

// List returns uid's notifications, newest first.
func (s *Service) List(ctx context.Context, uid string) ([]model.Notification, error) {
	docs, err := s.store.Scan(ctx, model.CollectionNotifications, docstore.Filter{"userId": uid})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]model.Notification, 0, len(docs))
	for _, d := range docs {
		var n model.Notification
		if err := d.Decode(&n); err != nil {
			logging.Warn("notify: bad notification", "id", d.ID, "err", err)
			continue
		}
		out = append(out, n)
	}
	sortNewestFirst(out)
	return out, nil
}

// MarkRead flags one notification as read.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	_, err := s.store.Mutate(ctx, model.CollectionNotifications, id, docstore.Patch{docstore.SetField("isRead", true)})
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// MarkAllRead flags every unread notification of uid.
func (s *Service) MarkAllRead(ctx context.Context, uid string) error {
	docs, err := s.store.Scan(ctx, model.CollectionNotifications, docstore.Filter{"userId": uid, "isRead": false})
	if err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	for _, d := range docs {
		if err := s.MarkRead(ctx, d.ID); err != nil {
			return err
		}
	}
	return nil
}

// Inbox is a live view of one user's notifications.
type Inbox struct {
	sub     *docstore.Subscription
	updates chan []model.Notification
	done    chan struct{}

	mu    sync.Mutex
	items map[string]model.Notification
}

// Watch opens a live inbox for uid. The first update holds the current
// notifications. Cancel ctx or call Close to stop it.
func (s *Service) Watch(ctx context.Context, uid string) (*Inbox, error) {
	sub, err := s.store.Subscribe(ctx, model.CollectionNotifications, docstore.Filter{"userId": uid})
	if err != nil {
		return nil, fmt.Errorf("watch notifications: %w", err)
	}
	in := &Inbox{
		sub:     sub,
		updates: make(chan []model.Notification, 1),
		done:    make(chan struct{}),
		items:   make(map[string]model.Notification),
	}
	go in.run()
	return in, nil
}

// Updates delivers the full, newest-first list after every change. Only
// the latest list is kept if the reader falls behind.
func (in *Inbox) Updates() <-chan []model.Notification { return in.updates }

// Done is closed when the inbox stops.
func (in *Inbox) Done() <-chan struct{} { return in.done }

// Close stops the inbox.
func (in *Inbox) Close() { in.sub.Close() }

// Items returns the current list, newest first.
func (in *Inbox) Items() []model.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.sortedLocked()
}

// Unread counts unread notifications.
func (in *Inbox) Unread() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := 0
	for _, it := range in.items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

func (in *Inbox) run() {
	defer close(in.done)
	defer logging.Recover("notify.inbox")
	for snap := range in.sub.C {
		in.mu.Lock()
		for _, d := range snap.Docs {
			if d.Deleted {
				delete(in.items, d.ID)
				continue
			}
			var n model.Notification
			if err := d.Decode(&n); err != nil {
				logging.Warn("notify: bad notification", "id", d.ID, "err", err)
				continue
			}
			in.items[n.ID] = n
		}
		list := in.sortedLocked()
		in.mu.Unlock()

		// Latest wins: drop a pending list the reader has not taken.
		select {
		case <-in.updates:
		default:
		}
		select {
		case in.updates <- list:
		default:
		}
	}
}

func (in *Inbox) sortedLocked() []model.Notification {
	out := make([]model.Notification, 0, len(in.items))
	for _, n := range in.items {
		out = append(out, n)
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(ns []model.Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		if ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].ID > ns[j].ID
		}
		return ns[i].CreatedAt.After(ns[j].CreatedAt)
	})
}
