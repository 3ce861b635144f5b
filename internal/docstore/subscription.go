package docstore

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
)

// Snapshot is one subscription delivery.
type Snapshot struct {
	Docs []Document
}

// Subscription is a cancellable stream of snapshots. Pending changes are
// coalesced per document while the consumer is busy, so a slow reader sees
// the latest version of each document rather than every intermediate one.
type Subscription struct {
	C <-chan Snapshot

	collection string
	filter     Filter

	out    chan Snapshot
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
	remove func(*Subscription)

	mu      sync.Mutex
	pending map[string]Document
	order   []string
	matched map[string]bool // ids currently inside the filter
}

func newSubscription(collection string, filter Filter, remove func(*Subscription)) *Subscription {
	out := make(chan Snapshot)
	return &Subscription{
		C:          out,
		collection: collection,
		filter:     filter,
		out:        out,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		remove:     remove,
		pending:    make(map[string]Document),
		matched:    make(map[string]bool),
	}
}

// Close stops the subscription and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.remove != nil {
			s.remove(s)
		}
	})
}

// Done is closed once the subscription has been cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	go s.run()
}

func (s *Subscription) run() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		snap, ok := s.take()
		if !ok {
			continue
		}
		select {
		case s.out <- snap:
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) take() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return Snapshot{}, false
	}
	docs := make([]Document, 0, len(s.order))
	for _, id := range s.order {
		docs = append(docs, s.pending[id])
	}
	s.pending = make(map[string]Document)
	s.order = nil
	return Snapshot{Docs: docs}, true
}

// push queues docs that passed the filter, or that used to and no longer
// do, which are delivered as deletions.
func (s *Subscription) push(docs ...Document) {
	s.mu.Lock()
	queued := false
	for _, d := range docs {
		if d.Collection != s.collection {
			continue
		}
		in := !d.Deleted && matches(d, s.filter)
		switch {
		case in:
			s.matched[d.ID] = true
		case s.matched[d.ID]:
			delete(s.matched, d.ID)
			d = Document{Collection: d.Collection, ID: d.ID, Version: d.Version, UpdatedAt: d.UpdatedAt, Deleted: true}
		default:
			continue
		}
		prev, seen := s.pending[d.ID]
		if seen && !d.Deleted && prev.Version > d.Version {
			continue
		}
		if !seen {
			s.order = append(s.order, d.ID)
		}
		s.pending[d.ID] = d
		queued = true
	}
	s.mu.Unlock()

	if queued {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

func matches(d Document, f Filter) bool {
	if len(f) == 0 {
		return true
	}
	body := map[string]any{}
	if err := json.Unmarshal(d.Data, &body); err != nil {
		return false
	}
	for field, want := range f {
		w, err := normalize(want)
		if err != nil || !reflect.DeepEqual(body[field], w) {
			return false
		}
	}
	return true
}

// hub fans committed documents out to subscriptions.
type hub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*Subscription]struct{})}
}

func (h *hub) add(s *Subscription) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *hub) publish(doc Document) {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	for _, s := range subs {
		s.push(doc)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}
