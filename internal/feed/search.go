package feed

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/abelbrown/vibesphere/internal/logging"
	"github.com/abelbrown/vibesphere/internal/model"
	"github.com/abelbrown/vibesphere/internal/otel"
)

// Search replaces the list with every Pulse whose caption, tags or author
// contain q, newest first, and records q in the search history. Pagination
// is off until the search is cleared. An empty q reloads the first page;
// search mode ends only once that page has replaced the results.
func (c *Controller) Search(ctx context.Context, q string) error {
	q = strings.TrimSpace(q)
	if q == "" {
		c.mu.Lock()
		c.users = nil
		c.mu.Unlock()
		return c.LoadInitial(ctx)
	}

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
	docs, err := c.store.Scan(ctx, model.CollectionPulses, nil)
	if err != nil {
		err = fmt.Errorf("scan pulses: %w", err)
	}

	var matches []model.Pulse
	if err == nil {
		needle := strings.ToLower(q)
		for _, d := range docs {
			p, derr := decodePulse(d)
			if derr != nil {
				continue
			}
			if matchPulse(p, needle) {
				matches = append(matches, p)
			}
		}
		sortByRecency(matches)
	}

	c.mu.Lock()
	if c.stale(gen) {
		c.mu.Unlock()
		c.events.Emit(otel.Event{Kind: otel.KindFeedStale, Comp: "feed", Msg: "search", Query: q})
		return ErrUnmounted
	}
	c.loading = false
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		c.readFailed("search", err)
		c.changed()
		return err
	}
	c.items = matches
	c.searching = true
	c.query = q
	c.fallback = false
	c.lastErr = nil
	c.epoch++
	refs, n := refsOf(c.items), len(c.items)
	from, to := c.resetPlaybackLocked()
	c.mu.Unlock()
	c.transitioned(from, to)

	c.events.Emit(otel.Event{Kind: otel.KindFeedSearch, Comp: "feed", Query: q, Count: n, Dur: time.Since(start)})
	logging.Debug("feed: search", "query", q, "matches", n)

	c.remember(gen, q)
	c.media.Load(refs)
	c.changed()
	if n > 0 {
		c.activate(0, n)
	}
	return nil
}

func (c *Controller) remember(gen uint64, q string) {
	if c.history == nil {
		return
	}
	h, err := c.history.AddSearch(q)
	if err != nil {
		logging.Warn("feed: saving search history", "error", err)
		return
	}
	c.mu.Lock()
	if !c.stale(gen) {
		c.recent = h
	}
	c.mu.Unlock()
}

// ClearHistory forgets every recorded query.
func (c *Controller) ClearHistory() error {
	if c.history != nil {
		if err := c.history.ClearSearchHistory(); err != nil {
			return fmt.Errorf("clear search history: %w", err)
		}
	}
	c.mu.Lock()
	c.recent = nil
	c.mu.Unlock()
	c.changed()
	return nil
}

// SearchUsers finds profiles whose username, display name or email contain
// q. The viewer is never included.
func (c *Controller) SearchUsers(ctx context.Context, q string) ([]model.User, error) {
	q = strings.ToLower(strings.TrimSpace(q))

	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return nil, ErrUnmounted
	}
	gen := c.gen
	self := ""
	if c.viewer != nil {
		self = c.viewer.UID
	}
	c.mu.Unlock()

	var found []model.User
	if q != "" {
		docs, err := c.store.Scan(ctx, model.CollectionUsers, nil)
		if err != nil {
			c.readFailed("search users", err)
			return nil, fmt.Errorf("scan users: %w", err)
		}
		for _, d := range docs {
			var u model.User
			if err := d.Decode(&u); err != nil {
				continue
			}
			if u.UID == "" {
				u.UID = d.ID
			}
			if u.UID == self {
				continue
			}
			if lo.SomeBy([]string{u.Username, u.DisplayName, u.Email}, func(s string) bool {
				return strings.Contains(strings.ToLower(s), q)
			}) {
				found = append(found, u.Public())
			}
		}
		sort.SliceStable(found, func(i, j int) bool { return found[i].Username < found[j].Username })
	}

	c.mu.Lock()
	if !c.stale(gen) {
		c.users = found
	}
	c.mu.Unlock()
	c.changed()
	return found, nil
}

func matchPulse(p model.Pulse, needle string) bool {
	if strings.Contains(strings.ToLower(p.Caption), needle) ||
		strings.Contains(strings.ToLower(p.Username), needle) {
		return true
	}
	return lo.SomeBy(p.Tags, func(t string) bool {
		return strings.Contains(strings.ToLower(t), needle)
	})
}

// sortByRecency orders newest first, ties by id descending like the
// paginated query.
func sortByRecency(ps []model.Pulse) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.After(ps[j].CreatedAt)
		}
		return ps[i].ID > ps[j].ID
	})
}

// SetSearchOverlay opens or closes the search overlay.
func (c *Controller) SetSearchOverlay(open bool) {
	c.mu.Lock()
	c.searchOverlay = open
	if !open {
		c.users = nil
	}
	c.mu.Unlock()
	c.changed()
}

// OpenComments shows the comments overlay for a Pulse.
func (c *Controller) OpenComments(id string) {
	c.mu.Lock()
	if c.indexOfLocked(id) >= 0 {
		c.commentsFor = id
	}
	c.mu.Unlock()
	c.changed()
}

// CloseComments hides the comments overlay. The draft is kept.
func (c *Controller) CloseComments() {
	c.mu.Lock()
	c.commentsFor = ""
	c.mu.Unlock()
	c.changed()
}
