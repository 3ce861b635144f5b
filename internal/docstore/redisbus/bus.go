// Package redisbus carries document change notices between processes that
// share one docstore database file. Each process publishes its own commits
// and refreshes local subscribers when another process commits.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/abelbrown/vibesphere/internal/docstore"
	"github.com/abelbrown/vibesphere/internal/logging"
)

const channelPrefix = "docstore:"

// Channel returns the Redis channel for a collection.
func Channel(collection string) string {
	return channelPrefix + collection
}

// Notice is the message published for each commit. It carries no body:
// receivers re-read the document from the shared database.
type Notice struct {
	Origin     string `json:"origin"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Version    int64  `json:"version"`
	Deleted    bool   `json:"deleted,omitempty"`
}

// Refresher is the part of the store the bus drives.
type Refresher interface {
	Refresh(ctx context.Context, collection, id string) error
}

// Bus publishes and receives change notices.
type Bus struct {
	rdb     *redis.Client
	origin  string
	timeout time.Duration
}

// New creates a bus with a random origin id. A nil client gives a bus whose
// methods do nothing.
func New(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb, origin: uuid.NewString(), timeout: 2 * time.Second}
}

// Origin identifies this process on the bus.
func (b *Bus) Origin() string { return b.origin }

// Publish announces a committed document.
func (b *Bus) Publish(ctx context.Context, doc docstore.Document) error {
	if b.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(Notice{
		Origin:     b.origin,
		Collection: doc.Collection,
		ID:         doc.ID,
		Version:    doc.Version,
		Deleted:    doc.Deleted,
	})
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	return b.rdb.Publish(ctx, Channel(doc.Collection), payload).Err()
}

// Attach publishes every commit of st. Publish failures are logged; the
// local write has already succeeded.
func (b *Bus) Attach(st *docstore.SQLite) {
	if b.rdb == nil {
		return
	}
	st.OnCommit(func(doc docstore.Document) {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if err := b.Publish(ctx, doc); err != nil {
			logging.Warn("redisbus: publish failed", "collection", doc.Collection, "id", doc.ID, "err", err)
		}
	})
}

// Start subscribes to every collection channel and refreshes r for notices
// from other processes. It returns once the subscription is confirmed; the
// receive loop stops when ctx is cancelled.
func (b *Bus) Start(ctx context.Context, r Refresher) error {
	if b.rdb == nil {
		return nil
	}
	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("psubscribe: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.handle(ctx, r, msg.Channel, msg.Payload)
			}
		}
	}()
	return nil
}

func (b *Bus) handle(ctx context.Context, r Refresher, channel, payload string) {
	defer logging.Recover("redisbus")

	var n Notice
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		logging.Warn("redisbus: bad notice", "channel", channel, "err", err)
		return
	}
	if n.Origin == b.origin {
		return
	}
	if n.Collection == "" {
		n.Collection = strings.TrimPrefix(channel, channelPrefix)
	}
	if err := r.Refresh(ctx, n.Collection, n.ID); err != nil {
		logging.Warn("redisbus: refresh failed", "collection", n.Collection, "id", n.ID, "err", err)
	}
}
