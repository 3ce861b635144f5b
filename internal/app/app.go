// Package app assembles the client's services from a Config. Both the TUI
// and the vibe CLI open the same graph.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/abelbrown/vibesphere/internal/compose"
	"github.com/abelbrown/vibesphere/internal/config"
	"github.com/abelbrown/vibesphere/internal/docstore"
	"github.com/abelbrown/vibesphere/internal/docstore/redisbus"
	"github.com/abelbrown/vibesphere/internal/feed"
	"github.com/abelbrown/vibesphere/internal/identity"
	"github.com/abelbrown/vibesphere/internal/logging"
	"github.com/abelbrown/vibesphere/internal/media"
	"github.com/abelbrown/vibesphere/internal/notify"
	"github.com/abelbrown/vibesphere/internal/otel"
	"github.com/abelbrown/vibesphere/internal/prefs"
	"github.com/abelbrown/vibesphere/internal/share"
)

const (
	ringSize         = 512
	sessionSecretKey = "session_secret"
)

// Options override paths derived from the config. Empty fields use the
// config's defaults.
type Options struct {
	PrefsPath  string
	EventsPath string
}

// Services is the opened dependency graph. Close releases everything.
type Services struct {
	Config   *config.Config
	Store    *docstore.SQLite
	Bus      *redisbus.Bus
	Prefs    *prefs.Store
	Notes    *notify.Service
	Identity *identity.Service
	Uploader media.Uploader
	Compose  *compose.Service
	Events   *otel.Logger
	Ring     *otel.RingBuffer

	rdb        *redis.Client
	eventsFile *os.File
}

// Open builds the services. ctx bounds the redis subscription, so it should
// live as long as the returned Services.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = cfg.PrefsPath()
	}
	eventsPath := opts.EventsPath
	if eventsPath == "" {
		eventsPath = cfg.EventsPath()
	}
	for _, p := range []string{cfg.DBPath(), prefsPath} {
		if p == ":memory:" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	s := &Services{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	events, f, err := otel.OpenFile(eventsPath)
	if err != nil {
		return nil, err
	}
	s.Events, s.eventsFile = events, f
	s.Ring = otel.NewRingBuffer(ringSize)
	s.Events.SetRingBuffer(s.Ring)

	s.Store, err = docstore.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	s.Bus = s.openBus(ctx)

	s.Prefs, err = prefs.Open(prefsPath)
	if err != nil {
		return nil, err
	}
	secret, err := s.sessionSecret()
	if err != nil {
		return nil, err
	}

	s.Notes = notify.New(s.Store)
	s.Identity = identity.New(s.Store, s.Prefs, s.Notes, identity.Config{
		Secret:     secret,
		SessionTTL: cfg.SessionTTL(),
	})

	s.Uploader, err = newUploader(cfg)
	if err != nil {
		return nil, err
	}
	s.Compose = compose.New(s.Store, s.Uploader, s.Identity)

	ok = true
	return s, nil
}

// openBus connects the change bus when a redis URL is configured. A bus
// that cannot connect is logged and replaced by an inert one; the client
// still works against the local store.
func (s *Services) openBus(ctx context.Context) *redisbus.Bus {
	url := s.Config.Backend.RedisURL
	if url == "" {
		return redisbus.New(nil)
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		logging.Warn("app: bad redis url, sync disabled", "err", err)
		s.Events.Warn(otel.KindStoreError, "app", "sync disabled: "+err.Error())
		return redisbus.New(nil)
	}
	rdb := redis.NewClient(opt)
	bus := redisbus.New(rdb)
	if err := bus.Start(ctx, s.Store); err != nil {
		logging.Warn("app: redis unavailable, sync disabled", "err", err)
		s.Events.Warn(otel.KindStoreError, "app", "sync disabled: "+err.Error())
		_ = rdb.Close()
		return redisbus.New(nil)
	}
	bus.Attach(s.Store)
	s.rdb = rdb
	logging.Info("app: change bus connected", "addr", opt.Addr, "origin", bus.Origin())
	return bus
}

// sessionSecret returns the configured JWT secret, or a per-install random
// one kept in prefs.
func (s *Services) sessionSecret() ([]byte, error) {
	if v := s.Config.Auth.JWTSecret; v != "" {
		return []byte(v), nil
	}
	var stored string
	found, err := s.Prefs.Get(sessionSecretKey, &stored)
	if err != nil {
		return nil, fmt.Errorf("read session secret: %w", err)
	}
	if found && stored != "" {
		return []byte(stored), nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate session secret: %w", err)
	}
	stored = hex.EncodeToString(buf)
	if err := s.Prefs.Set(sessionSecretKey, stored); err != nil {
		return nil, fmt.Errorf("store session secret: %w", err)
	}
	return []byte(stored), nil
}

func newUploader(cfg *config.Config) (media.Uploader, error) {
	if cfg.Media.Mode != "s3" {
		return media.Dir{Root: cfg.MediaDir()}, nil
	}
	s3, err := media.NewS3(media.S3Config{
		Endpoint:  cfg.Media.Endpoint,
		AccessKey: cfg.Media.AccessKey,
		SecretKey: cfg.Media.SecretKey,
		UseSSL:    cfg.Media.UseSSL,
		Bucket:    cfg.Media.Bucket,
		PublicURL: cfg.Media.PublicURL,
	})
	if err != nil {
		return nil, err
	}
	return s3, nil
}

// SignIn restores the persisted session, falling back to the dev provider
// when there is none or it no longer verifies.
func (s *Services) SignIn(ctx context.Context) error {
	u, err := s.Identity.Restore(ctx)
	if err != nil {
		logging.Warn("app: session restore failed", "err", err)
	}
	if u == nil {
		u, err = s.Identity.SignInWithProvider(ctx, identity.DevProvider{}.ID())
		if err != nil {
			return err
		}
	}
	s.Events.Info(otel.KindSignIn, "app", "@"+u.Username)
	return nil
}

// Theme is the stored display theme, or the configured one when the user
// never picked one.
func (s *Services) Theme() string {
	var d prefs.Display
	found, err := s.Prefs.Get(prefs.KeyDisplay, &d)
	if err != nil {
		logging.Warn("app: reading display prefs", "err", err)
	}
	if found && d.Theme != "" {
		return d.Theme
	}
	return s.Config.UI.Theme
}

// FeedConfig maps the feed section of the config onto the controller's
// settings.
func FeedConfig(cfg *config.Config) feed.Config {
	fc := feed.DefaultConfig()
	fc.PageSize = cfg.Feed.PageSize
	fc.Debounce = config.Millis(cfg.Feed.DebounceMs)
	fc.FlagTTL = config.Millis(cfg.Feed.FlagTTLMs)
	fc.ToastTTL = config.Millis(cfg.Feed.ToastTTLMs)
	fc.LoadThreshold = float64(cfg.Feed.LoadThreshold)
	fc.ShareBaseURL = cfg.Share.BaseURL
	return fc
}

// NewFeed builds a feed controller over the services. m and onChange may be
// nil.
func (s *Services) NewFeed(m feed.Media, onChange func()) *feed.Controller {
	return feed.New(FeedConfig(s.Config), feed.Deps{
		Store:     s.Store,
		Viewer:    s.Identity,
		History:   s.Prefs,
		Sharer:    share.NewCommandSharer(s.Config.Share.Command),
		Clipboard: share.DefaultClipboard(),
		Notifier:  s.Notes,
		Media:     m,
		Events:    s.Events,
		OnChange:  onChange,
	})
}

// Close releases everything Open acquired, in reverse order.
func (s *Services) Close() {
	if s.Identity != nil {
		s.Identity.Close()
	}
	if s.Prefs != nil {
		if err := s.Prefs.Close(); err != nil {
			logging.Warn("app: closing prefs", "err", err)
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			logging.Warn("app: closing store", "err", err)
		}
	}
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.Events != nil {
		s.Events.Close()
	}
	if s.eventsFile != nil {
		s.eventsFile.Close()
	}
}
