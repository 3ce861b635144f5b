// Package identity signs viewers in and out and exposes the current viewer
// as an observable. It also owns the follow graph (Tribe / Vibing With).
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/abelbrown/vibesphere/internal/docstore"
	"github.com/abelbrown/vibesphere/internal/logging"
	"github.com/abelbrown/vibesphere/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("identity: invalid email or password")
	ErrEmailTaken         = errors.New("identity: email already registered")
	ErrNoViewer           = errors.New("identity: not signed in")
)

// Notifier receives follow notifications. notify.Service satisfies it.
type Notifier interface {
	Publish(ctx context.Context, n model.Notification) error
}

// Config tunes sessions.
type Config struct {
	Secret     []byte
	SessionTTL time.Duration
	BcryptCost int
	Now        func() time.Time // nil means time.Now
}

// Service is the identity collaborator. Safe for concurrent use.
type Service struct {
	store     docstore.Store
	sessions  SessionStore
	notifier  Notifier
	cfg       Config
	providers map[string]Provider

	mu        sync.Mutex
	current   *model.User
	listeners map[int]func(*model.User)
	nextID    int
	stopWatch context.CancelFunc
}

// New builds a Service. sessions and notifier may be nil.
func New(store docstore.Store, sessions SessionStore, notifier Notifier, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	s := &Service{
		store:     store,
		sessions:  sessions,
		notifier:  notifier,
		cfg:       cfg,
		providers: make(map[string]Provider),
		listeners: make(map[int]func(*model.User)),
	}
	s.RegisterProvider(DevProvider{})
	return s
}

// RegisterProvider adds or replaces a federated sign-in method.
func (s *Service) RegisterProvider(p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID()] = p
}

// Current returns a copy of the signed-in viewer, or nil.
func (s *Service) Current() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.current)
}

// Subscribe calls fn with the current viewer right away and again after
// every change. The returned function unsubscribes.
func (s *Service) Subscribe(fn func(*model.User)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	cur := clone(s.current)
	s.mu.Unlock()

	fn(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// SignUp creates an email account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string, p Profile) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if p.DisplayName == "" {
		p.DisplayName = p.Username
	}
	if err := validateStruct(signUpInput{Email: email, Password: password, Profile: p}); err != nil {
		return nil, err
	}

	existing, err := s.store.Scan(ctx, model.CollectionUsers, docstore.Filter{"email": email})
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	if len(existing) > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := newUser(uuid.NewString(), email, p.Username, p.DisplayName, "", s.now())
	u.PasswordHash = string(hash)
	u.Provider = "password"

	if _, err := s.store.Set(ctx, model.CollectionUsers, u.UID, u); err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	return s.establish(ctx, u, "password")
}

// SignIn verifies an email and password.
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	docs, err := s.store.Scan(ctx, model.CollectionUsers, docstore.Filter{"email": email})
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrInvalidCredentials
	}
	var u model.User
	if err := docs[0].Decode(&u); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.establish(ctx, u, "password")
}

// SignInWithProvider authenticates through a registered provider, creating
// the user document on first sign-in.
func (s *Service) SignInWithProvider(ctx context.Context, providerID string) (*model.User, error) {
	s.mu.Lock()
	p, ok := s.providers[providerID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerID)
	}

	ident, err := p.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", providerID, err)
	}
	uid := providerUID(providerID, ident.Subject)

	var u model.User
	doc, err := s.store.Get(ctx, model.CollectionUsers, uid)
	switch {
	case err == nil:
		if err := doc.Decode(&u); err != nil {
			return nil, fmt.Errorf("provider sign in: %w", err)
		}
	case errors.Is(err, docstore.ErrNotFound):
		email := strings.ToLower(ident.Email)
		u = newUser(uid, email, usernameFromEmail(email), ident.DisplayName, ident.PhotoURL, s.now())
		u.Provider = providerID
		if _, err := s.store.Set(ctx, model.CollectionUsers, uid, u); err != nil {
			return nil, fmt.Errorf("provider sign in: %w", err)
		}
	default:
		return nil, fmt.Errorf("provider sign in: %w", err)
	}
	return s.establish(ctx, u, providerID)
}

// Restore signs in from the persisted session token. It returns nil with no
// error when there is no session. An invalid or expired token is cleared.
func (s *Service) Restore(ctx context.Context) (*model.User, error) {
	if s.sessions == nil {
		return nil, nil
	}
	raw, err := s.sessions.SessionToken()
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	uid, err := s.parseToken(raw)
	if err != nil {
		_ = s.sessions.SetSessionToken("")
		return nil, err
	}
	doc, err := s.store.Get(ctx, model.CollectionUsers, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		_ = s.sessions.SetSessionToken("")
		return nil, fmt.Errorf("%w: user %s no longer exists", ErrInvalidSession, uid)
	}
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	var u model.User
	if err := doc.Decode(&u); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	s.setCurrent(&u)
	s.markOnline(ctx, u.UID, true)
	return s.Current(), nil
}

// SignOut clears the viewer and the persisted session.
func (s *Service) SignOut(ctx context.Context) error {
	cur := s.Current()
	if cur != nil {
		s.markOnline(ctx, cur.UID, false)
	}
	s.setCurrent(nil)
	if s.sessions != nil {
		if err := s.sessions.SetSessionToken(""); err != nil {
			return fmt.Errorf("sign out: %w", err)
		}
	}
	return nil
}

// Close stops watching the viewer document.
func (s *Service) Close() {
	s.mu.Lock()
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (s *Service) establish(ctx context.Context, u model.User, provider string) (*model.User, error) {
	if s.sessions != nil {
		tok, err := s.issueToken(u.UID, provider)
		if err != nil {
			return nil, err
		}
		if err := s.sessions.SetSessionToken(tok); err != nil {
			return nil, fmt.Errorf("persist session: %w", err)
		}
	}
	u.IsOnline = true
	s.setCurrent(&u)
	s.markOnline(ctx, u.UID, true)
	logging.Info("identity: signed in", "uid", u.UID, "provider", provider)
	return s.Current(), nil
}

func (s *Service) markOnline(ctx context.Context, uid string, online bool) {
	if _, err := s.store.Mutate(ctx, model.CollectionUsers, uid, docstore.Patch{docstore.SetField("isOnline", online)}); err != nil {
		logging.Warn("identity: presence update failed", "uid", uid, "err", err)
	}
}

// setCurrent swaps the viewer, restarts the document watch and notifies
// listeners.
func (s *Service) setCurrent(u *model.User) {
	s.mu.Lock()
	prevUID := ""
	if s.current != nil {
		prevUID = s.current.UID
	}
	s.current = clone(u)
	newUID := ""
	if u != nil {
		newUID = u.UID
	}
	var stop context.CancelFunc
	if prevUID != newUID {
		stop = s.stopWatch
		s.stopWatch = nil
	}
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if newUID != "" && prevUID != newUID {
		s.watch(newUID)
	}
	s.emit()
}

// watch keeps Current in sync with the viewer's user document, so favorites
// and follow changes written elsewhere reach listeners.
func (s *Service) watch(uid string) {
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := s.store.Subscribe(ctx, model.CollectionUsers, docstore.Filter{"uid": uid})
	if err != nil {
		cancel()
		logging.Warn("identity: watch failed", "uid", uid, "err", err)
		return
	}
	s.mu.Lock()
	if s.current == nil || s.current.UID != uid {
		s.mu.Unlock()
		cancel()
		return
	}
	s.stopWatch = cancel
	s.mu.Unlock()

	go func() {
		defer logging.Recover("identity.watch")
		for snap := range sub.C {
			for _, d := range snap.Docs {
				if d.ID != uid || d.Deleted {
					continue
				}
				var u model.User
				if err := d.Decode(&u); err != nil {
					logging.Warn("identity: bad user doc", "uid", uid, "err", err)
					continue
				}
				s.refresh(u)
			}
		}
	}()
}

func (s *Service) refresh(u model.User) {
	s.mu.Lock()
	if s.current == nil || s.current.UID != u.UID {
		s.mu.Unlock()
		return
	}
	s.current = clone(&u)
	s.mu.Unlock()
	s.emit()
}

func (s *Service) emit() {
	s.mu.Lock()
	cur := s.current
	fns := make([]func(*model.User), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(clone(cur))
	}
}

func newUser(uid, email, username, displayName, photo string, now time.Time) model.User {
	return model.User{
		UID:         uid,
		Email:       email,
		Username:    username,
		DisplayName: displayName,
		PhotoURL:    photo,
		Tribe:       []string{},
		VibingWith:  []string{},
		Favorites:   []string{},
		CreatedAt:   now.UTC(),
		IsOnline:    true,
	}
}

func clone(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := u.Public()
	return &c
}
