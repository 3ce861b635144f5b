// Package seed fills a document store with demo users and Pulses. It is for
// development only.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/abelbrown/vibesphere/internal/docstore"
	"github.com/abelbrown/vibesphere/internal/logging"
	"github.com/abelbrown/vibesphere/internal/model"
)

// Options size the generated data set.
type Options struct {
	Users   int
	Pulses  int
	MaxDays int     // Pulses are spread over this many days back
	Waves   float64 // share of Pulses flagged as Waves
	Seed    int64   // 0 picks a random seed
	Now     func() time.Time
}

// DefaultOptions is a small but lively data set.
func DefaultOptions() Options {
	return Options{Users: 12, Pulses: 60, MaxDays: 14, Waves: 0.1}
}

// Result counts what Run wrote.
type Result struct {
	Users  int
	Pulses int
}

// Factory builds domain documents with fake content.
type Factory struct {
	store docstore.Store
	opts  Options
	fake  *gofakeit.Faker
	taken map[string]bool
}

// New creates a Factory bound to store.
func New(store docstore.Store, opts Options) *Factory {
	def := DefaultOptions()
	if opts.Users <= 0 {
		opts.Users = def.Users
	}
	if opts.Pulses < 0 {
		opts.Pulses = 0
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = def.MaxDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Factory{
		store: store,
		opts:  opts,
		fake:  gofakeit.New(opts.Seed),
		taken: make(map[string]bool),
	}
}

// BuildUser returns a user with a unique username. It is not stored.
func (f *Factory) BuildUser() model.User {
	name := f.fake.Name()
	username := strings.ToLower(f.fake.Username())
	for f.taken[username] {
		username = fmt.Sprintf("%s%d", username, f.fake.Number(0, 9))
	}
	f.taken[username] = true

	return model.User{
		UID:         f.fake.UUID(),
		Username:    username,
		DisplayName: name,
		Email:       username + "@" + f.fake.DomainName(),
		Bio:         f.fake.HipsterSentence(6),
		Tribe:       []string{},
		VibingWith:  []string{},
		Favorites:   []string{},
		CreatedAt:   f.pastTime().UTC(),
	}
}

// BuildPulse returns a Pulse by author with likes and echoes from crowd.
func (f *Factory) BuildPulse(author model.User, crowd []model.User) model.Pulse {
	p := model.Pulse{
		ID:          f.fake.UUID(),
		UserID:      author.UID,
		Username:    author.Username,
		UserPhoto:   author.PhotoURL,
		VideoURL:    fmt.Sprintf("https://cdn.vibesphere.app/pulses/%s.mp4", f.fake.UUID()),
		Caption:     f.fake.HipsterSentence(f.fake.Number(3, 12)),
		Tags:        model.NormalizeTags([]string{f.fake.HipsterWord(), f.fake.HipsterWord(), f.fake.Word()}),
		ResonatedBy: []string{},
		Echoes:      []model.Echo{},
		Ripples:     f.fake.Number(0, 40),
		Views:       f.fake.Number(10, 25000),
		Duration:    f.fake.Number(5, 60),
		CreatedAt:   f.pastTime().UTC(),
		IsWave:      f.fake.Float64Range(0, 1) < f.opts.Waves,
	}

	for _, u := range crowd {
		if u.UID == author.UID {
			continue
		}
		if f.fake.Number(0, 2) == 0 {
			p.ResonatedBy = model.AddToSet(p.ResonatedBy, u.UID)
		}
		if f.fake.Number(0, 4) == 0 {
			p.Echoes = append(p.Echoes, model.Echo{
				ID:        f.fake.UUID(),
				UserID:    u.UID,
				Username:  u.Username,
				Content:   f.fake.Sentence(f.fake.Number(2, 10)),
				CreatedAt: p.CreatedAt.Add(time.Duration(f.fake.Number(1, 600)) * time.Minute),
			})
		}
	}
	p.Resonance = len(p.ResonatedBy)
	return p
}

// Run writes Users users, a random follow graph between them, and Pulses
// Pulses spread across the authors.
func (f *Factory) Run(ctx context.Context) (Result, error) {
	users := make([]model.User, f.opts.Users)
	for i := range users {
		users[i] = f.BuildUser()
	}
	f.follow(users)

	var res Result
	for _, u := range users {
		if _, err := f.store.Set(ctx, model.CollectionUsers, u.UID, u); err != nil {
			return res, fmt.Errorf("seed user %s: %w", u.Username, err)
		}
		res.Users++
	}

	for i := 0; i < f.opts.Pulses; i++ {
		author := users[f.fake.Number(0, len(users)-1)]
		p := f.BuildPulse(author, users)
		if _, err := f.store.Add(ctx, model.CollectionPulses, p.ID, p); err != nil {
			return res, fmt.Errorf("seed pulse: %w", err)
		}
		res.Pulses++
	}

	logging.Info("seed: done", "users", res.Users, "pulses", res.Pulses)
	return res, nil
}

// follow wires a random follow graph. Both sides of each edge are kept in
// step: b in a.VibingWith exactly when a in b.Tribe.
func (f *Factory) follow(users []model.User) {
	for i := range users {
		for j := range users {
			if i == j || f.fake.Number(0, 3) != 0 {
				continue
			}
			users[i].VibingWith = model.AddToSet(users[i].VibingWith, users[j].UID)
			users[j].Tribe = model.AddToSet(users[j].Tribe, users[i].UID)
		}
	}
}

func (f *Factory) pastTime() time.Time {
	back := time.Duration(f.fake.Number(0, f.opts.MaxDays*24*60)) * time.Minute
	return f.opts.Now().Add(-back)
}
