// Package compose creates new Pulses: upload the video, then write the
// Pulse document.
package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/abelbrown/vibesphere/internal/docstore"
	"github.com/abelbrown/vibesphere/internal/identity"
	"github.com/abelbrown/vibesphere/internal/logging"
	"github.com/abelbrown/vibesphere/internal/media"
	"github.com/abelbrown/vibesphere/internal/model"
)

var validate = validator.New()

// ErrInvalid wraps input validation failures.
var ErrInvalid = errors.New("compose: invalid pulse")

// Viewer supplies the author. identity.Service satisfies it.
type Viewer interface {
	Current() *model.User
}

// Draft is the user's input for a new Pulse.
type Draft struct {
	FileName string `validate:"required"`
	Video    []byte `validate:"required"`
	Caption  string `validate:"max=500"`
	Tags     string // comma separated, "#" optional
	Duration int    `validate:"gte=0,lte=600"` // seconds
	Wave     bool
}

// Service runs the create flow.
type Service struct {
	store    docstore.Store
	uploader media.Uploader
	viewer   Viewer
	now      func() time.Time
}

func New(store docstore.Store, uploader media.Uploader, viewer Viewer) *Service {
	return &Service{store: store, uploader: uploader, viewer: viewer, now: time.Now}
}

// ParseTags splits a comma list into clean, unique tags.
func ParseTags(s string) []string {
	return model.NormalizeTags(strings.Split(s, ","))
}

// Create uploads d.Video and stores the Pulse. Nothing is written when the
// upload fails.
func (s *Service) Create(ctx context.Context, d Draft) (model.Pulse, error) {
	me := s.viewer.Current()
	if me == nil {
		return model.Pulse{}, identity.ErrNoViewer
	}
	d.Caption = strings.TrimSpace(d.Caption)
	if err := validate.Struct(d); err != nil {
		return model.Pulse{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	url, err := s.uploader.Upload(ctx, d.FileName, d.Video)
	if err != nil {
		return model.Pulse{}, fmt.Errorf("upload video: %w", err)
	}

	p := model.Pulse{
		ID:          uuid.NewString(),
		UserID:      me.UID,
		Username:    me.Username,
		UserPhoto:   me.PhotoURL,
		VideoURL:    url,
		Caption:     d.Caption,
		Tags:        ParseTags(d.Tags),
		ResonatedBy: []string{},
		Echoes:      []model.Echo{},
		Duration:    d.Duration,
		CreatedAt:   s.now().UTC(),
		IsWave:      d.Wave,
	}
	doc, err := s.store.Add(ctx, model.CollectionPulses, p.ID, p)
	if err != nil {
		return model.Pulse{}, fmt.Errorf("create pulse: %w", err)
	}
	p.Version = doc.Version
	logging.Info("compose: pulse created", "id", p.ID, "user", me.UID, "tags", len(p.Tags))
	return p, nil
}
