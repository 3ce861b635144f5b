package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/abelbrown/vibesphere/internal/docstore"
	"github.com/abelbrown/vibesphere/internal/logging"
	"github.com/abelbrown/vibesphere/internal/model"
)

// Follow adds target to the viewer's Vibing With and the viewer to target's
// Tribe, then tells target. Following yourself is a no-op.
func (s *Service) Follow(ctx context.Context, targetUID string) error {
	me := s.Current()
	if me == nil {
		return ErrNoViewer
	}
	if targetUID == "" || targetUID == me.UID {
		return nil
	}
	if _, err := s.store.Get(ctx, model.CollectionUsers, targetUID); err != nil {
		return fmt.Errorf("follow %s: %w", targetUID, err)
	}

	doc, err := s.store.Mutate(ctx, model.CollectionUsers, me.UID, docstore.Patch{docstore.ArrayUnion("vibingWith", targetUID)})
	if err != nil {
		return fmt.Errorf("follow %s: %w", targetUID, err)
	}
	if _, err := s.store.Mutate(ctx, model.CollectionUsers, targetUID, docstore.Patch{docstore.ArrayUnion("tribe", me.UID)}); err != nil {
		return fmt.Errorf("follow %s: %w", targetUID, err)
	}
	s.applyDoc(doc)

	if s.notifier != nil && !me.IsVibingWith(targetUID) {
		n := model.Notification{
			ID:            uuid.NewString(),
			UserID:        targetUID,
			Type:          model.NotifyTribe,
			FromUserID:    me.UID,
			FromUsername:  me.Username,
			FromUserPhoto: me.PhotoURL,
			CreatedAt:     s.now().UTC(),
		}
		if err := s.notifier.Publish(ctx, n); err != nil {
			logging.Warn("identity: tribe notification failed", "target", targetUID, "err", err)
		}
	}
	return nil
}

// Unfollow reverses Follow.
func (s *Service) Unfollow(ctx context.Context, targetUID string) error {
	me := s.Current()
	if me == nil {
		return ErrNoViewer
	}
	if targetUID == "" || targetUID == me.UID {
		return nil
	}
	doc, err := s.store.Mutate(ctx, model.CollectionUsers, me.UID, docstore.Patch{docstore.ArrayRemove("vibingWith", targetUID)})
	if err != nil {
		return fmt.Errorf("unfollow %s: %w", targetUID, err)
	}
	if _, err := s.store.Mutate(ctx, model.CollectionUsers, targetUID, docstore.Patch{docstore.ArrayRemove("tribe", me.UID)}); err != nil {
		return fmt.Errorf("unfollow %s: %w", targetUID, err)
	}
	s.applyDoc(doc)
	return nil
}

// applyDoc updates Current from a freshly written viewer document without
// waiting for the watch to deliver it.
func (s *Service) applyDoc(doc docstore.Document) {
	var u model.User
	if err := doc.Decode(&u); err != nil {
		return
	}
	s.refresh(u)
}
