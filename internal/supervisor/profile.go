package supervisor

import (
	"context"
	"strings"
	"time"

	"github.com/matheus3301/wahub/internal/bus"
	"github.com/matheus3301/wahub/internal/qr"
	"github.com/matheus3301/wahub/internal/store"
	"github.com/matheus3301/wahub/internal/wa"
	"go.uber.org/zap"
)

var renderQR = qr.DataURL

// syncProfile reads the linked account once the connection opens, stores it
// and publishes profile_info. The identity may lag the open event, so it is
// read after a short delay and retried once.
func (s *Supervisor) syncProfile(ctx context.Context, e *entry) {
	log := s.logger.With(zap.String("instance", e.id))

	if !sleep(ctx, s.opts.ProfileDelay) {
		return
	}
	ident, ok := e.session.Self()
	if !ok {
		if !sleep(ctx, s.opts.ProfileRetryDelay) {
			return
		}
		if ident, ok = e.session.Self(); !ok {
			log.Warn("linked account not available after retry")
			return
		}
	}

	avatar, err := e.session.ProfilePictureURL(ctx, ident.JID)
	if err != nil {
		log.Debug("profile picture unavailable", zap.Error(err))
	}

	p := store.Profile{
		UserID:    ident.JID,
		UserName:  displayName(ident),
		AvatarURL: avatar,
	}
	if err := s.db.SetInstanceProfile(e.id, p); err != nil {
		log.Error("failed to store profile", zap.Error(err))
	}
	s.bus.Emit(bus.InstanceRoom(e.id), EventProfileInfo, ProfilePayload{
		InstanceID:        e.id,
		UserID:            p.UserID,
		UserName:          p.UserName,
		ProfilePictureURL: p.AvatarURL,
	})
	log.Info("profile synced", zap.String("user", p.UserID))
}

// displayName prefers the push name, then the business name, then the
// phone number part of the JID.
func displayName(id wa.Identity) string {
	switch {
	case id.PushName != "":
		return id.PushName
	case id.BusinessName != "":
		return id.BusinessName
	}
	user, _, _ := strings.Cut(id.JID, "@")
	return user
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
