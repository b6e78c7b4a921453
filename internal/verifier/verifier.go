// Package verifier records attendance once a proximity session confirms that a
// participant stands next to the host.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"pipi/backend/internal/lifecycle"
	"pipi/backend/internal/models"
	"pipi/backend/internal/storage"
	"pipi/backend/internal/telegram"

	"go.uber.org/zap"
)

var (
	ErrHostSelfVerify = errors.New("host cannot verify own attendance")
	ErrNotParticipant = errors.New("user is not a participant")
)

// Verifier marks attendance flags in the store.
type Verifier struct {
	Store    storage.Storage
	Notifier telegram.Notifier
	Logger   *zap.Logger
	// RequireMembership rejects users that are not listed in participant_id.
	RequireMembership bool
}

func New(store storage.Storage, notifier telegram.Notifier, logger *zap.Logger) *Verifier {
	if notifier == nil {
		notifier = telegram.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		Store:             store,
		Notifier:          notifier,
		Logger:            logger,
		RequireMembership: true,
	}
}

// Eligible reports whether userID may verify attendance for a.
func (v *Verifier) Eligible(a models.Activity, userID string) error {
	if a.HostID == userID {
		return ErrHostSelfVerify
	}
	if v.RequireMembership && !lifecycle.IsMember(a, userID) {
		return ErrNotParticipant
	}
	return nil
}

// OnProximityConfirmed sets authentication[userID] = true with a single-key write
// and returns the stored record as read after the write. The flag is written even
// if it is already true. On failure the activity comes back unchanged together
// with the error; nothing is retried.
func (v *Verifier) OnProximityConfirmed(ctx context.Context, a models.Activity, userID string) (*models.Activity, error) {
	if err := v.Eligible(a, userID); err != nil {
		return &a, err
	}

	if err := v.Store.SetAuthentication(ctx, a.ID, userID, true); err != nil {
		v.Logger.Error("Failed to record attendance",
			zap.String("activity_id", a.ID),
			zap.String("user_id", userID),
			zap.Error(err))
		return &a, fmt.Errorf("set authentication: %w", err)
	}

	v.Logger.Info("Attendance verified",
		zap.String("activity_id", a.ID),
		zap.String("user_id", userID))

	// a is whatever the caller loaded before the session; other flags may have
	// changed since then.
	updated, err := v.Store.GetActivity(ctx, a.ID)
	if err != nil {
		v.Logger.Warn("Failed to reload activity after verification", zap.String("activity_id", a.ID), zap.Error(err))
		local := lifecycle.UpdatingAuthentication(a, userID, true)
		updated = &local
	}

	ev := models.ActivityEvent{Kind: models.EventActivityUpdated, ActivityID: a.ID, Activity: updated}
	if err := v.Store.PublishActivityEvent(ctx, ev); err != nil {
		v.Logger.Warn("Failed to publish activity event", zap.String("activity_id", a.ID), zap.Error(err))
	}
	if err := v.Notifier.NotifyHost(ctx, *updated, telegram.EventVerified, userID); err != nil {
		v.Logger.Warn("Failed to notify host", zap.String("activity_id", a.ID), zap.Error(err))
	}
	return updated, nil
}

// Tally is the host-side progress view.
func (v *Verifier) Tally(a models.Activity) lifecycle.Tally {
	return lifecycle.TallyOf(a)
}
