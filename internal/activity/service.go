// Package activity implements the activity use cases on top of the record store:
// create, edit, delete, join, leave and the host/participant views.
package activity

import (
	"context"
	"errors"
	"fmt"
	"pipi/backend/internal/config"
	"pipi/backend/internal/lifecycle"
	"pipi/backend/internal/models"
	"pipi/backend/internal/retry"
	"pipi/backend/internal/storage"
	"pipi/backend/internal/telegram"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrActivityFull   = errors.New("activity is full")
	ErrAlreadyMember  = errors.New("already a participant")
	ErrNotMember      = errors.New("not a participant")
	ErrNotHost        = errors.New("only the host may do this")
	ErrHostCannotJoin = errors.New("host cannot join own activity")

	ErrTitleEmpty      = errors.New("title is empty")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidCapacity = errors.New("invalid capacity")
)

// Ticket roles.
const (
	RoleParticipant = "participant"
	RoleOrganizer   = "organizer"
)

// ListFilter narrows List. Zero value lists every open activity.
type ListFilter struct {
	Category     *models.Category
	Center       *models.Coordinates
	RadiusMeters float64
}

type Service struct {
	Store    storage.Storage
	Notifier telegram.Notifier
	Logger   *zap.Logger
	// JoinMode is config.JoinModeConditional or config.JoinModeLiteral.
	JoinMode string
	Retry    retry.Options
}

func NewService(store storage.Storage, notifier telegram.Notifier, joinMode string, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = telegram.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if joinMode == "" {
		joinMode = config.JoinModeConditional
	}
	return &Service{
		Store:    store,
		Notifier: notifier,
		Logger:   logger,
		JoinMode: joinMode,
		Retry:    retry.JoinOptions(),
	}
}

// Create stores a new activity owned by hostID. Membership fields from the input
// are discarded.
func (s *Service) Create(ctx context.Context, hostID string, a *models.Activity) error {
	a.HostID = hostID
	a.ParticipantID = nil
	a.Authentication = nil
	a.Title = strings.TrimSpace(a.Title)
	if a.Category == "" {
		a.Category = models.CategoryUnspecified
	}
	if err := validate(*a); err != nil {
		return err
	}

	if err := s.Store.CreateActivity(ctx, a); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	s.Logger.Info("Activity created", zap.String("activity_id", a.ID), zap.String("host_id", hostID))
	s.publish(ctx, models.EventActivityCreated, a.ID, a)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Activity, error) {
	return s.Store.GetActivity(ctx, id)
}

// List returns open activities matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.Activity, error) {
	all, err := s.Store.ListActivities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	out := lifecycle.FilterOpen(all, f.Category)
	if f.Center != nil && f.RadiusMeters > 0 {
		out = lifecycle.Near(out, *f.Center, f.RadiusMeters)
	}
	return out, nil
}

// Edit applies a host's changes. Participants and attendance are not editable
// here.
func (s *Service) Edit(ctx context.Context, userID, id string, patch models.ActivityPatch) (*models.Activity, error) {
	a, err := s.Store.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.HostID != userID {
		return nil, ErrNotHost
	}

	patch.ParticipantID = nil
	patch.Authentication = nil
	if patch.Title != nil {
		trimmed := strings.TrimSpace(*patch.Title)
		patch.Title = &trimmed
	}
	next := patch.Apply(*a)
	if err := validate(next); err != nil {
		return nil, err
	}
	if next.MaxPeopleNumber < len(next.ParticipantID)+1 {
		return nil, ErrInvalidCapacity
	}
	if patch.IsEmpty() {
		return a, nil
	}

	if err := s.Store.MergePatchActivity(ctx, id, patch); err != nil {
		return nil, fmt.Errorf("edit activity: %w", err)
	}
	updated := s.reload(ctx, id, next)
	s.publish(ctx, models.EventActivityUpdated, id, updated)
	return updated, nil
}

// Delete removes the activity. Only the host may delete it.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	a, err := s.Store.GetActivity(ctx, id)
	if err != nil {
		return err
	}
	if a.HostID != userID {
		return ErrNotHost
	}
	return s.Purge(ctx, id)
}

// Purge deletes the activity without an ownership check.
func (s *Service) Purge(ctx context.Context, id string) error {
	if err := s.Store.DeleteActivity(ctx, id); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	s.Logger.Info("Activity deleted", zap.String("activity_id", id))
	s.publish(ctx, models.EventActivityDeleted, id, nil)
	return nil
}

// Join adds userID as a participant.
//
// In literal mode the activity is read, extended in memory and written back with
// a merge-patch; two concurrent joins can both pass the capacity check. In
// conditional mode the write only lands if the participant count is still the
// one that was read; lost races are retried while the activity stays open.
func (s *Service) Join(ctx context.Context, userID, id string) (*models.Activity, error) {
	var (
		updated *models.Activity
		err     error
	)
	if s.JoinMode == config.JoinModeLiteral {
		updated, err = s.joinLiteral(ctx, userID, id)
	} else {
		updated, err = s.joinConditional(ctx, userID, id)
	}
	if err != nil {
		return nil, err
	}
	updated = s.reload(ctx, id, *updated)

	s.Logger.Info("Participant joined", zap.String("activity_id", id), zap.String("user_id", userID))
	s.publish(ctx, models.EventActivityUpdated, id, updated)
	s.notify(ctx, *updated, telegram.EventJoined, userID)
	return updated, nil
}

func (s *Service) joinLiteral(ctx context.Context, userID, id string) (*models.Activity, error) {
	a, err := s.Store.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := joinable(*a, userID); err != nil {
		return nil, err
	}

	next := lifecycle.AddingParticipant(*a, userID)
	participants := []string(next.ParticipantID)
	auth := next.Authentication
	patch := models.ActivityPatch{ParticipantID: &participants, Authentication: &auth}
	if err := s.Store.MergePatchActivity(ctx, id, patch); err != nil {
		return nil, fmt.Errorf("join activity: %w", err)
	}
	return &next, nil
}

func (s *Service) joinConditional(ctx context.Context, userID, id string) (*models.Activity, error) {
	attempt := 0
	updated, err := retry.Do(ctx, func() (*models.Activity, error) {
		attempt++
		a, err := s.Store.GetActivity(ctx, id)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		if err := joinable(*a, userID); err != nil {
			return nil, retry.Permanent(err)
		}

		err = s.Store.AppendParticipantIfCount(ctx, id, userID, len(a.ParticipantID))
		switch {
		case err == nil:
			next := lifecycle.AddingParticipant(*a, userID)
			return &next, nil
		case errors.Is(err, storage.ErrConflict):
			s.Logger.Debug("Join lost a race, retrying",
				zap.String("activity_id", id),
				zap.Int("attempt", attempt))
			return nil, err
		default:
			return nil, retry.Permanent(err)
		}
	}, s.Retry)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, fmt.Errorf("join activity after %d attempts: %w", attempt, err)
		}
		return nil, err
	}
	return updated, nil
}

// Leave removes userID from the participants together with their attendance flag.
// Flags of the other participants are left as stored.
func (s *Service) Leave(ctx context.Context, userID, id string) (*models.Activity, error) {
	a, err := s.Store.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lifecycle.IsMember(*a, userID) {
		return nil, ErrNotMember
	}

	next, err := s.removeParticipant(ctx, *a, userID)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("Participant left", zap.String("activity_id", id), zap.String("user_id", userID))
	s.notify(ctx, *next, telegram.EventLeft, userID)
	return next, nil
}

// Evict removes a participant without the membership owner asking. Used by the
// admin tool.
func (s *Service) Evict(ctx context.Context, id, userID string) (*models.Activity, error) {
	a, err := s.Store.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lifecycle.IsMember(*a, userID) {
		return nil, ErrNotMember
	}
	return s.removeParticipant(ctx, *a, userID)
}

func (s *Service) removeParticipant(ctx context.Context, a models.Activity, userID string) (*models.Activity, error) {
	if err := s.Store.RemoveParticipant(ctx, a.ID, userID); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("remove participant: %w", err)
	}
	updated := s.reload(ctx, a.ID, lifecycle.RemoveParticipant(a, userID))
	s.publish(ctx, models.EventActivityUpdated, a.ID, updated)
	return updated, nil
}

// reload reads the record back after a write so that results and events carry
// what other writers stored in between. fallback is returned if the read fails.
func (s *Service) reload(ctx context.Context, id string, fallback models.Activity) *models.Activity {
	a, err := s.Store.GetActivity(ctx, id)
	if err != nil {
		s.Logger.Warn("Failed to reload activity after write", zap.String("activity_id", id), zap.Error(err))
		return &fallback
	}
	return a
}

// Tickets lists the activities userID hosts (RoleOrganizer) or joined
// (RoleParticipant), open or not.
func (s *Service) Tickets(ctx context.Context, userID, role string) ([]models.Activity, error) {
	all, err := s.Store.ListActivities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	if role == RoleOrganizer {
		return lifecycle.Hosted(all, userID), nil
	}
	return lifecycle.Joined(all, userID), nil
}

// Tally returns the attendance progress. Only the host may read it.
func (s *Service) Tally(ctx context.Context, userID, id string) (lifecycle.Tally, error) {
	a, err := s.Store.GetActivity(ctx, id)
	if err != nil {
		return lifecycle.Tally{}, err
	}
	if a.HostID != userID {
		return lifecycle.Tally{}, ErrNotHost
	}
	return lifecycle.TallyOf(*a), nil
}

func (s *Service) publish(ctx context.Context, kind, id string, a *models.Activity) {
	ev := models.ActivityEvent{Kind: kind, ActivityID: id, Activity: a}
	if err := s.Store.PublishActivityEvent(ctx, ev); err != nil {
		s.Logger.Warn("Failed to publish activity event",
			zap.String("activity_id", id),
			zap.String("kind", kind),
			zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, a models.Activity, ev telegram.Event, actorID string) {
	if err := s.Notifier.NotifyHost(ctx, a, ev, actorID); err != nil {
		s.Logger.Warn("Failed to notify host", zap.String("activity_id", a.ID), zap.Error(err))
	}
}

func joinable(a models.Activity, userID string) error {
	switch {
	case a.HostID == userID:
		return ErrHostCannotJoin
	case lifecycle.IsMember(a, userID):
		return ErrAlreadyMember
	case !lifecycle.IsOpen(a):
		return ErrActivityFull
	}
	return nil
}

func validate(a models.Activity) error {
	switch {
	case a.Title == "":
		return ErrTitleEmpty
	case !a.Category.Valid():
		return ErrInvalidCategory
	case a.MaxPeopleNumber < 2:
		return ErrInvalidCapacity
	}
	return nil
}
