// Package telegram sends activity notifications to hosts through a Telegram bot
// and lets users link their chat to their account.
package telegram

import (
	"context"
	"fmt"
	"pipi/backend/internal/localization"
	"pipi/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Event is what happened to an activity from the host's point of view.
type Event string

const (
	EventJoined   Event = "joined"
	EventLeft     Event = "left"
	EventVerified Event = "verified"
)

// Notifier tells a host about changes to their activity.
type Notifier interface {
	NotifyHost(ctx context.Context, a models.Activity, ev Event, actorID string) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) NotifyHost(context.Context, models.Activity, Event, string) error { return nil }

// Sender is the part of *tgbotapi.BotAPI used for outgoing messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// UserReader looks up users by id.
type UserReader interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// BotNotifier sends notifications to hosts that linked a Telegram chat.
type BotNotifier struct {
	Sender    Sender
	Users     UserReader
	Localizer *localization.Localizer
	Logger    *zap.Logger
}

func NewBotNotifier(sender Sender, users UserReader, loc *localization.Localizer, logger *zap.Logger) *BotNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BotNotifier{Sender: sender, Users: users, Localizer: loc, Logger: logger}
}

// NotifyHost sends one message to the host. Hosts without a linked chat are
// skipped silently.
func (n *BotNotifier) NotifyHost(ctx context.Context, a models.Activity, ev Event, actorID string) error {
	host, err := n.Users.GetUserByID(ctx, a.HostID)
	if err != nil {
		return fmt.Errorf("load host %s: %w", a.HostID, err)
	}
	if host.TelegramChatID == nil {
		return nil
	}

	actorName := actorID
	if actor, err := n.Users.GetUserByID(ctx, actorID); err == nil && actor.Nickname != "" {
		actorName = actor.Nickname
	}

	text := n.Localizer.Format(langOf(host), "notify_"+string(ev), actorName, a.Title)
	if _, err := n.Sender.Send(tgbotapi.NewMessage(*host.TelegramChatID, text)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	n.Logger.Debug("Host notified",
		zap.String("activity_id", a.ID),
		zap.String("event", string(ev)))
	return nil
}

// AsyncNotifier hands notifications to a bounded goroutine pool so callers never
// wait on the Telegram API. Failures are logged.
type AsyncNotifier struct {
	inner  Notifier
	pool   *pool.Pool
	logger *zap.Logger
}

func NewAsyncNotifier(inner Notifier, maxGoroutines int, logger *zap.Logger) *AsyncNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncNotifier{
		inner:  inner,
		pool:   pool.New().WithMaxGoroutines(maxGoroutines),
		logger: logger,
	}
}

func (n *AsyncNotifier) NotifyHost(_ context.Context, a models.Activity, ev Event, actorID string) error {
	a = a.Clone()
	n.pool.Go(func() {
		if err := n.inner.NotifyHost(context.Background(), a, ev, actorID); err != nil {
			n.logger.Warn("Failed to notify host",
				zap.String("activity_id", a.ID),
				zap.String("event", string(ev)),
				zap.Error(err))
		}
	})
	return nil
}

// Wait blocks until queued notifications are sent. The notifier cannot be used
// afterwards.
func (n *AsyncNotifier) Wait() {
	n.pool.Wait()
}

func langOf(u *models.User) string {
	if u.Language == "" {
		return localization.DefaultLang
	}
	return u.Language
}
