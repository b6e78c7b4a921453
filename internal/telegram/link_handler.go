package telegram

import (
	"context"
	"pipi/backend/internal/localization"
	"pipi/backend/internal/models"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// LinkStorage defines the storage methods required by the link handler.
type LinkStorage interface {
	UserReader
	UpdateUser(ctx context.Context, user *models.User) error
}

// LinkCodeParser resolves a link code from the app to a user id.
type LinkCodeParser interface {
	ParseLinkCode(code string) (string, error)
}

// LinkHandler processes /start <code> and /stop. /start binds the chat to the
// account encoded in the code, /stop unbinds whoever owns the code's account.
type LinkHandler struct {
	Storage   LinkStorage
	Codes     LinkCodeParser
	Sender    Sender
	Localizer *localization.Localizer
	Logger    *zap.Logger
}

// Handle reacts to one update. Non-command messages get the help text.
func (h *LinkHandler) Handle(ctx context.Context, update *tgbotapi.Update) {
	if update.Message == nil {
		return
	}
	msg := update.Message
	lang := localization.DefaultLang
	if msg.From != nil && msg.From.LanguageCode != "" {
		lang = h.Localizer.Match(msg.From.LanguageCode)
	}

	var key string
	switch msg.Command() {
	case "start":
		key = h.link(ctx, msg.Chat.ID, strings.TrimSpace(msg.CommandArguments()), lang)
	case "stop":
		key = h.unlink(ctx, msg.Chat.ID, strings.TrimSpace(msg.CommandArguments()))
	default:
		key = "telegram_help"
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, h.Localizer.GetString(lang, key))
	if _, err := h.Sender.Send(reply); err != nil {
		h.Logger.Warn("Error sending link reply", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}

func (h *LinkHandler) link(ctx context.Context, chatID int64, code, lang string) string {
	if code == "" {
		return "telegram_help"
	}
	user, ok := h.userForCode(ctx, code)
	if !ok {
		return "telegram_link_invalid"
	}

	user.TelegramChatID = &chatID
	if user.Language == "" {
		user.Language = lang
	}
	if err := h.Storage.UpdateUser(ctx, user); err != nil {
		h.Logger.Error("Error linking telegram chat", zap.String("user_id", user.ID), zap.Error(err))
		return "internal_error"
	}
	return "telegram_linked"
}

func (h *LinkHandler) unlink(ctx context.Context, chatID int64, code string) string {
	user, ok := h.userForCode(ctx, code)
	if !ok || user.TelegramChatID == nil || *user.TelegramChatID != chatID {
		return "telegram_link_invalid"
	}
	user.TelegramChatID = nil
	if err := h.Storage.UpdateUser(ctx, user); err != nil {
		h.Logger.Error("Error unlinking telegram chat", zap.String("user_id", user.ID), zap.Error(err))
		return "internal_error"
	}
	return "telegram_unlinked"
}

func (h *LinkHandler) userForCode(ctx context.Context, code string) (*models.User, bool) {
	userID, err := h.Codes.ParseLinkCode(code)
	if err != nil {
		return nil, false
	}
	user, err := h.Storage.GetUserByID(ctx, userID)
	if err != nil {
		h.Logger.Warn("Link code for unknown user", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	return user, true
}
