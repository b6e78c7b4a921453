package telegram

import (
	"context"
	"fmt"
	"pipi/backend/internal/localization"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// BotService owns the bot connection: it polls updates for the link handler and
// is the Sender used by BotNotifier.
type BotService struct {
	BotAPI *tgbotapi.BotAPI
	Links  *LinkHandler
	Logger *zap.Logger
}

// NewBotService creates a new BotService instance.
func NewBotService(token string, s LinkStorage, codes LinkCodeParser, loc *localization.Localizer, logger *zap.Logger) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authorize telegram bot: %w", err)
	}
	bot.Debug = false
	logger.Info("Authorized on telegram account", zap.String("username", bot.Self.UserName))

	return &BotService{
		BotAPI: bot,
		Links: &LinkHandler{
			Storage:   s,
			Codes:     codes,
			Sender:    bot,
			Localizer: loc,
			Logger:    logger,
		},
		Logger: logger,
	}, nil
}

// Send implements Sender.
func (s *BotService) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return s.BotAPI.Send(c)
}

// Run polls updates until ctx is cancelled.
func (s *BotService) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			s.BotAPI.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.Links.Handle(ctx, &update)
		}
	}
}
