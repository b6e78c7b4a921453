package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"pipi/backend/internal/activity"
	"pipi/backend/internal/api/handler"
	"pipi/backend/internal/auth"
	"pipi/backend/internal/hub"
	"pipi/backend/internal/localization"
	"pipi/backend/internal/proximity"
	"pipi/backend/internal/setup"
	"pipi/backend/internal/telegram"
	"pipi/backend/internal/verifier"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// notifyWorkers bounds concurrent Telegram sends.
const notifyWorkers = 4

func main() {
	log.Println("Starting PiPi Backend...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. Ініціалізація залежностей
	app, err := setup.InitializeApp(ctx)
	if err != nil {
		return err
	}
	defer app.Cleanup()
	cfg, logger := app.Config, app.Logger

	loc, err := localization.NewLocalizer()
	if err != nil {
		return err
	}
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// 2. Telegram notifications are optional
	var (
		notifier telegram.Notifier = telegram.Nop{}
		bot      *telegram.BotService
		async    *telegram.AsyncNotifier
	)
	if cfg.Telegram.BotToken != "" {
		bot, err = telegram.NewBotService(cfg.Telegram.BotToken, app.Store, tokens, loc, logger)
		if err != nil {
			return err
		}
		async = telegram.NewAsyncNotifier(telegram.NewBotNotifier(bot, app.Store, loc, logger), notifyWorkers, logger)
		notifier = async
	} else {
		logger.Info("TELEGRAM_BOT_TOKEN not set, host notifications disabled")
	}

	// 3. Сервіси та Hub
	policy, err := proximity.ParsePolicy(cfg.Proximity.Policy)
	if err != nil {
		return err
	}
	v := verifier.New(app.Store, notifier, logger)
	v.RequireMembership = cfg.Proximity.RequireMembership
	activities := activity.NewService(app.Store, notifier, cfg.Activity.JoinMode, logger)
	h := hub.NewManagerService(app.Store, v, hub.Options{
		Threshold:     cfg.Proximity.Threshold,
		Policy:        policy,
		SearchTimeout: cfg.Proximity.SearchTimeout,
		DismissDelay:  cfg.Proximity.DismissDelay,
	}, logger)

	// 4. Налаштування Gin та роутингу
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	handler.NewHandler(h, activities, app.Store, tokens, loc, logger).Routes(r)

	server := &http.Server{
		Addr:           cfg.Server.Addr,
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	// 5. Запуск основних Goroutines
	var wg conc.WaitGroup
	wg.Go(func() {
		if err := h.Run(ctx); err != nil {
			logger.Error("Hub stopped", zap.Error(err))
		}
	})
	if bot != nil {
		wg.Go(func() { bot.Run(ctx) })
	}
	wg.Go(func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	})

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	wg.Wait()
	h.Wait()
	if async != nil {
		async.Wait()
	}
	return nil
}
