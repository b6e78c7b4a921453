// Package setup wires configuration, logging and storage for the binaries.
package setup

import (
	"context"
	"fmt"
	"log"
	"pipi/backend/internal/config"
	"pipi/backend/internal/logging"
	"pipi/backend/internal/retry"
	"pipi/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// AppSetup contains all the common setup components.
type AppSetup struct {
	Config *config.Config
	Logger *zap.Logger
	Store  storage.Storage

	// DB and Redis are nil with the memory backend.
	DB    *gorm.DB
	Redis *redis.Client
}

// InitializeApp loads the config, builds the logger and opens the configured
// storage backend. configPaths override the default search path.
func InitializeApp(ctx context.Context, configPaths ...string) (*AppSetup, error) {
	cfg, file, err := config.Load(configPaths...)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	if file != "" {
		logger.Info("Loaded config file", zap.String("path", file))
	}

	app := &AppSetup{Config: cfg, Logger: logger}
	if cfg.Storage.Backend == config.BackendMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		app.Store = storage.NewMemoryStore(logger)
		return app, nil
	}

	if err := app.connect(ctx); err != nil {
		app.Cleanup()
		return nil, err
	}
	return app, nil
}

// connect opens Postgres and Redis, retrying while they come up, and migrates.
func (a *AppSetup) connect(ctx context.Context) error {
	db, err := retry.Do(ctx, func() (*gorm.DB, error) {
		db, err := gorm.Open(postgres.Open(a.Config.PostgreSQL.DSN()), &gorm.Config{TranslateError: true})
		if err != nil {
			a.Logger.Warn("PostgreSQL not ready", zap.Error(err))
			return nil, err
		}
		return db, nil
	}, retry.ConnectOptions())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.DB = db

	if err := storage.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	a.Redis = rdb
	_, err = retry.Do(ctx, func() (string, error) {
		res, err := rdb.Ping(ctx).Result()
		if err != nil {
			a.Logger.Warn("Redis not ready", zap.Error(err))
		}
		return res, err
	}, retry.ConnectOptions())
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	a.Logger.Info("Database and Redis connections established, migrations complete.")
	a.Store = storage.NewStorageService(db, rdb, a.Logger)
	return nil
}

// Cleanup closes connections and flushes the logger.
func (a *AppSetup) Cleanup() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err := a.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}
}
