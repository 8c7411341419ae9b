package main

import (
	"go.uber.org/zap"

	"github.com/resolvehub/songra/internal/api"
	"github.com/resolvehub/songra/internal/bot"
	"github.com/resolvehub/songra/internal/session"
	"github.com/resolvehub/songra/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize client-side persistence
	var store session.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = session.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = session.NewPostgresStorage(session.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// The user channel never authenticates: no token source.
	backend := api.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout(), nil, logger)

	b, err := bot.New(cfg.Telegram.Token, backend, store, cfg.Notify.TTL(), logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	if err := b.Start(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}
