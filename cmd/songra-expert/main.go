package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/resolvehub/songra/internal/api"
	"github.com/resolvehub/songra/internal/expert"
	"github.com/resolvehub/songra/internal/notify"
	"github.com/resolvehub/songra/internal/schedule"
	"github.com/resolvehub/songra/internal/session"
	"github.com/resolvehub/songra/internal/tickets"
	"github.com/resolvehub/songra/pkg/config"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "songra-expert",
		Short: "Console expert Songra : suivi et résolution des tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "chemin du fichier de configuration")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	var store session.Storage
	if cfg.Database.UseInMemory {
		store = session.NewMemoryStorage()
	} else {
		store, err = session.NewPostgresStorage(session.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return err
		}
	}
	defer store.Close()

	queue := notify.NewQueue(cfg.Notify.TTL())
	sess := session.NewManager(store, queue, logger)
	backend := api.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout(), sess.Token, logger)
	sess.SetClient(backend)

	ticketStore := tickets.NewStore()
	sched := schedule.NewScheduler()
	ctrl := tickets.NewController(backend, queue, logger)

	console := expert.NewConsole(backend, sess, ticketStore, sched, queue, ctrl,
		cfg.Refresh.Period(), os.Stdin, os.Stdout, logger)

	return console.Run(context.Background())
}
