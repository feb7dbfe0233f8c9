package main

import (
	"context"
	"fmt"
	"os"

	"todome/internal/backup"
	"todome/internal/config"
	"todome/internal/controller"
	"todome/internal/logging"
	"todome/internal/repository"
	"todome/internal/storage"
	"todome/internal/task"
	"todome/internal/ui"
)

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() error {
	configPath := config.ResolveConfigPath()
	cfg, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, logFile, err := logging.OpenFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer logFile.Close()
	logger.Info("starting", "config", configPath, "db", cfg.DBPath)

	store, err := storage.Open(cfg.DBPath, storage.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	if cfg.Backup.Enabled {
		backup.Run(logger, store.Path(), cfg.Backup.Dir)
	}

	tab, err := task.ParseTab(cfg.DefaultTab)
	if err != nil {
		logger.Warn("unknown default tab, using todo", "value", cfg.DefaultTab)
	}

	if _, err := task.ParsePriority(cfg.DefaultPriority); err != nil {
		logger.Warn("unknown default priority, using normal", "value", cfg.DefaultPriority)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := controller.New(repository.New(store),
		controller.WithLogger(logger),
		controller.WithInitialTab(tab),
	)
	ctrl.Start(ctx)
	defer ctrl.Close()

	if err := ui.Run(ctx, ctrl, cfg); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}
