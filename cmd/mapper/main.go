package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/samvad-news-mapper/internal/app"
	"github.com/samvad-hq/samvad-news-mapper/internal/config"
	"github.com/samvad-hq/samvad-news-mapper/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mapper start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("mapper starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mapper, err := app.NewMapper(ctx, cfg, logger.Std{})
	if err != nil {
		logger.ErrorObj("failed to initialize mapper", "error", err)
		return err
	}

	if err := mapper.Run(ctx); err != nil {
		return fmt.Errorf("mapper run: %w", err)
	}

	return nil
}
