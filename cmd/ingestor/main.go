package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"nexnews/internal/app"
	"nexnews/internal/config"
	"nexnews/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ingestor, err := app.NewIngestor(cfg, logger)
	if err != nil {
		logger.Error("ingestor init failed", "error", err)
		os.Exit(1)
	}

	if err := ingestor.Run(ctx); err != nil {
		logger.Error("ingestor stopped", "error", err)
		os.Exit(1)
	}
}
