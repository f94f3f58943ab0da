package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/abelzeko/water-monitor/internal/api"
	"github.com/abelzeko/water-monitor/internal/config"
	"github.com/abelzeko/water-monitor/internal/integration/openai"
	"github.com/abelzeko/water-monitor/internal/log"
	"github.com/abelzeko/water-monitor/internal/repository"
	"github.com/abelzeko/water-monitor/internal/usecases"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure logging
	if err := log.Init(cfg.Debug); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer log.Sync()
	log.Info("Starting Water Monitor Bot...")

	// Initialize OpenAI Service; without it every analysis falls back
	var aiService openai.Service
	if svc, err := openai.NewService(openai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	}); err != nil {
		log.Warnf("AI analysis disabled: %v", err)
	} else {
		aiService = svc
	}

	useCase := usecases.NewWaterUseCase(aiService, usecases.NewSimulator(cfg.RefreshDelay, nil), usecases.Options{
		Thresholds:        &cfg.Thresholds,
		DisplayRanges:     &cfg.DisplayRanges,
		PredictionTimeout: cfg.PredictionTimeout,
	})

	if cfg.TelegramBotToken == "" {
		log.Fatalf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	// each chat gets a fresh store; a file DSN would be shared, so chats always use memory
	openStore := func() (repository.SourceRepository, error) {
		if cfg.StoreDriver == "sqlite" || cfg.StoreDriver == "sqlite3" {
			return repository.Open(cfg.StoreDriver, repository.InMemoryDSN, nil)
		}
		return repository.Open("memory", "", nil)
	}

	telegramBot, err := api.NewTelegramBot(cfg.TelegramBotToken, useCase, openStore)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram bot: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramBot.Start(ctx)
}
