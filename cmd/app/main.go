// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gpt-queue/internal/config"
	"gpt-queue/internal/domain/ports/adapter"
	"gpt-queue/internal/infra/adapters/delivery"
	tele "gpt-queue/internal/infra/adapters/telegram"
	"gpt-queue/internal/infra/db"
	httpapi "gpt-queue/internal/infra/http"
	"gpt-queue/internal/infra/logging"
	"gpt-queue/internal/infra/metrics"
	red "gpt-queue/internal/infra/redis"
	"gpt-queue/internal/usecase"
)

var version = "dev"

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, auto-migrate, echo provider)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo("app", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Job store ----
	store, err := db.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("open job store")
	}
	defer store.Close()
	if cfg.Runtime.Dev {
		if _, err := store.Migrate(ctx, logger); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	directory := red.NewDirectory(redisClient)
	limiter := red.NewRateLimiter(redisClient, cfg.Queue.RateLimit, cfg.Queue.RateWindow)
	jobs := db.NewJobRepoCacheDecorator(store.Jobs, redisClient, cfg.Redis.CacheTTL, logger)

	// ---- Delivery (used by share) ----
	var (
		botAPI *tgbotapi.BotAPI
		chat   adapter.ChatPlatform
	)
	if cfg.Bot.Token != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Bot.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		chat = delivery.NewTelegramPlatform(botAPI)
	}
	dispatcher := delivery.NewDispatcher(delivery.NewWebhookSender(cfg.Delivery.Timeout), chat, cfg.Delivery.Timeout, logger)

	// ---- Use case ----
	enqueueUC := usecase.NewEnqueueUseCase(jobs, dispatcher, directory, usecase.EnqueueConfig{
		CommandName:       cfg.Bot.Command,
		DefaultWebhookURL: cfg.Queue.DefaultWebhookURL,
		DebugRequesterIDs: cfg.Queue.DebugRequesterIDs,
		RecentLimit:       cfg.Queue.RecentLimit,
	}, logger)

	// ---- Front ends ----
	srv := httpapi.NewServer(enqueueUC, directory, limiter, cfg.HTTP.RequestTimeout, logger).WithChannelDelivery(chat != nil)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start(cfg.HTTP.Port) }()

	if botAPI != nil {
		bot, err := tele.NewBot(botAPI, cfg.Bot, enqueueUC, directory, limiter, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram bot")
		}
		go func() {
			if err := bot.StartPolling(ctx); err != nil {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	}

	// ---- Graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
