// File: cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gpt-queue/internal/config"
	"gpt-queue/internal/domain"
	"gpt-queue/internal/domain/ports/adapter"
	"gpt-queue/internal/infra/adapters/ai"
	"gpt-queue/internal/infra/adapters/delivery"
	"gpt-queue/internal/infra/db"
	"gpt-queue/internal/infra/events"
	"gpt-queue/internal/infra/logging"
	"gpt-queue/internal/infra/metrics"
	red "gpt-queue/internal/infra/redis"
	"gpt-queue/internal/infra/sched"
	"gpt-queue/internal/infra/worker"
)

var version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo("worker", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Job store ----
	store, err := db.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("open job store")
	}
	defer store.Close()

	// ---- Single poller lease ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	lease := red.NewPollerLease(redisClient, cfg.Queue.LeaseTTL, logger)
	pollCtx, err := lease.Hold(ctx)
	if errors.Is(err, domain.ErrLeaseHeld) {
		logger.Fatal().Msg("another worker is polling this queue")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("acquire poller lease")
	}

	// ---- Completion engine ----
	engine, err := ai.NewEngine(ctx, cfg.AI, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("completion engine")
	}
	logger.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("completion engine ready")

	// ---- Delivery ----
	var chat adapter.ChatPlatform
	if cfg.Bot.Token != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		chat = delivery.NewTelegramPlatform(botAPI)
	}
	dispatcher := delivery.NewDispatcher(delivery.NewWebhookSender(cfg.Delivery.Timeout), chat, cfg.Delivery.Timeout, logger)

	// ---- Job events ----
	var publisher adapter.JobEventPublisher = events.NoopPublisher{}
	if cfg.Events.AMQPURL != "" {
		rp, err := events.NewRabbitPublisher(cfg.Events.AMQPURL, cfg.Events.Queue)
		if err != nil {
			logger.Fatal().Err(err).Msg("rabbitmq")
		}
		publisher = rp
	}
	defer publisher.Close()

	// ---- Admin endpoint ----
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	admin := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTP.AdminPort), Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("admin server error")
		}
	}()

	// ---- Gauges ----
	stats := sched.NewStatsWorker(15*time.Second, store.Jobs, store.ReportStats, logger)
	go func() { _ = stats.Run(pollCtx) }()

	// ---- Poller (blocks; finalizes the in-flight job before returning) ----
	poller := worker.NewPoller(store.Jobs, engine, dispatcher, publisher,
		worker.PollerConfig{IdleInterval: cfg.Queue.PollInterval}, logger)
	if err := poller.Run(pollCtx); err != nil {
		logger.Error().Err(err).Msg("poller stopped")
	}
	if ctx.Err() == nil {
		logger.Error().Msg("poller lease lost; exiting")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = admin.Shutdown(shutdownCtx)
}
