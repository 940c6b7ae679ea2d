// File: cmd/migrate/main.go
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"gpt-queue/internal/config"
	"gpt-queue/internal/infra/db"
	"gpt-queue/internal/infra/logging"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	down := flag.Bool("down", false, "roll back the most recent migration")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := db.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("open job store")
	}
	defer store.Close()

	if *down {
		if err := store.Rollback(ctx); err != nil {
			logger.Fatal().Err(err).Msg("rollback")
		}
	} else {
		n, err := store.Migrate(ctx, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
		logger.Info().Int("applied", n).Msg("migrations complete")
	}

	v, err := store.Version(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("read schema version")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Int64("version", v).Msg("schema version")
}
