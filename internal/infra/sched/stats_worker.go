package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"gpt-queue/internal/domain/model"
	"gpt-queue/internal/domain/ports/repository"
	"gpt-queue/internal/infra/metrics"
)

// StatsWorker periodically refreshes queue gauges and, through poolStats,
// the database pool gauges.
type StatsWorker struct {
	interval  time.Duration
	jobs      repository.JobRepository
	poolStats func()
	log       *zerolog.Logger
}

func NewStatsWorker(interval time.Duration, jobs repository.JobRepository, poolStats func(), logger *zerolog.Logger) *StatsWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	statsLog := logger.With().Str("component", "StatsWorker").Logger()
	return &StatsWorker{
		interval:  interval,
		jobs:      jobs,
		poolStats: poolStats,
		log:       &statsLog,
	}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting stats worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stats worker")
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick performs one refresh.
func (w *StatsWorker) Tick(ctx context.Context) {
	n, err := w.jobs.CountByState(ctx, nil, model.JobQueued)
	if err != nil {
		w.log.Error().Err(err).Msg("count queued jobs")
	} else {
		metrics.SetQueueDepth(n)
	}

	p, err := w.jobs.CountByState(ctx, nil, model.JobProcessing)
	if err != nil {
		w.log.Error().Err(err).Msg("count processing jobs")
	} else {
		metrics.SetJobsProcessing(p)
		// only the single poller moves jobs out of processing
		if p > 1 {
			w.log.Warn().Int("count", p).Msg("more than one job in processing")
		}
	}

	if w.poolStats != nil {
		w.poolStats()
	}
}
