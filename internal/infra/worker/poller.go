package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"gpt-queue/internal/domain"
	"gpt-queue/internal/domain/model"
	"gpt-queue/internal/domain/ports/adapter"
	"gpt-queue/internal/domain/ports/repository"
	"gpt-queue/internal/infra/logging"
	"gpt-queue/internal/infra/metrics"
)

type PollerConfig struct {
	IdleInterval time.Duration
}

// Poller is the single consumer of the job queue. It claims one job at a
// time, completes it, delivers the result and finalizes the job.
type Poller struct {
	jobs       repository.JobRepository
	engine     adapter.CompletionEngine
	dispatcher adapter.Dispatcher
	events     adapter.JobEventPublisher
	cfg        PollerConfig
	log        *zerolog.Logger
}

func NewPoller(
	jobs repository.JobRepository,
	engine adapter.CompletionEngine,
	dispatcher adapter.Dispatcher,
	events adapter.JobEventPublisher,
	cfg PollerConfig,
	logger *zerolog.Logger,
) *Poller {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = time.Second
	}
	l := logger.With().Str("component", "poller").Logger()
	return &Poller{
		jobs:       jobs,
		engine:     engine,
		dispatcher: dispatcher,
		events:     events,
		cfg:        cfg,
		log:        &l,
	}
}

// Run polls until ctx is cancelled. A job already claimed when ctx ends is
// still finalized before Run returns.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info().Dur("idle_interval", p.cfg.IdleInterval).Msg("poller started")
	for {
		if ctx.Err() != nil {
			p.log.Info().Msg("poller stopping")
			return nil
		}

		worked, err := p.ProcessOne(ctx)
		if err != nil {
			p.log.Error().Err(err).Msg("poll cycle failed")
		}
		if worked && err == nil {
			continue
		}

		metrics.IncPollerIdle()
		select {
		case <-ctx.Done():
			p.log.Info().Msg("poller stopping")
			return nil
		case <-time.After(p.cfg.IdleInterval):
		}
	}
}

// ProcessOne claims and handles at most one job. It reports whether a job
// was claimed.
func (p *Poller) ProcessOne(ctx context.Context) (bool, error) {
	job, err := p.jobs.Claim(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	metrics.IncJobClaimed()

	// the claimed job must reach a terminal state even during shutdown
	jobCtx := logging.WithRequesterID(logging.WithJobID(context.WithoutCancel(ctx), job.ID), job.RequesterID)
	log := logging.With(jobCtx, p.log)
	log.Info().Str("slug", job.Slug).Msg("job claimed")
	start := time.Now()

	completion := p.engine.Complete(jobCtx, job.Message)
	if !completion.OK() {
		log.Warn().Err(completion.Err).Msg("completion failed, delivering error text")
	}
	body := completion.Output()

	dest := model.DestinationFor(job)
	outcome := p.dispatcher.Deliver(jobCtx, dest, model.Payload{
		JobID:       job.ID,
		RequesterID: job.RequesterID,
		Prompt:      job.Message,
		Body:        body,
	})

	state, response, result := model.JobFailed, "", 0
	if outcome.Delivered {
		state, response, result = model.JobCompleted, body, 1
	} else {
		log.Error().
			Err(outcome.Err).
			Str("via", string(outcome.Via)).
			Int("status_code", outcome.StatusCode).
			Str("body", outcome.Body).
			Msg("delivery failed")
	}

	if err := p.jobs.Finalize(jobCtx, nil, job.ID, state, response); err != nil {
		return true, err
	}
	metrics.IncJobFinished(string(state))
	log.Info().Str("state", string(state)).Dur("duration", time.Since(start)).Msg("job finished")

	if err := p.events.Publish(jobCtx, adapter.JobEvent{ID: job.ID, State: state, Result: result}); err != nil {
		log.Warn().Err(err).Msg("publish job event")
	}
	if n, err := p.jobs.CountByState(jobCtx, nil, model.JobQueued); err == nil {
		metrics.SetQueueDepth(n)
	}
	return true, nil
}
