package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"gpt-queue/internal/domain/model"
	"gpt-queue/internal/domain/ports/repository"
	"gpt-queue/internal/infra/metrics"
	red "gpt-queue/internal/infra/redis"
)

var _ repository.JobRepository = (*jobRepoCacheDecorator)(nil)

// jobRepoCacheDecorator caches point lookups of terminal jobs. A terminal
// job never changes, so entries need no invalidation beyond their TTL.
type jobRepoCacheDecorator struct {
	repository.JobRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewJobRepoCacheDecorator(inner repository.JobRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.JobRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "job_cache").Logger()
	return &jobRepoCacheDecorator{
		JobRepository: inner,
		cache:         cache,
		ttl:           ttl,
		log:           &l,
	}
}

func jobKey(id int64) string { return fmt.Sprintf("gptq:job:%d", id) }

func (d *jobRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Job, error) {
	// inside a transaction the caller wants the row as the transaction sees it
	if tx != nil {
		return d.JobRepository.FindByID(ctx, tx, id)
	}

	key := jobKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var job model.Job
		if json.Unmarshal([]byte(val), &job) == nil {
			metrics.IncCacheRequest("job", "hit")
			return &job, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		d.log.Warn().Err(err).Int64("job_id", id).Msg("job cache read")
	}

	metrics.IncCacheRequest("job", "miss")
	job, err := d.JobRepository.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		if b, err := json.Marshal(job); err == nil {
			if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
				d.log.Warn().Err(err).Int64("job_id", id).Msg("job cache write")
			}
		}
	}
	return job, nil
}
