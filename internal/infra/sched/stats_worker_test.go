package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpt-queue/internal/domain/model"
	"gpt-queue/internal/domain/ports/repository"
)

type countRepo struct {
	repository.JobRepository
	counts map[model.JobState]int
	err    error
}

func (c *countRepo) CountByState(_ context.Context, _ repository.Tx, s model.JobState) (int, error) {
	return c.counts[s], c.err
}

func TestStatsWorker_Tick(t *testing.T) {
	logger := zerolog.Nop()
	calls := 0
	w := NewStatsWorker(time.Second, &countRepo{counts: map[model.JobState]int{model.JobQueued: 3, model.JobProcessing: 1}}, func() { calls++ }, &logger)

	w.Tick(context.Background())
	assert.Equal(t, 1, calls)
}

func TestStatsWorker_TickErrorStillReportsPool(t *testing.T) {
	logger := zerolog.Nop()
	calls := 0
	w := NewStatsWorker(0, &countRepo{err: errors.New("db down")}, func() { calls++ }, &logger)
	w.Tick(context.Background())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 15*time.Second, w.interval)
}

func TestStatsWorker_RunStops(t *testing.T) {
	logger := zerolog.Nop()
	w := NewStatsWorker(time.Millisecond, &countRepo{}, nil, &logger)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
