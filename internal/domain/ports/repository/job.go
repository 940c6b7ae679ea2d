package repository

import (
	"context"

	"gpt-queue/internal/domain/model"
)

type JobRepository interface {
	// Create inserts a queued job and assigns job.ID.
	Create(ctx context.Context, tx Tx, job *model.Job) error
	// Claim atomically selects the oldest queued job and marks it 'processing'.
	// Returns domain.ErrNotFound when the queue is empty.
	Claim(ctx context.Context) (*model.Job, error)
	// Finalize moves a processing job to completed or failed. Any other
	// transition returns domain.ErrInvalidTransition.
	Finalize(ctx context.Context, tx Tx, id int64, state model.JobState, response string) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Job, error)
	// ListRecentByRequester returns up to limit jobs, newest first.
	ListRecentByRequester(ctx context.Context, tx Tx, requesterID string, limit int) ([]*model.Job, error)
	CountByState(ctx context.Context, tx Tx, state model.JobState) (int, error)
}
