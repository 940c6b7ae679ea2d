package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"gpt-queue/internal/domain"
	"gpt-queue/internal/domain/model"
	"gpt-queue/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

const jobColumns = `id, slug, message, requester_id, channel_id, delivery_target, state, result, response, created_at, updated_at`

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{
		pool: pool,
		tm:   tm,
	}
}

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job == nil || job.State != model.JobQueued {
		return domain.ErrInvalidArgument
	}
	if model.MessageLen(job.Message) > model.MaxMessageLen {
		return domain.ErrMessageTooLong
	}

	const q = `
INSERT INTO jobs (slug, message, requester_id, channel_id, delivery_target, state, result, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 'queued', 0, $6, $7)
RETURNING id;`

	row, err := pickRow(ctx, r.pool, tx, q,
		job.Slug, job.Message, job.RequesterID, nullable(job.ChannelID), job.DeliveryTarget, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&job.ID); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Claim locks the oldest queued row, skipping rows held by a concurrent
// claimer, and flips it to processing in the same transaction.
func (r *jobRepo) Claim(ctx context.Context) (*model.Job, error) {
	var job *model.Job

	err := r.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT ` + jobColumns + `
FROM jobs
WHERE state = 'queued'
ORDER BY id
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery)
		if err != nil {
			return err
		}
		fetched, err := scanJob(row)
		if err != nil {
			return err
		}

		const markQuery = `
UPDATE jobs SET state = 'processing', updated_at = now()
WHERE id = $1
RETURNING updated_at;`
		row, err = pickRow(ctx, r.pool, tx, markQuery, fetched.ID)
		if err != nil {
			return err
		}
		if err := row.Scan(&fetched.UpdatedAt); err != nil {
			return scanErr(err)
		}
		fetched.State = model.JobProcessing

		job = fetched
		return nil
	})

	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func (r *jobRepo) Finalize(ctx context.Context, tx repository.Tx, id int64, state model.JobState, response string) error {
	if !model.JobProcessing.CanTransitionTo(state) {
		return domain.ErrInvalidTransition
	}

	result, resp := 0, (*string)(nil)
	if state == model.JobCompleted {
		if response == "" {
			return domain.ErrEmptyCompletion
		}
		result, resp = 1, &response
	}

	const q = `
UPDATE jobs SET state = $2, result = $3, response = $4, updated_at = now()
WHERE id = $1 AND state = 'processing';`

	tag, err := execSQL(ctx, r.pool, tx, q, id, string(state), result, resp)
	if err != nil {
		return fmt.Errorf("finalize job %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// distinguish a missing row from a row in the wrong state
	if _, err := r.FindByID(ctx, tx, id); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) ListRecentByRequester(ctx context.Context, tx repository.Tx, requesterID string, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE requester_id = $1 ORDER BY id DESC LIMIT $2;`
	rows, err := pickRows(ctx, r.pool, tx, q, requesterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *jobRepo) CountByState(ctx context.Context, tx repository.Tx, state model.JobState) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM jobs WHERE state = $1;`, string(state))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, scanErr(err)
	}
	return n, nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j         model.Job
		state     string
		channelID *string
		response  *string
	)
	err := row.Scan(
		&j.ID, &j.Slug, &j.Message, &j.RequesterID, &channelID, &j.DeliveryTarget,
		&state, &j.Result, &response, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, scanErr(err)
	}
	j.State = model.JobState(state)
	if channelID != nil {
		j.ChannelID = *channelID
	}
	if response != nil {
		j.Response = *response
	}
	return &j, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
