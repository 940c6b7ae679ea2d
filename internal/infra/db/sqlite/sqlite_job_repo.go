package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gpt-queue/internal/domain"
	"gpt-queue/internal/domain/model"
	"gpt-queue/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

const jobColumns = `id, slug, message, requester_id, channel_id, delivery_target, state, result, response, created_at, updated_at`

type jobRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewJobRepo(db *sql.DB) *jobRepo {
	return &jobRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job == nil || job.State != model.JobQueued {
		return domain.ErrInvalidArgument
	}
	if model.MessageLen(job.Message) > model.MaxMessageLen {
		return domain.ErrMessageTooLong
	}
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO jobs (slug, message, requester_id, channel_id, delivery_target, state, result, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 'queued', 0, ?, ?)`

	res, err := ex.ExecContext(ctx, q,
		job.Slug, job.Message, job.RequesterID, nullable(job.ChannelID), job.DeliveryTarget,
		job.CreatedAt.UTC(), job.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	job.ID = id
	return nil
}

// Claim is a single conditional UPDATE; SQLite serializes writers, so two
// claimers can never both match the same queued row.
func (r *jobRepo) Claim(ctx context.Context) (*model.Job, error) {
	const q = `
UPDATE jobs SET state = 'processing', updated_at = ?
WHERE id = (SELECT id FROM jobs WHERE state = 'queued' ORDER BY id LIMIT 1)
  AND state = 'queued'
RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, q, r.now()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	// the row is ours now; a plain read cannot race another claimer
	return r.FindByID(ctx, nil, id)
}

func (r *jobRepo) Finalize(ctx context.Context, tx repository.Tx, id int64, state model.JobState, response string) error {
	if !model.JobProcessing.CanTransitionTo(state) {
		return domain.ErrInvalidTransition
	}
	result, resp := 0, sql.NullString{}
	if state == model.JobCompleted {
		if response == "" {
			return domain.ErrEmptyCompletion
		}
		result, resp = 1, sql.NullString{String: response, Valid: true}
	}
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}

	const q = `
UPDATE jobs SET state = ?, result = ?, response = ?, updated_at = ?
WHERE id = ? AND state = 'processing'`

	res, err := ex.ExecContext(ctx, q, string(state), result, resp, r.now(), id)
	if err != nil {
		return fmt.Errorf("finalize job %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, tx, id); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Job, error) {
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	return scanJob(ex.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
}

func (r *jobRepo) ListRecentByRequester(ctx context.Context, tx repository.Tx, requesterID string, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE requester_id = ? ORDER BY id DESC LIMIT ?`, requesterID, limit)
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
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := ex.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE state = ?`, string(state)).Scan(&n); err != nil {
		return 0, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*model.Job, error) {
	var (
		j         model.Job
		state     string
		channelID sql.NullString
		response  sql.NullString
	)
	err := row.Scan(
		&j.ID, &j.Slug, &j.Message, &j.RequesterID, &channelID, &j.DeliveryTarget,
		&state, &j.Result, &response, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	j.State = model.JobState(state)
	j.ChannelID = channelID.String
	j.Response = response.String
	return &j, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
