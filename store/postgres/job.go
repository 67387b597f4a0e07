package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/id"
	"github.com/xraph/escalate/job"
)

const jobColumns = `id, type, channel, state, recipient_id, subject, message, payload,
	rule_id, item_id, priority, max_retries, retry_count, last_error,
	run_at, sent_at, timeout, created_at, updated_at`

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO escalate_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		j.ID.String(), j.Type, string(j.Channel), string(j.State),
		j.RecipientID, j.Subject, j.Message, j.Payload,
		j.RuleID, j.ItemID, j.Priority, j.MaxRetries, j.RetryCount, j.LastError,
		j.RunAt, j.SentAt, j.Timeout.Nanoseconds(),
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return escalate.ErrJobAlreadyExists
		}
		return fmt.Errorf("escalate/postgres: enqueue job: %w", err)
	}
	return nil
}

// DequeueJobs atomically claims up to limit due pending jobs from the
// given channels. FOR UPDATE SKIP LOCKED keeps concurrent workers off
// each other's claims.
func (s *Store) DequeueJobs(ctx context.Context, channels []channel.Channel, limit int) ([]*job.Job, error) {
	chans := make([]string, len(channels))
	for i, ch := range channels {
		chans[i] = string(ch)
	}

	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE escalate_jobs
			SET state = 'processing', updated_at = NOW()
			WHERE id IN (
				SELECT id FROM escalate_jobs
				WHERE state = 'pending'
				  AND channel = ANY($1)
				  AND run_at <= NOW()
				ORDER BY priority DESC, run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $2
			)
			RETURNING `+jobColumns+`
		)
		SELECT * FROM claimed ORDER BY priority DESC, run_at ASC`,
		chans, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("escalate/postgres: dequeue jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM escalate_jobs WHERE id = $1`, jobID.String())

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, escalate.ErrJobNotFound
		}
		return nil, fmt.Errorf("escalate/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE escalate_jobs SET
			state = $2, retry_count = $3, last_error = $4,
			run_at = $5, sent_at = $6, updated_at = NOW()
		WHERE id = $1`,
		j.ID.String(), string(j.State), j.RetryCount, j.LastError,
		j.RunAt, j.SentAt,
	)
	if err != nil {
		return fmt.Errorf("escalate/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return escalate.ErrJobNotFound
	}
	return nil
}

// CancelJob transitions a pending job to cancelled. The state predicate
// is the claim: zero rows means the job was already picked up, finished,
// or never existed.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE escalate_jobs SET state = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND state = 'pending'`, jobID.String())
	if err != nil {
		return fmt.Errorf("escalate/postgres: cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return getErr
		}
		return escalate.ErrNotCancellable
	}
	return nil
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM escalate_jobs WHERE state = $1`
	args := []interface{}{string(state)}
	argIdx := 2

	if opts.Channel != "" {
		query += fmt.Sprintf(" AND channel = $%d", argIdx)
		args = append(args, string(opts.Channel))
		argIdx++
	}
	query += " ORDER BY created_at ASC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("escalate/postgres: list jobs by state: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM escalate_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
		argIdx++
	}
	if opts.Channel != "" {
		query += fmt.Sprintf(" AND channel = $%d", argIdx)
		args = append(args, string(opts.Channel))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("escalate/postgres: count jobs: %w", err)
	}
	return count, nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		chStr     string
		stateStr  string
		timeoutNs int64
	)
	err := row.Scan(
		&idStr, &j.Type, &chStr, &stateStr,
		&j.RecipientID, &j.Subject, &j.Message, &j.Payload,
		&j.RuleID, &j.ItemID, &j.Priority, &j.MaxRetries, &j.RetryCount, &j.LastError,
		&j.RunAt, &j.SentAt, &timeoutNs,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Channel = channel.Channel(chStr)
	j.State = job.State(stateStr)
	j.Timeout = time.Duration(timeoutNs)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("escalate/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID
	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("escalate/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escalate/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
