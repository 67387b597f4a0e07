package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalate_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID.String(), j.Type, string(j.Channel), string(j.State),
		j.RecipientID, j.Subject, j.Message, j.Payload,
		j.RuleID, j.ItemID, j.Priority, j.MaxRetries, j.RetryCount, j.LastError,
		fmtTime(j.RunAt), fmtTimePtr(j.SentAt), int64(j.Timeout),
		fmtTime(j.CreatedAt), fmtTime(j.UpdatedAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return escalate.ErrJobAlreadyExists
		}
		return fmt.Errorf("escalate/sqlite: enqueue job: %w", err)
	}
	return nil
}

// DequeueJobs atomically claims up to limit due pending jobs from the
// given channels. SQLite has no FOR UPDATE SKIP LOCKED, so the claim is
// a single transaction: select candidates, flip them to processing.
func (s *Store) DequeueJobs(ctx context.Context, channels []channel.Channel, limit int) ([]*job.Job, error) {
	if len(channels) == 0 || limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("escalate/sqlite: dequeue begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	placeholders := strings.Repeat("?,", len(channels))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(channels)+2)
	for _, ch := range channels {
		args = append(args, string(ch))
	}
	now := time.Now().UTC()
	args = append(args, fmtTime(now), limit)

	rows, err := tx.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM escalate_jobs
		WHERE state = 'pending' AND channel IN (`+placeholders+`) AND run_at <= ?
		ORDER BY priority DESC, run_at ASC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("escalate/sqlite: dequeue select: %w", err)
	}

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, tx.Commit()
	}

	for _, j := range jobs {
		j.State = job.StateProcessing
		j.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, `
			UPDATE escalate_jobs SET state = 'processing', updated_at = ?
			WHERE id = ?`, fmtTime(now), j.ID.String()); err != nil {
			return nil, fmt.Errorf("escalate/sqlite: dequeue claim: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("escalate/sqlite: dequeue commit: %w", err)
	}
	return jobs, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM escalate_jobs WHERE id = ?`, jobID.String())
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, escalate.ErrJobNotFound
		}
		return nil, fmt.Errorf("escalate/sqlite: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	now := time.Now().UTC()
	j.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		UPDATE escalate_jobs SET
			state = ?, retry_count = ?, last_error = ?,
			run_at = ?, sent_at = ?, updated_at = ?
		WHERE id = ?`,
		string(j.State), j.RetryCount, j.LastError,
		fmtTime(j.RunAt), fmtTimePtr(j.SentAt), fmtTime(now),
		j.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("escalate/sqlite: update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("escalate/sqlite: update job rows: %w", err)
	}
	if n == 0 {
		return escalate.ErrJobNotFound
	}
	return nil
}

// CancelJob transitions a pending job to cancelled. The WHERE clause is
// the claim: an UPDATE that matches zero rows means the job was already
// picked up or finished.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE escalate_jobs SET state = 'cancelled', updated_at = ?
		WHERE id = ? AND state = 'pending'`, fmtTime(now), jobID.String())
	if err != nil {
		return fmt.Errorf("escalate/sqlite: cancel job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("escalate/sqlite: cancel job rows: %w", err)
	}
	if n == 0 {
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return getErr
		}
		return escalate.ErrNotCancellable
	}
	return nil
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM escalate_jobs WHERE state = ?`
	args := []any{string(state)}

	if opts.Channel != "" {
		query += ` AND channel = ?`
		args = append(args, string(opts.Channel))
	}
	query += ` ORDER BY created_at ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("escalate/sqlite: list jobs: %w", err)
	}
	return scanJobs(rows)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM escalate_jobs WHERE 1=1`
	var args []any
	if opts.State != "" {
		query += ` AND state = ?`
		args = append(args, string(opts.State))
	}
	if opts.Channel != "" {
		query += ` AND channel = ?`
		args = append(args, string(opts.Channel))
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("escalate/sqlite: count jobs: %w", err)
	}
	return n, nil
}

// ── helpers ──

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*job.Job, error) {
	var (
		j       job.Job
		idStr   string
		ch      string
		state   string
		runAt   string
		sentAt  sql.NullString
		timeout int64
		created string
		updated string
	)
	err := row.Scan(
		&idStr, &j.Type, &ch, &state,
		&j.RecipientID, &j.Subject, &j.Message, &j.Payload,
		&j.RuleID, &j.ItemID, &j.Priority, &j.MaxRetries, &j.RetryCount, &j.LastError,
		&runAt, &sentAt, &timeout, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	j.ID, err = id.ParseJobID(idStr)
	if err != nil {
		return nil, fmt.Errorf("escalate/sqlite: parse job id: %w", err)
	}
	j.Channel = channel.Channel(ch)
	j.State = job.State(state)
	j.RunAt = parseTime(runAt)
	j.Timeout = time.Duration(timeout)
	j.CreatedAt = parseTime(created)
	j.UpdatedAt = parseTime(updated)
	if sentAt.Valid {
		t := parseTime(sentAt.String)
		j.SentAt = &t
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*job.Job, error) {
	defer rows.Close() //nolint:errcheck // read-only cursor

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("escalate/sqlite: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escalate/sqlite: iterate jobs: %w", err)
	}
	return jobs, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s) //nolint:errcheck // best-effort parse of values we wrote
	return t
}
