package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/dlq"
	"github.com/xraph/escalate/id"
)

const dlqColumns = `id, job_id, channel, recipient_id, subject, message, payload,
	error, retry_count, max_retries, rule_id, item_id, failed_at, replayed_at, created_at`

// PushEntry persists a new dead-letter entry.
func (s *Store) PushEntry(ctx context.Context, e *dlq.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO escalate_dlq (`+dlqColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		e.ID.String(), e.JobID.String(), string(e.Channel),
		e.RecipientID, e.Subject, e.Message, e.Payload,
		e.Error, e.RetryCount, e.MaxRetries, e.RuleID, e.ItemID,
		e.FailedAt, e.ReplayedAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("escalate/postgres: push dlq: %w", err)
	}
	return nil
}

// GetEntry retrieves a dead-letter entry by ID.
func (s *Store) GetEntry(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+dlqColumns+` FROM escalate_dlq WHERE id = $1`, entryID.String())
	e, err := scanDLQ(row)
	if err != nil {
		if isNoRows(err) {
			return nil, escalate.ErrDLQNotFound
		}
		return nil, fmt.Errorf("escalate/postgres: get dlq: %w", err)
	}
	return e, nil
}

// ListEntries returns dead-letter entries ordered by FailedAt ascending.
func (s *Store) ListEntries(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM escalate_dlq WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Channel != "" {
		query += fmt.Sprintf(" AND channel = $%d", argIdx)
		args = append(args, string(opts.Channel))
		argIdx++
	}
	query += " ORDER BY failed_at ASC"
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
		return nil, fmt.Errorf("escalate/postgres: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQ(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("escalate/postgres: scan dlq: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escalate/postgres: iterate dlq: %w", err)
	}
	return entries, nil
}

// MarkReplayed records that an entry was replayed.
func (s *Store) MarkReplayed(ctx context.Context, entryID id.DLQID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE escalate_dlq SET replayed_at = $2 WHERE id = $1`,
		entryID.String(), at.UTC())
	if err != nil {
		return fmt.Errorf("escalate/postgres: mark replayed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return escalate.ErrDLQNotFound
	}
	return nil
}

// PurgeEntries removes entries that failed before the given time.
func (s *Store) PurgeEntries(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM escalate_dlq WHERE failed_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("escalate/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountEntries returns the total number of dead-letter entries.
func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM escalate_dlq`).Scan(&n); err != nil {
		return 0, fmt.Errorf("escalate/postgres: count dlq: %w", err)
	}
	return n, nil
}

func scanDLQ(row pgx.Row) (*dlq.Entry, error) {
	var (
		e      dlq.Entry
		idStr  string
		jobStr string
		chStr  string
	)
	err := row.Scan(
		&idStr, &jobStr, &chStr,
		&e.RecipientID, &e.Subject, &e.Message, &e.Payload,
		&e.Error, &e.RetryCount, &e.MaxRetries, &e.RuleID, &e.ItemID,
		&e.FailedAt, &e.ReplayedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.ID, err = id.ParseDLQID(idStr)
	if err != nil {
		return nil, fmt.Errorf("escalate/postgres: parse dlq id: %w", err)
	}
	e.JobID, err = id.ParseJobID(jobStr)
	if err != nil {
		return nil, fmt.Errorf("escalate/postgres: parse dlq job id: %w", err)
	}
	e.Channel = channel.Channel(chStr)
	return &e, nil
}
