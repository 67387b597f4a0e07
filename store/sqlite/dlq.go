package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/dlq"
	"github.com/xraph/escalate/id"
)

const dlqColumns = `id, job_id, channel, recipient_id, subject, message, payload,
	error, retry_count, max_retries, rule_id, item_id, failed_at, replayed_at, created_at`

// PushEntry persists a new dead-letter entry.
func (s *Store) PushEntry(ctx context.Context, e *dlq.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalate_dlq (`+dlqColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.JobID.String(), string(e.Channel),
		e.RecipientID, e.Subject, e.Message, e.Payload,
		e.Error, e.RetryCount, e.MaxRetries, e.RuleID, e.ItemID,
		fmtTime(e.FailedAt), fmtTimePtr(e.ReplayedAt), fmtTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("escalate/sqlite: push dlq: %w", err)
	}
	return nil
}

// GetEntry retrieves a dead-letter entry by ID.
func (s *Store) GetEntry(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+dlqColumns+` FROM escalate_dlq WHERE id = ?`, entryID.String())
	e, err := scanDLQ(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, escalate.ErrDLQNotFound
		}
		return nil, fmt.Errorf("escalate/sqlite: get dlq: %w", err)
	}
	return e, nil
}

// ListEntries returns dead-letter entries ordered by FailedAt ascending.
func (s *Store) ListEntries(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM escalate_dlq WHERE 1=1`
	var args []any
	if opts.Channel != "" {
		query += ` AND channel = ?`
		args = append(args, string(opts.Channel))
	}
	query += ` ORDER BY failed_at ASC`
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
		return nil, fmt.Errorf("escalate/sqlite: list dlq: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQ(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("escalate/sqlite: scan dlq: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escalate/sqlite: iterate dlq: %w", err)
	}
	return entries, nil
}

// MarkReplayed records that an entry was replayed.
func (s *Store) MarkReplayed(ctx context.Context, entryID id.DLQID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE escalate_dlq SET replayed_at = ? WHERE id = ?`,
		fmtTime(at), entryID.String())
	if err != nil {
		return fmt.Errorf("escalate/sqlite: mark replayed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("escalate/sqlite: mark replayed rows: %w", err)
	}
	if n == 0 {
		return escalate.ErrDLQNotFound
	}
	return nil
}

// PurgeEntries removes entries that failed before the given time.
func (s *Store) PurgeEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM escalate_dlq WHERE failed_at < ?`, fmtTime(before))
	if err != nil {
		return 0, fmt.Errorf("escalate/sqlite: purge dlq: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("escalate/sqlite: purge dlq rows: %w", err)
	}
	return n, nil
}

// CountEntries returns the total number of dead-letter entries.
func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalate_dlq`).Scan(&n); err != nil {
		return 0, fmt.Errorf("escalate/sqlite: count dlq: %w", err)
	}
	return n, nil
}

func scanDLQ(row scanner) (*dlq.Entry, error) {
	var (
		e        dlq.Entry
		idStr    string
		jobStr   string
		ch       string
		failed   string
		replayed sql.NullString
		created  string
	)
	err := row.Scan(
		&idStr, &jobStr, &ch,
		&e.RecipientID, &e.Subject, &e.Message, &e.Payload,
		&e.Error, &e.RetryCount, &e.MaxRetries, &e.RuleID, &e.ItemID,
		&failed, &replayed, &created,
	)
	if err != nil {
		return nil, err
	}

	e.ID, err = id.ParseDLQID(idStr)
	if err != nil {
		return nil, fmt.Errorf("escalate/sqlite: parse dlq id: %w", err)
	}
	e.JobID, err = id.ParseJobID(jobStr)
	if err != nil {
		return nil, fmt.Errorf("escalate/sqlite: parse dlq job id: %w", err)
	}
	e.Channel = channel.Channel(ch)
	e.FailedAt = parseTime(failed)
	e.CreatedAt = parseTime(created)
	if replayed.Valid {
		t := parseTime(replayed.String)
		e.ReplayedAt = &t
	}
	return &e, nil
}
