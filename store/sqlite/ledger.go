package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/escalate/id"
	"github.com/xraph/escalate/ledger"
)

// RecordFiring records that ruleID fired for itemID. INSERT OR IGNORE
// against the unique (rule_id, item_id) index is the atomic conditional
// insert: the row count tells this caller whether it won.
func (s *Store) RecordFiring(ctx context.Context, ruleID, itemID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO escalate_firings (id, rule_id, item_id, fired_at)
		VALUES (?, ?, ?, ?)`,
		id.NewLedgerID().String(), ruleID, itemID, fmtTime(at))
	if err != nil {
		return false, fmt.Errorf("escalate/sqlite: record firing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("escalate/sqlite: record firing rows: %w", err)
	}
	return n > 0, nil
}

// ListFirings returns recorded firings ordered by FiredAt ascending.
func (s *Store) ListFirings(ctx context.Context, opts ledger.ListOpts) ([]*ledger.Entry, error) {
	query := `SELECT id, rule_id, item_id, fired_at FROM escalate_firings WHERE 1=1`
	var args []any
	if opts.RuleID != "" {
		query += ` AND rule_id = ?`
		args = append(args, opts.RuleID)
	}
	query += ` ORDER BY fired_at ASC`
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
		return nil, fmt.Errorf("escalate/sqlite: list firings: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var entries []*ledger.Entry
	for rows.Next() {
		var (
			e       ledger.Entry
			idStr   string
			firedAt string
		)
		if err := rows.Scan(&idStr, &e.RuleID, &e.ItemID, &firedAt); err != nil {
			return nil, fmt.Errorf("escalate/sqlite: scan firing: %w", err)
		}
		e.ID, err = id.ParseLedgerID(idStr)
		if err != nil {
			return nil, fmt.Errorf("escalate/sqlite: parse firing id: %w", err)
		}
		e.FiredAt = parseTime(firedAt)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escalate/sqlite: iterate firings: %w", err)
	}
	return entries, nil
}

// CountFirings returns the total number of recorded firings.
func (s *Store) CountFirings(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalate_firings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("escalate/sqlite: count firings: %w", err)
	}
	return n, nil
}
