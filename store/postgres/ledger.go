package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/escalate/id"
	"github.com/xraph/escalate/ledger"
)

// RecordFiring records that ruleID fired for itemID. ON CONFLICT DO
// NOTHING against the unique (rule_id, item_id) constraint is the atomic
// conditional insert: the row count tells this caller whether it won the
// race.
func (s *Store) RecordFiring(ctx context.Context, ruleID, itemID string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO escalate_firings (id, rule_id, item_id, fired_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT escalate_firings_pair DO NOTHING`,
		id.NewLedgerID().String(), ruleID, itemID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("escalate/postgres: record firing: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListFirings returns recorded firings ordered by FiredAt ascending.
func (s *Store) ListFirings(ctx context.Context, opts ledger.ListOpts) ([]*ledger.Entry, error) {
	query := `SELECT id, rule_id, item_id, fired_at FROM escalate_firings WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.RuleID != "" {
		query += fmt.Sprintf(" AND rule_id = $%d", argIdx)
		args = append(args, opts.RuleID)
		argIdx++
	}
	query += " ORDER BY fired_at ASC"
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
		return nil, fmt.Errorf("escalate/postgres: list firings: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		var (
			e     ledger.Entry
			idStr string
		)
		if err := rows.Scan(&idStr, &e.RuleID, &e.ItemID, &e.FiredAt); err != nil {
			return nil, fmt.Errorf("escalate/postgres: scan firing: %w", err)
		}
		e.ID, err = id.ParseLedgerID(idStr)
		if err != nil {
			return nil, fmt.Errorf("escalate/postgres: parse firing id: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escalate/postgres: iterate firings: %w", err)
	}
	return entries, nil
}

// CountFirings returns the total number of recorded firings.
func (s *Store) CountFirings(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM escalate_firings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("escalate/postgres: count firings: %w", err)
	}
	return n, nil
}
