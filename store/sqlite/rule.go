package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/rule"
)

const ruleColumns = `id, name, description, trigger_type, trigger_value, action, status,
	priority, scope_project_id, scope_org_id, created_at, updated_at`

// ListActiveRules returns all rules with StatusActive.
func (s *Store) ListActiveRules(ctx context.Context) ([]*rule.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM escalate_rules
		WHERE status = 'active' ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("escalate/sqlite: list active rules: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var rules []*rule.Rule
	for rows.Next() {
		r, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("escalate/sqlite: scan rule: %w", scanErr)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escalate/sqlite: iterate rules: %w", err)
	}
	return rules, nil
}

// GetRule retrieves a rule by ID.
func (s *Store) GetRule(ctx context.Context, ruleID string) (*rule.Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+` FROM escalate_rules WHERE id = ?`, ruleID)
	r, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, escalate.ErrRuleNotFound
		}
		return nil, fmt.Errorf("escalate/sqlite: get rule: %w", err)
	}
	return r, nil
}

// SaveRule inserts or replaces a rule.
func (s *Store) SaveRule(ctx context.Context, r *rule.Rule) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalate_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			trigger_type = excluded.trigger_type,
			trigger_value = excluded.trigger_value,
			action = excluded.action,
			status = excluded.status,
			priority = excluded.priority,
			scope_project_id = excluded.scope_project_id,
			scope_org_id = excluded.scope_org_id,
			updated_at = excluded.updated_at`,
		r.ID, r.Name, r.Description, string(r.Trigger), r.TriggerValue,
		string(r.Action), string(r.Status), r.Priority,
		r.ScopeProjectID, r.ScopeOrgID,
		fmtTime(r.CreatedAt), fmtTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("escalate/sqlite: save rule %s: %w", r.ID, err)
	}
	return nil
}

// DeleteRule removes a rule by ID.
func (s *Store) DeleteRule(ctx context.Context, ruleID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM escalate_rules WHERE id = ?`, ruleID)
	if err != nil {
		return fmt.Errorf("escalate/sqlite: delete rule %s: %w", ruleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("escalate/sqlite: delete rule rows: %w", err)
	}
	if n == 0 {
		return escalate.ErrRuleNotFound
	}
	return nil
}

func scanRule(row scanner) (*rule.Rule, error) {
	var (
		r       rule.Rule
		trigger string
		action  string
		status  string
		created string
		updated string
	)
	err := row.Scan(
		&r.ID, &r.Name, &r.Description, &trigger, &r.TriggerValue,
		&action, &status, &r.Priority,
		&r.ScopeProjectID, &r.ScopeOrgID, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	r.Trigger = rule.TriggerType(trigger)
	r.Action = rule.Action(action)
	r.Status = rule.Status(status)
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}
