package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/rule"
)

const ruleColumns = `id, name, description, trigger_type, trigger_value, action, status,
	priority, scope_project_id, scope_org_id, created_at, updated_at`

// ListActiveRules returns all rules with StatusActive.
func (s *Store) ListActiveRules(ctx context.Context) ([]*rule.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+` FROM escalate_rules
		WHERE status = 'active' ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("escalate/postgres: list active rules: %w", err)
	}
	defer rows.Close()

	var rules []*rule.Rule
	for rows.Next() {
		r, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("escalate/postgres: scan rule: %w", scanErr)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escalate/postgres: iterate rules: %w", err)
	}
	return rules, nil
}

// GetRule retrieves a rule by ID.
func (s *Store) GetRule(ctx context.Context, ruleID string) (*rule.Rule, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+` FROM escalate_rules WHERE id = $1`, ruleID)
	r, err := scanRule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, escalate.ErrRuleNotFound
		}
		return nil, fmt.Errorf("escalate/postgres: get rule: %w", err)
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO escalate_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			trigger_type = EXCLUDED.trigger_type,
			trigger_value = EXCLUDED.trigger_value,
			action = EXCLUDED.action,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			scope_project_id = EXCLUDED.scope_project_id,
			scope_org_id = EXCLUDED.scope_org_id,
			updated_at = EXCLUDED.updated_at`,
		r.ID, r.Name, r.Description, string(r.Trigger), r.TriggerValue,
		string(r.Action), string(r.Status), r.Priority,
		r.ScopeProjectID, r.ScopeOrgID, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("escalate/postgres: save rule %s: %w", r.ID, err)
	}
	return nil
}

// DeleteRule removes a rule by ID.
func (s *Store) DeleteRule(ctx context.Context, ruleID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM escalate_rules WHERE id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("escalate/postgres: delete rule %s: %w", ruleID, err)
	}
	if tag.RowsAffected() == 0 {
		return escalate.ErrRuleNotFound
	}
	return nil
}

func scanRule(row pgx.Row) (*rule.Rule, error) {
	var (
		r       rule.Rule
		trigger string
		action  string
		status  string
	)
	err := row.Scan(
		&r.ID, &r.Name, &r.Description, &trigger, &r.TriggerValue,
		&action, &status, &r.Priority,
		&r.ScopeProjectID, &r.ScopeOrgID, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Trigger = rule.TriggerType(trigger)
	r.Action = rule.Action(action)
	r.Status = rule.Status(status)
	return &r, nil
}
