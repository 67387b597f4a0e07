package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/rule"
)

// Rules are written rarely and read whole, so they are stored as JSON
// blobs rather than field-per-field hashes.

// ListActiveRules returns all rules with StatusActive.
func (s *Store) ListActiveRules(ctx context.Context) ([]*rule.Rule, error) {
	ids, err := s.client.SMembers(ctx, ruleIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("escalate/redis: list rules smembers: %w", err)
	}

	rules := make([]*rule.Rule, 0, len(ids))
	for _, ruleID := range ids {
		r, getErr := s.getRule(ctx, ruleID)
		if getErr != nil {
			continue // deleted concurrently
		}
		if r.Status != rule.StatusActive {
			continue
		}
		rules = append(rules, r)
	}

	sort.Slice(rules, func(i, k int) bool { return rules[i].ID < rules[k].ID })
	return rules, nil
}

// GetRule retrieves a rule by ID.
func (s *Store) GetRule(ctx context.Context, ruleID string) (*rule.Rule, error) {
	return s.getRule(ctx, ruleID)
}

// SaveRule inserts or replaces a rule.
func (s *Store) SaveRule(ctx context.Context, r *rule.Rule) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("escalate/redis: marshal rule %s: %w", r.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, ruleKey(r.ID), data, 0)
	pipe.SAdd(ctx, ruleIDsKey, r.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("escalate/redis: save rule %s: %w", r.ID, err)
	}
	return nil
}

// DeleteRule removes a rule by ID.
func (s *Store) DeleteRule(ctx context.Context, ruleID string) error {
	removed, err := s.client.Del(ctx, ruleKey(ruleID)).Result()
	if err != nil {
		return fmt.Errorf("escalate/redis: delete rule %s: %w", ruleID, err)
	}
	if removed == 0 {
		return escalate.ErrRuleNotFound
	}
	if err := s.client.SRem(ctx, ruleIDsKey, ruleID).Err(); err != nil {
		return fmt.Errorf("escalate/redis: delete rule index %s: %w", ruleID, err)
	}
	return nil
}

func (s *Store) getRule(ctx context.Context, ruleID string) (*rule.Rule, error) {
	data, err := s.client.Get(ctx, ruleKey(ruleID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, escalate.ErrRuleNotFound
		}
		return nil, fmt.Errorf("escalate/redis: get rule %s: %w", ruleID, err)
	}

	var r rule.Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("escalate/redis: unmarshal rule %s: %w", ruleID, err)
	}
	return &r, nil
}
