package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/escalate/id"
	"github.com/xraph/escalate/ledger"
)

// RecordFiring records that ruleID fired for itemID. SET NX is the
// atomic conditional insert: exactly one caller sees recorded=true for a
// given pair no matter how many scanner instances race.
func (s *Store) RecordFiring(ctx context.Context, ruleID, itemID string, at time.Time) (bool, error) {
	entry := &ledger.Entry{
		ID:      id.NewLedgerID(),
		RuleID:  ruleID,
		ItemID:  itemID,
		FiredAt: at.UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("escalate/redis: marshal firing: %w", err)
	}

	key := firingKey(ruleID, itemID)
	set, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("escalate/redis: record firing: %w", err)
	}
	if !set {
		return false, nil
	}

	// Index for chronological listing. The guard key already committed,
	// so an index failure loses only list visibility, never idempotency —
	// it must not abort the dispatch the guard just admitted.
	if err := s.client.ZAdd(ctx, firingIndexKey, goredis.Z{
		Score:  float64(entry.FiredAt.UnixMilli()),
		Member: key,
	}).Err(); err != nil {
		s.logger.Error("failed to index firing",
			slog.String("rule_id", ruleID),
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}
	return true, nil
}

// ListFirings returns recorded firings ordered by FiredAt ascending.
func (s *Store) ListFirings(ctx context.Context, opts ledger.ListOpts) ([]*ledger.Entry, error) {
	keys, err := s.client.ZRange(ctx, firingIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("escalate/redis: list firings: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("escalate/redis: list firings mget: %w", err)
	}

	entries := make([]*ledger.Entry, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var e ledger.Entry
		if err := json.Unmarshal([]byte(str), &e); err != nil {
			continue
		}
		if opts.RuleID != "" && e.RuleID != opts.RuleID {
			continue
		}
		entries = append(entries, &e)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// CountFirings returns the total number of recorded firings.
func (s *Store) CountFirings(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, firingIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("escalate/redis: count firings: %w", err)
	}
	return n, nil
}
