package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/xraph/escalate/item"
	"github.com/xraph/escalate/rule"
	"github.com/xraph/escalate/scheduler"
)

// fileSource reads item snapshots from a JSON array file. The file is
// re-read on every pass, so the producing system can just rewrite it.
func fileSource(path string) scheduler.Source {
	return scheduler.SourceFunc(func(_ context.Context) ([]*item.Snapshot, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read snapshots %s: %w", path, err)
		}
		var snapshots []*item.Snapshot
		if err := json.Unmarshal(data, &snapshots); err != nil {
			return nil, fmt.Errorf("parse snapshots %s: %w", path, err)
		}
		return snapshots, nil
	})
}

// seedRules loads a JSON array of rules into the store, validating each.
func seedRules(ctx context.Context, s rule.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read rules %s: %w", path, err)
	}

	var rules []*rule.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return 0, fmt.Errorf("parse rules %s: %w", path, err)
	}

	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return 0, err
		}
		if err := s.SaveRule(ctx, r); err != nil {
			return 0, fmt.Errorf("save rule %s: %w", r.ID, err)
		}
	}
	return len(rules), nil
}
