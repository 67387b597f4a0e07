// Package ledger defines the delivery ledger: the durable idempotency
// record preventing a rule from firing more than once for the same item.
//
// RecordFiring is the single correctness-critical operation in the whole
// pipeline. Backends must implement it as an atomic conditional insert
// (unique constraint, SetNX, ON CONFLICT DO NOTHING) — never as a
// read-then-write, because multiple scanner instances race. No other
// component may infer "already notified" by any other means.
package ledger

import (
	"context"
	"time"

	"github.com/xraph/escalate/id"
)

// Entry records that a rule fired for an item. Entries are written
// exactly once and never updated or deleted; they are the audit trail of
// what was already escalated.
type Entry struct {
	ID      id.LedgerID `json:"id"`
	RuleID  string      `json:"rule_id"`
	ItemID  string      `json:"item_id"`
	FiredAt time.Time   `json:"fired_at"`
}

// ListOpts controls pagination for firing list queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// RuleID filters by rule. Empty means all rules.
	RuleID string
}

// Store defines the persistence contract for the delivery ledger.
type Store interface {
	// RecordFiring attempts to record that ruleID fired for itemID at
	// the given time. It returns recorded=true when this call created
	// the entry, and recorded=false (with no error) when an entry for
	// the pair already exists — the expected, benign "already notified"
	// path. The uniqueness check and insert are one atomic operation.
	RecordFiring(ctx context.Context, ruleID, itemID string, at time.Time) (recorded bool, err error)

	// ListFirings returns recorded firings ordered by FiredAt ascending.
	ListFirings(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// CountFirings returns the total number of recorded firings.
	CountFirings(ctx context.Context) (int64, error)
}
