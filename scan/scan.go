// Package scan evaluates active escalation rules against work-item
// snapshots and produces rule matches. The scanner performs no I/O beyond
// reading rules and the supplied candidates, which makes it pure given
// its inputs. One malformed snapshot never aborts a pass: it is logged
// and skipped.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/escalate/item"
	"github.com/xraph/escalate/rule"
)

// Match is a concrete pairing of one rule with one item whose current
// state satisfies the rule's condition.
type Match struct {
	Rule      *rule.Rule
	Item      *item.Snapshot
	MatchedAt time.Time
}

// Scanner evaluates active rules against candidate snapshots.
type Scanner struct {
	rules  rule.Store
	logger *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the scanner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// New creates a Scanner reading rules from the given store.
func New(rules rule.Store, opts ...Option) *Scanner {
	s := &Scanner{rules: rules, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate matches every active rule against every candidate at the
// given instant. It returns an error only when the rule listing itself
// fails; per-item evaluation problems are logged and skipped.
func (s *Scanner) Evaluate(ctx context.Context, now time.Time, candidates []*item.Snapshot) ([]*Match, error) {
	rules, err := s.rules.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: list active rules: %w", err)
	}
	if len(rules) == 0 || len(candidates) == 0 {
		return nil, nil
	}

	var matches []*Match
	for _, snap := range candidates {
		if vErr := snap.Validate(); vErr != nil {
			s.logger.Warn("skipping malformed snapshot",
				slog.String("error", vErr.Error()),
			)
			continue
		}

		for _, r := range rules {
			if !r.AppliesTo(snap) {
				continue
			}
			if Matches(r, snap, now) {
				matches = append(matches, &Match{
					Rule:      r,
					Item:      snap,
					MatchedAt: now,
				})
			}
		}
	}

	return matches, nil
}

// Matches reports whether the rule's condition holds for the snapshot at
// the given instant. Snapshots lacking a field the trigger needs never
// match; that is a permanent non-match, not an error.
func Matches(r *rule.Rule, s *item.Snapshot, now time.Time) bool {
	switch r.Trigger {
	case rule.DaysAfterDue:
		if s.DueDate == nil || s.Status.Terminal() {
			return false
		}
		threshold := s.DueDate.Add(days(r.TriggerValue))
		return !now.Before(threshold)

	case rule.DaysBeforeDue:
		if s.DueDate == nil || s.Status.Terminal() {
			return false
		}
		windowStart := s.DueDate.Add(-days(r.TriggerValue))
		return !now.Before(windowStart) && now.Before(*s.DueDate)

	case rule.ProgressBelow:
		if s.StartDate == nil || s.EndDate == nil || s.Progress == nil {
			return false
		}
		midpoint := s.StartDate.Add(s.EndDate.Sub(*s.StartDate) / 2)
		return !now.Before(midpoint) && *s.Progress < r.TriggerValue

	default:
		return false
	}
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
