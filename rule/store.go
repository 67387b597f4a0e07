package rule

import "context"

// Store defines the persistence contract for rules. The pipeline itself
// only calls ListActiveRules; the save/delete surface exists for the
// external management layer and for seeding stores in tests.
type Store interface {
	// ListActiveRules returns all rules with StatusActive.
	ListActiveRules(ctx context.Context) ([]*Rule, error)

	// GetRule retrieves a rule by ID.
	GetRule(ctx context.Context, ruleID string) (*Rule, error)

	// SaveRule inserts or replaces a rule.
	SaveRule(ctx context.Context, r *Rule) error

	// DeleteRule removes a rule by ID.
	DeleteRule(ctx context.Context, ruleID string) error
}
