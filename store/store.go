// Package store defines the composite persistence interface backends
// implement. Each subsystem (rule, job, ledger, dlq) owns its store
// contract; a single backend satisfies all of them plus lifecycle.
package store

import (
	"context"

	"github.com/xraph/escalate/dlq"
	"github.com/xraph/escalate/job"
	"github.com/xraph/escalate/ledger"
	"github.com/xraph/escalate/rule"
)

// Store is the composite interface over all subsystem stores.
type Store interface {
	rule.Store
	job.Store
	ledger.Store
	dlq.Store

	// Migrate creates or upgrades backend schema. No-op for schemaless
	// backends.
	Migrate(ctx context.Context) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
