// Package sqlite implements store.Store on SQLite via the pure-Go
// modernc.org/sqlite driver. It suits single-node deployments and tests:
// everything durable, no external service. The delivery ledger's
// idempotency rides on a UNIQUE(rule_id, item_id) index with INSERT OR
// IGNORE, and dequeue claims use BEGIN IMMEDIATE since SQLite has no
// SKIP LOCKED.
//
// Usage:
//
//	db, err := sql.Open("sqlite", "file:escalate.db?_pragma=busy_timeout(5000)")
//	s := sqlitestore.New(db)
//	if err := s.Migrate(ctx); err != nil { ... }
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite" // register the sqlite driver

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/dlq"
	"github.com/xraph/escalate/job"
	"github.com/xraph/escalate/ledger"
	"github.com/xraph/escalate/rule"
)

// Compile-time interface checks.
var (
	_ rule.Store   = (*Store)(nil)
	_ job.Store    = (*Store)(nil)
	_ ledger.Store = (*Store)(nil)
	_ dlq.Store    = (*Store)(nil)
)

// Store implements the composite store.Store interface backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a SQLite-backed store over an open database handle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens a SQLite database at the given DSN and wraps it in a Store.
// The connection pool is capped at one writer, which is how SQLite wants
// to be used.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("escalate/sqlite: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	return New(db, opts...), nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies any schema migrations not yet recorded in the
// escalate_migrations table.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS escalate_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`); err != nil {
		return fmt.Errorf("%w: create migrations table: %v", escalate.ErrMigrationFailed, err)
	}

	for _, m := range migrations {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM escalate_migrations WHERE version = ?`, m.version).Scan(&n)
		if err != nil {
			return fmt.Errorf("%w: check version %s: %v", escalate.ErrMigrationFailed, m.version, err)
		}
		if n > 0 {
			continue
		}

		for _, stmt := range m.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%w: %s: %v", escalate.ErrMigrationFailed, m.name, err)
			}
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO escalate_migrations (version) VALUES (?)`, m.version); err != nil {
			return fmt.Errorf("%w: record version %s: %v", escalate.ErrMigrationFailed, m.version, err)
		}
		s.logger.Info("applied migration", slog.String("name", m.name), slog.String("version", m.version))
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// isDuplicateKey reports whether err is a unique constraint violation.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
