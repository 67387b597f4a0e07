// Package memory is a fully in-memory store backend. Safe for concurrent
// access. Intended for unit testing and development; its ledger guard is
// a mutex, which is only sound inside a single process — multi-instance
// deployments need one of the durable backends.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/dlq"
	"github.com/xraph/escalate/id"
	"github.com/xraph/escalate/job"
	"github.com/xraph/escalate/ledger"
	"github.com/xraph/escalate/rule"
)

// Ensure Store implements every subsystem interface at compile time.
var (
	_ rule.Store   = (*Store)(nil)
	_ job.Store    = (*Store)(nil)
	_ ledger.Store = (*Store)(nil)
	_ dlq.Store    = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	rules   map[string]*rule.Rule
	jobs    map[string]*job.Job
	firings map[string]*ledger.Entry // key: ruleID + "\x00" + itemID
	dlqs    map[string]*dlq.Entry
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		rules:   make(map[string]*rule.Rule),
		jobs:    make(map[string]*job.Job),
		firings: make(map[string]*ledger.Entry),
		dlqs:    make(map[string]*dlq.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Rule Store
// ──────────────────────────────────────────────────

// ListActiveRules returns all rules with StatusActive.
func (m *Store) ListActiveRules(_ context.Context) ([]*rule.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*rule.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		if r.Status != rule.StatusActive {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}

	// Sort by priority DESC then ID for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		if result[i].Priority != result[k].Priority {
			return result[i].Priority > result[k].Priority
		}
		return result[i].ID < result[k].ID
	})

	return result, nil
}

// GetRule retrieves a rule by ID.
func (m *Store) GetRule(_ context.Context, ruleID string) (*rule.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rules[ruleID]
	if !ok {
		return nil, escalate.ErrRuleNotFound
	}
	cp := *r
	return &cp, nil
}

// SaveRule inserts or replaces a rule.
func (m *Store) SaveRule(_ context.Context, r *rule.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	cp.Touch(time.Now().UTC())
	m.rules[r.ID] = &cp
	return nil
}

// DeleteRule removes a rule by ID.
func (m *Store) DeleteRule(_ context.Context, ruleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[ruleID]; !ok {
		return escalate.ErrRuleNotFound
	}
	delete(m.rules, ruleID)
	return nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new job in pending state.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return escalate.ErrJobAlreadyExists
	}
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// DequeueJobs atomically claims up to limit due pending jobs from the
// given channels, sets them to processing, and returns them.
func (m *Store) DequeueJobs(_ context.Context, channels []channel.Channel, limit int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chSet := make(map[channel.Channel]struct{}, len(channels))
	for _, c := range channels {
		chSet[c] = struct{}{}
	}

	now := time.Now().UTC()

	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != job.StatePending {
			continue
		}
		if !j.RunAt.IsZero() && j.RunAt.After(now) {
			continue
		}
		if len(chSet) > 0 {
			if _, ok := chSet[j.Channel]; !ok {
				continue
			}
		}
		candidates = append(candidates, j)
	}

	// Sort: priority DESC, RunAt ASC.
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].RunAt.Before(candidates[k].RunAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		j.State = job.StateProcessing
		j.UpdatedAt = now
		// Return a copy so callers can mutate without racing with the store.
		cp := *j
		result[i] = &cp
	}

	return result, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, escalate.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return escalate.ErrJobNotFound
	}
	cp := *j
	cp.UpdatedAt = time.Now().UTC()
	m.jobs[key] = &cp
	return nil
}

// CancelJob transitions a pending job to cancelled. Claimed jobs run to
// completion.
func (m *Store) CancelJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return escalate.ErrJobNotFound
	}
	if j.State != job.StatePending {
		return escalate.ErrNotCancellable
	}
	j.State = job.StateCancelled
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// ListJobsByState returns jobs matching the given state.
func (m *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		if opts.Channel != "" && j.Channel != opts.Channel {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	// Apply offset / limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.Channel != "" && j.Channel != opts.Channel {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Ledger Store
// ──────────────────────────────────────────────────

func firingKey(ruleID, itemID string) string {
	return ruleID + "\x00" + itemID
}

// RecordFiring records that ruleID fired for itemID, unless an entry for
// the pair already exists. Check and insert happen under one lock, which
// is the in-process equivalent of a unique-constraint insert.
func (m *Store) RecordFiring(_ context.Context, ruleID, itemID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := firingKey(ruleID, itemID)
	if _, exists := m.firings[key]; exists {
		return false, nil
	}

	m.firings[key] = &ledger.Entry{
		ID:      id.NewLedgerID(),
		RuleID:  ruleID,
		ItemID:  itemID,
		FiredAt: at,
	}
	return true, nil
}

// ListFirings returns recorded firings ordered by FiredAt ascending.
func (m *Store) ListFirings(_ context.Context, opts ledger.ListOpts) ([]*ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*ledger.Entry, 0, len(m.firings))
	for _, e := range m.firings {
		if opts.RuleID != "" && e.RuleID != opts.RuleID {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].FiredAt.Before(result[k].FiredAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountFirings returns the total number of recorded firings.
func (m *Store) CountFirings(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.firings)), nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushEntry persists a new dead-letter entry.
func (m *Store) PushEntry(_ context.Context, e *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.dlqs[e.ID.String()] = &cp
	return nil
}

// GetEntry retrieves a dead-letter entry by ID.
func (m *Store) GetEntry(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, escalate.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// ListEntries returns dead-letter entries ordered by FailedAt ascending.
func (m *Store) ListEntries(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.Channel != "" && e.Channel != opts.Channel {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].FailedAt.Before(result[k].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// MarkReplayed records that an entry was replayed.
func (m *Store) MarkReplayed(_ context.Context, entryID id.DLQID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return escalate.ErrDLQNotFound
	}
	e.ReplayedAt = &at
	return nil
}

// PurgeEntries removes entries that failed before the given time.
func (m *Store) PurgeEntries(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, e := range m.dlqs {
		if e.FailedAt.Before(before) {
			delete(m.dlqs, key)
			count++
		}
	}
	return count, nil
}

// CountEntries returns the total number of dead-letter entries.
func (m *Store) CountEntries(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.dlqs)), nil
}
