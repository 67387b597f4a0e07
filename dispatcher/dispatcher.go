// Package dispatcher turns rule matches into notification jobs. For each
// match it resolves recipients from the rule's action, consults
// per-recipient preferences, and creates one job per (recipient, channel)
// pair — all behind the delivery ledger's idempotency gate, so a match
// that already fired (possibly in a concurrent scan pass) produces
// nothing.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/escalate/item"
	"github.com/xraph/escalate/job"
	"github.com/xraph/escalate/ledger"
	"github.com/xraph/escalate/prefs"
	"github.com/xraph/escalate/rule"
	"github.com/xraph/escalate/scan"
)

// JobType is the type tag stamped on every job this dispatcher creates.
const JobType = "escalation"

// Dispatcher converts rule matches into queued notification jobs.
type Dispatcher struct {
	ledger   ledger.Store
	jobs     job.Store
	provider prefs.Provider
	logger   *slog.Logger

	maxRetries  int
	sendTimeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMaxRetries sets the retry budget stamped on created jobs.
func WithMaxRetries(n int) Option {
	return func(d *Dispatcher) { d.maxRetries = n }
}

// WithSendTimeout sets the per-send deadline stamped on created jobs.
func WithSendTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.sendTimeout = t }
}

// New creates a Dispatcher.
func New(ledgerStore ledger.Store, jobStore job.Store, provider prefs.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ledger:      ledgerStore,
		jobs:        jobStore,
		provider:    provider,
		logger:      slog.Default(),
		maxRetries:  3,
		sendTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch processes rule matches into enqueued jobs and returns the
// jobs it created. Matches whose (rule, item) pair already fired are
// skipped silently — that is the designed idempotency path, not an
// error. An error is returned only when the ledger or job store itself
// fails.
func (d *Dispatcher) Dispatch(ctx context.Context, matches []*scan.Match) ([]*job.Job, error) {
	var created []*job.Job

	for _, m := range matches {
		jobs, err := d.dispatchMatch(ctx, m)
		if err != nil {
			return created, err
		}
		created = append(created, jobs...)
	}

	return created, nil
}

// dispatchMatch handles one match. The ledger write is the idempotency
// gate: it happens before any job is enqueued, and one write governs
// every recipient and channel produced from the match, so a partial
// delivery failure later never re-fires the rule.
func (d *Dispatcher) dispatchMatch(ctx context.Context, m *scan.Match) ([]*job.Job, error) {
	recorded, err := d.ledger.RecordFiring(ctx, m.Rule.ID, m.Item.ID, m.MatchedAt)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: record firing (%s, %s): %w", m.Rule.ID, m.Item.ID, err)
	}
	if !recorded {
		// Already fired, possibly by a concurrent scan pass.
		d.logger.Debug("match already fired, skipping",
			slog.String("rule_id", m.Rule.ID),
			slog.String("item_id", m.Item.ID),
		)
		return nil, nil
	}

	recipients := Recipients(m.Rule.Action, m.Item)
	if len(recipients) == 0 {
		d.logger.Warn("match resolved no recipients",
			slog.String("rule_id", m.Rule.ID),
			slog.String("item_id", m.Item.ID),
			slog.String("action", string(m.Rule.Action)),
		)
		return nil, nil
	}

	category := Category(m.Rule.Trigger)
	subject, message := render(m)
	payload, _ := json.Marshal(matchPayload{
		RuleID:       m.Rule.ID,
		RuleName:     m.Rule.Name,
		Trigger:      m.Rule.Trigger,
		TriggerValue: m.Rule.TriggerValue,
		ItemID:       m.Item.ID,
		ItemKind:     m.Item.Kind,
		MatchedAt:    m.MatchedAt,
	})

	var created []*job.Job
	for _, recipientID := range recipients {
		p, pErr := d.provider.Preferences(ctx, recipientID)
		if pErr != nil {
			// A broken preference lookup suppresses one recipient,
			// never the whole match.
			d.logger.Warn("preference lookup failed, skipping recipient",
				slog.String("recipient_id", recipientID),
				slog.String("error", pErr.Error()),
			)
			continue
		}
		if !p.Wants(category) {
			// Expected suppression, not a failure.
			d.logger.Debug("recipient opted out of category",
				slog.String("recipient_id", recipientID),
				slog.String("category", string(category)),
			)
			continue
		}

		for _, ch := range p.Channels {
			j := job.New(JobType, ch, recipientID, subject, message,
				job.WithPayload(payload),
				job.WithOrigin(m.Rule.ID, m.Item.ID),
				job.WithPriority(m.Rule.Priority),
				job.WithMaxRetries(d.maxRetries),
				job.WithTimeout(d.sendTimeout),
			)
			if err := d.jobs.EnqueueJob(ctx, j); err != nil {
				return created, fmt.Errorf("dispatcher: enqueue job for %s on %s: %w", recipientID, ch, err)
			}
			created = append(created, j)
		}
	}

	return created, nil
}

// matchPayload is the structured payload attached to every created job.
type matchPayload struct {
	RuleID       string           `json:"rule_id"`
	RuleName     string           `json:"rule_name"`
	Trigger      rule.TriggerType `json:"trigger"`
	TriggerValue int              `json:"trigger_value"`
	ItemID       string           `json:"item_id"`
	ItemKind     item.Kind        `json:"item_kind"`
	MatchedAt    time.Time        `json:"matched_at"`
}
