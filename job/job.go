// Package job defines the notification job: one queued delivery for one
// (recipient, channel) pair. Jobs are created by the dispatcher and owned
// by the channel queue from then on; once sent, failed, or cancelled they
// are terminal.
package job

import (
	"time"

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/id"
)

// State represents the lifecycle state of a notification job.
type State string

const (
	// StatePending means the job is waiting to be claimed by a queue worker.
	StatePending State = "pending"
	// StateProcessing means a worker is currently delivering the job.
	StateProcessing State = "processing"
	// StateSent means delivery succeeded.
	StateSent State = "sent"
	// StateFailed means delivery failed after exhausting all attempts.
	StateFailed State = "failed"
	// StateCancelled means the job was cancelled before being claimed.
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateSent || s == StateFailed || s == StateCancelled
}

// Job is one pending or delivered notification.
type Job struct {
	escalate.Entity

	ID      id.JobID        `json:"id"`
	Type    string          `json:"type"`
	Channel channel.Channel `json:"channel"`
	State   State           `json:"state"`

	RecipientID string `json:"recipient_id"`
	Subject     string `json:"subject"`
	Message     string `json:"message"`
	Payload     []byte `json:"payload,omitempty"`

	// RuleID and ItemID tie the job back to the ledger firing that
	// produced it, for the notification log and audit.
	RuleID string `json:"rule_id,omitempty"`
	ItemID string `json:"item_id,omitempty"`

	// Priority orders claims within a channel. Higher runs first.
	Priority int `json:"priority"`

	// MaxRetries is the number of retries allowed after the initial
	// delivery failure. RetryCount counts retries already consumed.
	MaxRetries int    `json:"max_retries"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`

	// RunAt is when the job becomes due; retries push it into the future.
	RunAt  time.Time  `json:"run_at"`
	SentAt *time.Time `json:"sent_at,omitempty"`

	// Timeout bounds a single sender call. Zero means no deadline.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Option configures a Job at construction.
type Option func(*Job)

// WithPriority sets the claim priority.
func WithPriority(p int) Option {
	return func(j *Job) { j.Priority = p }
}

// WithMaxRetries sets the number of retries allowed after the initial
// delivery failure.
func WithMaxRetries(n int) Option {
	return func(j *Job) { j.MaxRetries = n }
}

// WithTimeout bounds each sender call for this job.
func WithTimeout(d time.Duration) Option {
	return func(j *Job) { j.Timeout = d }
}

// WithPayload attaches a structured payload (e.g. HTML body, chat blocks).
func WithPayload(p []byte) Option {
	return func(j *Job) { j.Payload = p }
}

// WithOrigin records the (rule, item) pair that produced the job.
func WithOrigin(ruleID, itemID string) Option {
	return func(j *Job) {
		j.RuleID = ruleID
		j.ItemID = itemID
	}
}

// New builds a pending job for one (recipient, channel) pair, due
// immediately.
func New(jobType string, ch channel.Channel, recipientID, subject, message string, opts ...Option) *Job {
	now := time.Now().UTC()
	j := &Job{
		ID:          id.NewJobID(),
		Type:        jobType,
		Channel:     ch,
		State:       StatePending,
		RecipientID: recipientID,
		Subject:     subject,
		Message:     message,
		MaxRetries:  3,
		RunAt:       now,
	}
	j.CreatedAt = now
	j.UpdatedAt = now
	for _, opt := range opts {
		opt(j)
	}
	return j
}
