// Package dlq records notification jobs that exhausted their retry
// budget. Terminal failures are never silently dropped: each one becomes
// an Entry the operator can inspect and replay.
package dlq

import (
	"time"

	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/id"
)

// Entry represents one notification that failed terminally.
type Entry struct {
	ID          id.DLQID        `json:"id"`
	JobID       id.JobID        `json:"job_id"`
	Channel     channel.Channel `json:"channel"`
	RecipientID string          `json:"recipient_id"`
	Subject     string          `json:"subject"`
	Message     string          `json:"message"`
	Payload     []byte          `json:"payload,omitempty"`
	Error       string          `json:"error"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
	RuleID      string          `json:"rule_id,omitempty"`
	ItemID      string          `json:"item_id,omitempty"`
	FailedAt    time.Time       `json:"failed_at"`
	ReplayedAt  *time.Time      `json:"replayed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
