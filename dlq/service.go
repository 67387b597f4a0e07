package dlq

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/escalate/id"
	"github.com/xraph/escalate/job"
)

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store    Store
	jobStore job.Store
}

// NewService creates a DLQ service.
func NewService(store Store, jobStore job.Store) *Service {
	return &Service{store: store, jobStore: jobStore}
}

// Push builds an Entry from a terminally failed job and persists it.
// The error string is captured from the last delivery error.
func (s *Service) Push(ctx context.Context, j *job.Job, sendErr error) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:          id.NewDLQID(),
		JobID:       j.ID,
		Channel:     j.Channel,
		RecipientID: j.RecipientID,
		Subject:     j.Subject,
		Message:     j.Message,
		Payload:     j.Payload,
		Error:       sendErr.Error(),
		RetryCount:  j.RetryCount,
		MaxRetries:  j.MaxRetries,
		RuleID:      j.RuleID,
		ItemID:      j.ItemID,
		FailedAt:    now,
		CreatedAt:   now,
	}
	return s.store.PushEntry(ctx, entry)
}

// Replay clones an entry into a fresh pending job with a reset retry
// budget, enqueues it, and marks the entry replayed. The new job goes
// through the normal channel queue; the original failed job stays
// visible in the notification log.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	replayed := job.New("escalation", entry.Channel, entry.RecipientID, entry.Subject, entry.Message,
		job.WithPayload(entry.Payload),
		job.WithOrigin(entry.RuleID, entry.ItemID),
		job.WithMaxRetries(entry.MaxRetries),
	)

	if err := s.jobStore.EnqueueJob(ctx, replayed); err != nil {
		return nil, fmt.Errorf("dlq: enqueue replayed job: %w", err)
	}

	if err := s.store.MarkReplayed(ctx, entryID, time.Now().UTC()); err != nil {
		return nil, err
	}

	return replayed, nil
}

// DLQStore returns the underlying store for direct access to List, Get,
// Purge, and Count operations.
func (s *Service) DLQStore() Store {
	return s.store
}
