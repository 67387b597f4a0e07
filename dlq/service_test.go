package dlq_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/dlq"
	"github.com/xraph/escalate/id"
	"github.com/xraph/escalate/job"
	"github.com/xraph/escalate/store/memory"
)

func failedJob(t *testing.T, s *memory.Store) *job.Job {
	t.Helper()
	j := job.New("escalation", channel.Email, "alice", "Task overdue", "<p>3 days late</p>",
		job.WithOrigin("rule-1", "task-1"),
		job.WithMaxRetries(2),
	)
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	j.State = job.StateFailed
	j.RetryCount = 3
	if err := s.UpdateJob(context.Background(), j); err != nil {
		t.Fatalf("update: %v", err)
	}
	return j
}

func TestPush(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	j := failedJob(t, s)

	if err := svc.Push(context.Background(), j, errors.New("smtp: 550 mailbox unavailable")); err != nil {
		t.Fatalf("push: %v", err)
	}

	entries, err := s.ListEntries(context.Background(), dlq.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	e := entries[0]
	if e.JobID != j.ID {
		t.Fatalf("entry job = %s, want %s", e.JobID, j.ID)
	}
	if e.Error != "smtp: 550 mailbox unavailable" {
		t.Fatalf("entry error = %q", e.Error)
	}
	if e.RuleID != "rule-1" || e.ItemID != "task-1" {
		t.Fatalf("entry origin = (%s, %s), want (rule-1, task-1)", e.RuleID, e.ItemID)
	}
	if e.RetryCount != 3 || e.MaxRetries != 2 {
		t.Fatalf("entry retries = %d/%d, want 3/2", e.RetryCount, e.MaxRetries)
	}
}

func TestReplay(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	j := failedJob(t, s)

	if err := svc.Push(context.Background(), j, errors.New("boom")); err != nil {
		t.Fatalf("push: %v", err)
	}
	entries, _ := s.ListEntries(context.Background(), dlq.ListOpts{})

	replayed, err := svc.Replay(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	// The clone starts a fresh delivery attempt.
	if replayed.ID == j.ID {
		t.Fatal("replayed job reused the failed job's ID")
	}
	if replayed.State != job.StatePending {
		t.Fatalf("replayed state = %s, want pending", replayed.State)
	}
	if replayed.RetryCount != 0 {
		t.Fatalf("replayed retry count = %d, want 0", replayed.RetryCount)
	}
	if replayed.Channel != j.Channel || replayed.RecipientID != j.RecipientID {
		t.Fatal("replayed job lost channel or recipient")
	}

	// The original stays failed for the notification log.
	orig, _ := s.GetJob(context.Background(), j.ID)
	if orig.State != job.StateFailed {
		t.Fatalf("original state = %s, want failed", orig.State)
	}

	e, _ := s.GetEntry(context.Background(), entries[0].ID)
	if e.ReplayedAt == nil {
		t.Fatal("ReplayedAt not set")
	}
}

func TestReplayUnknownEntry(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)

	_, err := svc.Replay(context.Background(), id.NewDLQID())
	if !errors.Is(err, escalate.ErrDLQNotFound) {
		t.Fatalf("err = %v, want ErrDLQNotFound", err)
	}
}
