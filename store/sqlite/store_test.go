package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/dlq"
	"github.com/xraph/escalate/id"
	"github.com/xraph/escalate/job"
	"github.com/xraph/escalate/ledger"
	"github.com/xraph/escalate/rule"
	sqlitestore "github.com/xraph/escalate/store/sqlite"
)

func setup(t *testing.T) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.DB().Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestMigrate_Idempotent(t *testing.T) {
	s := setup(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRuleRoundTrip(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	r := &rule.Rule{
		ID:           "rule-1",
		Name:         "overdue 3 days",
		Trigger:      rule.DaysAfterDue,
		TriggerValue: 3,
		Action:       rule.NotifyOwner,
		Status:       rule.StatusActive,
		Priority:     5,
	}
	if err := s.SaveRule(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetRule(ctx, "rule-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != r.Name || got.Trigger != r.Trigger || got.TriggerValue != 3 || got.Priority != 5 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// Upsert replaces in place.
	r.Status = rule.StatusInactive
	if err := s.SaveRule(ctx, r); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	active, err := s.ListActiveRules(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("active rules = %d, want 0 after deactivation", len(active))
	}

	if err := s.DeleteRule(ctx, "rule-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetRule(ctx, "rule-1"); !errors.Is(err, escalate.ErrRuleNotFound) {
		t.Fatalf("get deleted = %v, want ErrRuleNotFound", err)
	}
}

func TestJobLifecycle(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	j := job.New("escalation", channel.Email, "p1", "subject", "message",
		job.WithPriority(3),
		job.WithOrigin("rule-1", "task-1"),
	)
	if err := s.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := s.EnqueueJob(ctx, j); !errors.Is(err, escalate.ErrJobAlreadyExists) {
		t.Fatalf("duplicate enqueue = %v, want ErrJobAlreadyExists", err)
	}

	claimed, err := s.DequeueJobs(ctx, []channel.Channel{channel.Email}, 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(claimed) != 1 || claimed[0].State != job.StateProcessing {
		t.Fatalf("claimed = %+v, want one processing job", claimed)
	}

	// Claimed jobs are not handed out twice.
	again, err := s.DequeueJobs(ctx, []channel.Channel{channel.Email}, 10)
	if err != nil {
		t.Fatalf("second dequeue: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second dequeue claimed %d jobs, want 0", len(again))
	}

	now := time.Now().UTC()
	claimed[0].State = job.StateSent
	claimed[0].SentAt = &now
	if err := s.UpdateJob(ctx, claimed[0]); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != job.StateSent || got.SentAt == nil || got.RuleID != "rule-1" {
		t.Fatalf("job after update = %+v", got)
	}

	count, err := s.CountJobs(ctx, job.CountOpts{State: job.StateSent})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("sent count = %d, want 1", count)
	}
}

func TestDequeue_RespectsRunAtAndPriority(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	future := job.New("escalation", channel.Email, "p1", "s", "m")
	future.RunAt = time.Now().UTC().Add(time.Hour)
	low := job.New("escalation", channel.Email, "p2", "s", "m")
	high := job.New("escalation", channel.Email, "p3", "s", "m", job.WithPriority(9))

	for _, j := range []*job.Job{future, low, high} {
		if err := s.EnqueueJob(ctx, j); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	claimed, err := s.DequeueJobs(ctx, []channel.Channel{channel.Email}, 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d jobs, want 2 (future job not due)", len(claimed))
	}
	if claimed[0].ID != high.ID {
		t.Fatalf("first claim = %s, want high-priority job", claimed[0].ID)
	}
}

func TestCancelJob(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	j := job.New("escalation", channel.Email, "p1", "s", "m")
	if err := s.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := s.CancelJob(ctx, j.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.State != job.StateCancelled {
		t.Fatalf("state = %s, want cancelled", got.State)
	}

	// Cancelling again, or cancelling a missing job, fails cleanly.
	if err := s.CancelJob(ctx, j.ID); !errors.Is(err, escalate.ErrNotCancellable) {
		t.Fatalf("re-cancel = %v, want ErrNotCancellable", err)
	}
	if err := s.CancelJob(ctx, id.NewJobID()); !errors.Is(err, escalate.ErrJobNotFound) {
		t.Fatalf("cancel missing = %v, want ErrJobNotFound", err)
	}
}

func TestRecordFiring_Idempotent(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	recorded, err := s.RecordFiring(ctx, "rule-1", "task-1", now)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !recorded {
		t.Fatal("first firing not recorded")
	}

	recorded, err = s.RecordFiring(ctx, "rule-1", "task-1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if recorded {
		t.Fatal("duplicate firing reported as recorded")
	}

	// A different pair records independently.
	recorded, err = s.RecordFiring(ctx, "rule-2", "task-1", now)
	if err != nil {
		t.Fatalf("third record: %v", err)
	}
	if !recorded {
		t.Fatal("distinct rule not recorded")
	}

	count, err := s.CountFirings(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("firings = %d, want 2", count)
	}

	entries, err := s.ListFirings(ctx, ledger.ListOpts{RuleID: "rule-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].ItemID != "task-1" {
		t.Fatalf("filtered firings = %+v", entries)
	}
}

func TestDLQRoundTrip(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	e := &dlq.Entry{
		ID:          id.NewDLQID(),
		JobID:       id.NewJobID(),
		Channel:     channel.Email,
		RecipientID: "p1",
		Subject:     "s",
		Message:     "m",
		Error:       "smtp: connection refused",
		RetryCount:  4,
		MaxRetries:  3,
		RuleID:      "rule-1",
		ItemID:      "task-1",
		FailedAt:    now,
		CreatedAt:   now,
	}
	if err := s.PushEntry(ctx, e); err != nil {
		t.Fatalf("push: %v", err)
	}

	got, err := s.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Error != e.Error || got.RetryCount != 4 || got.ReplayedAt != nil {
		t.Fatalf("entry = %+v", got)
	}

	if err := s.MarkReplayed(ctx, e.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("mark replayed: %v", err)
	}
	got, _ = s.GetEntry(ctx, e.ID)
	if got.ReplayedAt == nil {
		t.Fatal("ReplayedAt not set")
	}

	purged, err := s.PurgeEntries(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	if _, err := s.GetEntry(ctx, e.ID); !errors.Is(err, escalate.ErrDLQNotFound) {
		t.Fatalf("get purged = %v, want ErrDLQNotFound", err)
	}
}
