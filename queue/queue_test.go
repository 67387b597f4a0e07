package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/escalate/backoff"
	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/dlq"
	"github.com/xraph/escalate/job"
	"github.com/xraph/escalate/middleware"
	"github.com/xraph/escalate/queue"
	"github.com/xraph/escalate/store/memory"
)

// recordingSender counts Send calls and fails the first failUntil of them.
type recordingSender struct {
	ch        channel.Channel
	failUntil int

	mu    sync.Mutex
	calls int
	sent  []*job.Job
}

func (s *recordingSender) Channel() channel.Channel { return s.ch }

func (s *recordingSender) Send(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failUntil {
		return errors.New("smtp: connection refused")
	}
	s.sent = append(s.sent, j)
	return nil
}

func (s *recordingSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startQueue(t *testing.T, cfg queue.Config, s *memory.Store, sender queue.Sender, opts ...queue.Option) *queue.Queue {
	t.Helper()
	q, err := queue.New(cfg, s, sender, opts...)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start queue: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})
	return q
}

func TestQueue_DeliversPendingJob(t *testing.T) {
	s := memory.New()
	sender := &recordingSender{ch: channel.Email}

	j := job.New("escalation", channel.Email, "p1", "subject", "message")
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	startQueue(t, queue.Config{Channel: channel.Email, Concurrency: 2, PollInterval: 10 * time.Millisecond}, s, sender)

	waitFor(t, 2*time.Second, func() bool {
		got, err := s.GetJob(context.Background(), j.ID)
		return err == nil && got.State == job.StateSent
	})

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.SentAt == nil {
		t.Fatal("SentAt not set on sent job")
	}
	if got.RetryCount != 0 {
		t.Fatalf("retry count = %d, want 0", got.RetryCount)
	}
	if sender.callCount() != 1 {
		t.Fatalf("sender called %d times, want 1", sender.callCount())
	}
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	s := memory.New()
	sender := &recordingSender{ch: channel.Email, failUntil: 1}

	j := job.New("escalation", channel.Email, "p1", "subject", "message",
		job.WithMaxRetries(3),
	)
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	startQueue(t,
		queue.Config{Channel: channel.Email, Concurrency: 1, PollInterval: 10 * time.Millisecond},
		s, sender,
		queue.WithBackoff(backoff.NewConstant(20*time.Millisecond)),
	)

	waitFor(t, 2*time.Second, func() bool {
		got, err := s.GetJob(context.Background(), j.ID)
		return err == nil && got.State == job.StateSent
	})

	got, _ := s.GetJob(context.Background(), j.ID)
	if got.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", got.RetryCount)
	}
	if sender.callCount() != 2 {
		t.Fatalf("sender called %d times, want 2", sender.callCount())
	}
}

func TestQueue_ExhaustedRetriesFailAndPushToDLQ(t *testing.T) {
	s := memory.New()
	sender := &recordingSender{ch: channel.Email, failUntil: 100}

	j := job.New("escalation", channel.Email, "p1", "subject", "message",
		job.WithMaxRetries(2),
		job.WithOrigin("rule-1", "task-1"),
	)
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	svc := dlq.NewService(s, s)
	startQueue(t,
		queue.Config{Channel: channel.Email, Concurrency: 1, PollInterval: 10 * time.Millisecond},
		s, sender,
		queue.WithBackoff(backoff.NewConstant(10*time.Millisecond)),
		queue.WithDLQ(svc),
	)

	waitFor(t, 2*time.Second, func() bool {
		got, err := s.GetJob(context.Background(), j.ID)
		return err == nil && got.State == job.StateFailed
	})

	got, _ := s.GetJob(context.Background(), j.ID)
	// Initial attempt plus two retries.
	if got.RetryCount != 3 {
		t.Fatalf("retry count = %d, want 3", got.RetryCount)
	}
	if got.LastError == "" {
		t.Fatal("LastError not recorded on failed job")
	}

	waitFor(t, 2*time.Second, func() bool {
		n, err := s.CountEntries(context.Background())
		return err == nil && n == 1
	})

	entries, err := s.ListEntries(context.Background(), dlq.ListOpts{})
	if err != nil {
		t.Fatalf("list DLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("DLQ has %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.JobID != j.ID || e.RuleID != "rule-1" || e.ItemID != "task-1" {
		t.Fatalf("DLQ entry origin mismatch: %+v", e)
	}
}

func TestQueue_OnlyClaimsOwnChannel(t *testing.T) {
	s := memory.New()
	sender := &recordingSender{ch: channel.Email}

	emailJob := job.New("escalation", channel.Email, "p1", "s", "m")
	chatJob := job.New("escalation", channel.Chat, "p1", "s", "m")
	for _, j := range []*job.Job{emailJob, chatJob} {
		if err := s.EnqueueJob(context.Background(), j); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	startQueue(t, queue.Config{Channel: channel.Email, Concurrency: 1, PollInterval: 10 * time.Millisecond}, s, sender)

	waitFor(t, 2*time.Second, func() bool {
		got, err := s.GetJob(context.Background(), emailJob.ID)
		return err == nil && got.State == job.StateSent
	})

	got, _ := s.GetJob(context.Background(), chatJob.ID)
	if got.State != job.StatePending {
		t.Fatalf("chat job state = %s, want pending (untouched)", got.State)
	}
}

func TestQueue_SenderChannelMismatch(t *testing.T) {
	s := memory.New()
	sender := &recordingSender{ch: channel.Chat}

	_, err := queue.New(queue.Config{Channel: channel.Email}, s, sender)
	if err == nil {
		t.Fatal("expected error for mismatched sender channel")
	}
}

func TestQueue_MiddlewareWrapsDelivery(t *testing.T) {
	s := memory.New()
	sender := &recordingSender{ch: channel.Email}

	var wrapped atomic.Int32
	mw := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		wrapped.Add(1)
		return next(ctx)
	}

	j := job.New("escalation", channel.Email, "p1", "s", "m")
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	startQueue(t,
		queue.Config{Channel: channel.Email, Concurrency: 1, PollInterval: 10 * time.Millisecond},
		s, sender,
		queue.WithMiddleware(mw),
	)

	waitFor(t, 2*time.Second, func() bool {
		return wrapped.Load() >= 1
	})
}

func TestQueue_StopReleasesRateLimitedClaim(t *testing.T) {
	s := memory.New()
	sender := &recordingSender{ch: channel.Email}

	first := job.New("escalation", channel.Email, "p1", "s", "m")
	second := job.New("escalation", channel.Email, "p2", "s", "m")
	for _, j := range []*job.Job{first, second} {
		if err := s.EnqueueJob(context.Background(), j); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	// One token of burst, then one token per hour: the worker delivers
	// the first job, claims the second, and blocks in the limiter.
	q, err := queue.New(queue.Config{
		Channel:      channel.Email,
		Concurrency:  1,
		PollInterval: 10 * time.Millisecond,
		RateLimit:    1.0 / 3600,
		RateBurst:    1,
	}, s, sender)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		got, err := s.GetJob(context.Background(), second.ID)
		return err == nil && got.State == job.StateProcessing
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	got, err := s.GetJob(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.State != job.StatePending {
		t.Fatalf("claimed job state = %s, want pending after release", got.State)
	}
	if got.RetryCount != 0 {
		t.Fatalf("release consumed a retry: count = %d, want 0", got.RetryCount)
	}
	if sender.callCount() != 1 {
		t.Fatalf("sender called %d times, want 1", sender.callCount())
	}
}

func TestQueue_StopIsIdempotent(t *testing.T) {
	s := memory.New()
	sender := &recordingSender{ch: channel.Email}

	q, err := queue.New(queue.Config{Channel: channel.Email, PollInterval: 10 * time.Millisecond}, s, sender)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
