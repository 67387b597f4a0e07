// Package queue runs per-channel delivery workers. Each Queue owns one
// channel: a fixed number of goroutines poll the job store for due
// pending jobs on that channel, run them through the middleware chain
// and the channel's Sender, and apply the retry policy on failure.
// Queues for different channels are fully independent — a backlog or
// outage on one channel never stalls another.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/escalate/backoff"
	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/dlq"
	"github.com/xraph/escalate/job"
	"github.com/xraph/escalate/middleware"
)

// Config holds the per-channel queue settings.
type Config struct {
	// Channel is the channel this queue delivers on. Required.
	Channel channel.Channel

	// Concurrency is the number of worker goroutines. Defaults to 4.
	Concurrency int

	// PollInterval is how long an idle worker sleeps between polls.
	// Defaults to one second.
	PollInterval time.Duration

	// RateLimit caps deliveries per second across all workers of this
	// queue. Zero means unlimited.
	RateLimit float64

	// RateBurst is the burst size for the rate limiter. Defaults to 1
	// when RateLimit is set.
	RateBurst int

	// ShutdownTimeout bounds how long Stop waits for in-flight sends
	// before cancelling them. Defaults to 30 seconds.
	ShutdownTimeout time.Duration
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Queue delivers jobs for a single channel with bounded concurrency.
type Queue struct {
	cfg     Config
	store   job.Store
	sender  Sender
	dlq     *dlq.Service
	backoff backoff.Strategy
	mw      middleware.Middleware
	limiter *rate.Limiter
	logger  *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool

	activeMu sync.Mutex
	active   map[string]context.CancelFunc
}

// Option configures a Queue.
type Option func(*Queue)

// WithBackoff sets the retry backoff strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(q *Queue) { q.backoff = s }
}

// WithDLQ routes terminally failed jobs to the given DLQ service.
func WithDLQ(s *dlq.Service) Option {
	return func(q *Queue) { q.dlq = s }
}

// WithMiddleware wraps every sender call with the given middleware, in
// order from outermost to innermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(q *Queue) { q.mw = middleware.Chain(mws...) }
}

// WithLogger sets the queue's logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// New creates a Queue for cfg.Channel backed by the given store and
// sender.
func New(cfg Config, store job.Store, sender Sender, opts ...Option) (*Queue, error) {
	if !cfg.Channel.Valid() {
		return nil, fmt.Errorf("queue: invalid channel %q", cfg.Channel)
	}
	if sender == nil {
		return nil, fmt.Errorf("queue: %s: nil sender", cfg.Channel)
	}
	if sender.Channel() != cfg.Channel {
		return nil, fmt.Errorf("queue: %s: sender delivers on %s", cfg.Channel, sender.Channel())
	}
	cfg.defaults()

	q := &Queue{
		cfg:     cfg,
		store:   store,
		sender:  sender,
		backoff: backoff.DefaultStrategy(),
		mw:      middleware.Chain(),
		logger:  slog.Default(),
		stopCh:  make(chan struct{}),
		active:  make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(q)
	}
	if cfg.RateLimit > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return q, nil
}

// Channel returns the channel this queue serves.
func (q *Queue) Channel() channel.Channel { return q.cfg.Channel }

// Start launches the worker goroutines. It returns immediately.
func (q *Queue) Start(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return nil
	}
	q.running = true

	q.logger.Info("channel queue starting",
		slog.String("channel", string(q.cfg.Channel)),
		slog.Int("concurrency", q.cfg.Concurrency),
	)

	for range q.cfg.Concurrency {
		q.wg.Add(1)
		go q.workerLoop()
	}

	return nil
}

// Stop signals workers to stop and waits for in-flight sends to finish.
// If draining outlasts the context (or the configured shutdown timeout,
// whichever is tighter), the remaining sends are cancelled.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.mu.Unlock()

	q.logger.Info("channel queue stopping", slog.String("channel", string(q.cfg.Channel)))

	close(q.stopCh)

	ctx, cancel := context.WithTimeout(ctx, q.cfg.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("channel queue stopped", slog.String("channel", string(q.cfg.Channel)))
	case <-ctx.Done():
		q.logger.Warn("channel queue shutdown timed out, cancelling in-flight sends",
			slog.String("channel", string(q.cfg.Channel)),
		)
		q.cancelActive()
		q.wg.Wait()
	}

	return nil
}

// workerLoop is run by each worker goroutine.
func (q *Queue) workerLoop() {
	defer q.wg.Done()

	channels := []channel.Channel{q.cfg.Channel}

	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		jobs, err := q.store.DequeueJobs(context.Background(), channels, 1)
		if err != nil {
			q.logger.Error("dequeue error",
				slog.String("channel", string(q.cfg.Channel)),
				slog.String("error", err.Error()),
			)
			q.sleep()
			continue
		}

		if len(jobs) == 0 {
			q.sleep()
			continue
		}

		j := jobs[0]

		if q.limiter != nil {
			if err := q.waitRate(); err != nil {
				// Shutdown while waiting; the claimed job goes back to
				// pending so the next start picks it up.
				q.release(j)
				return
			}
		}

		q.deliver(j)
	}
}

// waitRate blocks until the limiter admits one delivery or the queue
// stops.
func (q *Queue) waitRate() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-q.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return q.limiter.Wait(ctx)
}

// release returns a claimed job to pending without consuming an attempt.
func (q *Queue) release(j *job.Job) {
	j.State = job.StatePending
	j.Touch(time.Now().UTC())
	if err := q.store.UpdateJob(context.Background(), j); err != nil {
		q.logger.Error("failed to release claimed job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// deliver runs one job through middleware and the sender, then applies
// the retry policy.
func (q *Queue) deliver(j *job.Job) {
	ctx, cancel := context.WithCancel(context.Background())
	q.trackJob(j.ID.String(), cancel)
	defer func() {
		q.untrackJob(j.ID.String())
		cancel()
	}()

	terminal := func(ctx context.Context) error {
		return q.sender.Send(ctx, j)
	}

	err := q.mw(ctx, j, terminal)
	now := time.Now().UTC()
	j.UpdatedAt = now

	if err != nil {
		q.handleFailure(j, err, now)
		return
	}

	q.handleSuccess(j, now)
}

// handleSuccess marks the job sent.
func (q *Queue) handleSuccess(j *job.Job, now time.Time) {
	j.State = job.StateSent
	j.SentAt = &now
	j.LastError = ""

	if err := q.store.UpdateJob(context.Background(), j); err != nil {
		q.logger.Error("failed to mark job sent",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	q.logger.Info("notification sent",
		slog.String("job_id", j.ID.String()),
		slog.String("channel", string(j.Channel)),
		slog.String("recipient_id", j.RecipientID),
		slog.Int("attempt", j.RetryCount+1),
	)
}

// handleFailure increments the retry counter and either requeues the
// job with backoff or moves it to failed and pushes it to the DLQ.
func (q *Queue) handleFailure(j *job.Job, sendErr error, now time.Time) {
	j.RetryCount++
	j.LastError = sendErr.Error()

	if j.RetryCount <= j.MaxRetries {
		delay := q.backoff.Delay(j.RetryCount)
		j.State = job.StatePending
		j.RunAt = now.Add(delay)

		if err := q.store.UpdateJob(context.Background(), j); err != nil {
			q.logger.Error("failed to requeue job for retry",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
			return
		}

		q.logger.Info("delivery failed, scheduled for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("channel", string(j.Channel)),
			slog.String("recipient_id", j.RecipientID),
			slog.Int("attempt", j.RetryCount),
			slog.Int("max_retries", j.MaxRetries),
			slog.Duration("delay", delay),
			slog.String("error", sendErr.Error()),
		)
		return
	}

	j.State = job.StateFailed

	if err := q.store.UpdateJob(context.Background(), j); err != nil {
		q.logger.Error("failed to mark job failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	if q.dlq != nil {
		if err := q.dlq.Push(context.Background(), j, sendErr); err != nil {
			q.logger.Error("failed to push job to DLQ",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	q.logger.Warn("delivery failed permanently",
		slog.String("job_id", j.ID.String()),
		slog.String("channel", string(j.Channel)),
		slog.String("recipient_id", j.RecipientID),
		slog.Int("retry_count", j.RetryCount),
		slog.String("error", sendErr.Error()),
	)
}

func (q *Queue) sleep() {
	select {
	case <-time.After(q.cfg.PollInterval):
	case <-q.stopCh:
	}
}

func (q *Queue) trackJob(jobID string, cancel context.CancelFunc) {
	q.activeMu.Lock()
	q.active[jobID] = cancel
	q.activeMu.Unlock()
}

func (q *Queue) untrackJob(jobID string) {
	q.activeMu.Lock()
	delete(q.active, jobID)
	q.activeMu.Unlock()
}

func (q *Queue) cancelActive() {
	q.activeMu.Lock()
	defer q.activeMu.Unlock()
	for jobID, cancel := range q.active {
		q.logger.Warn("cancelling in-flight send", slog.String("job_id", jobID))
		cancel()
	}
}
