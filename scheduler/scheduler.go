// Package scheduler drives periodic rule evaluation. A Runner wakes on a
// cron schedule, pulls current item snapshots from a Source, evaluates
// the active rules against them, and hands matches to the dispatcher.
// Passes are idempotent end to end: the delivery ledger absorbs repeated
// and overlapping passes, so multiple runner instances can share a store
// without coordination.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/escalate/dispatcher"
	"github.com/xraph/escalate/item"
	"github.com/xraph/escalate/job"
	"github.com/xraph/escalate/scan"
)

// Source supplies the item snapshots a pass evaluates. The surrounding
// system implements this against its task and project records.
type Source interface {
	// Snapshots returns the current evaluation candidates. Terminal
	// items may be included; the scanner skips them.
	Snapshots(ctx context.Context) ([]*item.Snapshot, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) ([]*item.Snapshot, error)

// Snapshots implements Source.
func (f SourceFunc) Snapshots(ctx context.Context) ([]*item.Snapshot, error) { return f(ctx) }

// cronParser accepts standard 5-field cron expressions and descriptors
// like "@hourly" or "@every 30m".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Runner executes scan passes on a cron schedule.
type Runner struct {
	source     Source
	scanner    *scan.Scanner
	dispatcher *dispatcher.Dispatcher
	schedule   cronlib.Schedule
	logger     *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a Runner firing on the given cron expression.
func New(expr string, source Source, scanner *scan.Scanner, d *dispatcher.Dispatcher, opts ...Option) (*Runner, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse schedule %q: %w", expr, err)
	}
	if source == nil {
		return nil, fmt.Errorf("scheduler: nil source")
	}

	r := &Runner{
		source:     source,
		scanner:    scanner,
		dispatcher: d,
		schedule:   schedule,
		logger:     slog.Default(),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start launches the schedule loop. It returns immediately.
func (r *Runner) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	r.running = true

	r.wg.Add(1)
	go r.loop()

	r.logger.Info("scan scheduler started",
		slog.Time("next_pass", r.schedule.Next(time.Now())),
	)
	return nil
}

// Stop signals the loop to stop and waits for an in-flight pass to
// finish.
func (r *Runner) Stop(_ context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("scan scheduler stopped")
	return nil
}

func (r *Runner) loop() {
	defer r.wg.Done()

	for {
		now := time.Now()
		next := r.schedule.Next(now)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-r.stopCh:
			timer.Stop()
			return
		case fired := <-timer.C:
			if _, err := r.RunPass(context.Background(), fired.UTC()); err != nil {
				r.logger.Error("scan pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunPass executes one full evaluation pass at the given instant and
// returns the jobs it created. It is safe to call concurrently with the
// schedule loop; the ledger deduplicates any overlap.
func (r *Runner) RunPass(ctx context.Context, now time.Time) ([]*job.Job, error) {
	started := time.Now()

	snapshots, err := r.source.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler: load snapshots: %w", err)
	}

	matches, err := r.scanner.Evaluate(ctx, now, snapshots)
	if err != nil {
		return nil, fmt.Errorf("scheduler: evaluate rules: %w", err)
	}

	created, err := r.dispatcher.Dispatch(ctx, matches)
	if err != nil {
		return created, fmt.Errorf("scheduler: dispatch matches: %w", err)
	}

	r.logger.Info("scan pass complete",
		slog.Int("snapshots", len(snapshots)),
		slog.Int("matches", len(matches)),
		slog.Int("jobs_created", len(created)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return created, nil
}
