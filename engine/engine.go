// Package engine wires all escalate subsystems together: the rule
// scanner, the dispatcher with its delivery ledger, one delivery queue
// per registered channel, the DLQ service, and the optional scan
// scheduler.
//
// This package exists to break the import cycle: the root escalate
// package defines Entity and Config (imported by job, rule, etc.) and so
// cannot import those packages back. The engine package sits above all
// subsystem packages and below the application layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/backoff"
	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/dispatcher"
	"github.com/xraph/escalate/dlq"
	"github.com/xraph/escalate/id"
	"github.com/xraph/escalate/job"
	mw "github.com/xraph/escalate/middleware"
	"github.com/xraph/escalate/prefs"
	"github.com/xraph/escalate/queue"
	"github.com/xraph/escalate/rule"
	"github.com/xraph/escalate/scan"
	"github.com/xraph/escalate/scheduler"
	"github.com/xraph/escalate/store"
)

// channelReg pairs a sender with its queue configuration until build
// time, when queue.New validates the pair.
type channelReg struct {
	sender queue.Sender
	cfg    queue.Config
}

// Engine runs the full escalation pipeline.
type Engine struct {
	cfg      escalate.Config
	store    store.Store
	provider prefs.Provider
	logger   *slog.Logger
	bo       backoff.Strategy
	mws      []mw.Middleware

	channels []channelReg
	source   scheduler.Source
	schedule string

	scanner    *scan.Scanner
	dispatcher *dispatcher.Dispatcher
	dlqService *dlq.Service
	queues     []*queue.Queue
	runner     *scheduler.Runner

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the persistence backend. Required.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithConfig sets the pipeline-wide delivery policy. Zero fields fall
// back to escalate.DefaultConfig().
func WithConfig(cfg escalate.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithChannel registers a sender and its queue configuration. At least
// one channel is required. Registering the same channel twice is a
// build error.
func WithChannel(sender queue.Sender, cfg queue.Config) Option {
	return func(e *Engine) {
		e.channels = append(e.channels, channelReg{sender: sender, cfg: cfg})
	}
}

// WithPreferences sets the per-recipient preference provider. If not
// set, every recipient gets prefs.Defaults().
func WithPreferences(p prefs.Provider) Option {
	return func(e *Engine) { e.provider = p }
}

// WithSource sets the snapshot source for scan passes.
func WithSource(src scheduler.Source) Option {
	return func(e *Engine) { e.source = src }
}

// WithSchedule enables periodic scan passes on the given cron
// expression. Requires WithSource. Without a schedule, passes run only
// when RunPass is called.
func WithSchedule(expr string) Option {
	return func(e *Engine) { e.schedule = expr }
}

// WithBackoff sets the retry backoff strategy for all queues.
// If not set, the strategy derives from Config.BackoffBase.
func WithBackoff(b backoff.Strategy) Option {
	return func(e *Engine) { e.bo = b }
}

// WithMiddleware appends middleware to the default delivery chain.
func WithMiddleware(mws ...mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, mws...) }
}

// WithLogger sets the engine's logger, inherited by every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, the
// metrics middleware uses this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New builds an Engine from the given options.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    escalate.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		return nil, escalate.ErrNoStore
	}
	if len(e.channels) == 0 {
		return nil, escalate.ErrNoSender
	}
	if e.schedule != "" && e.source == nil {
		return nil, escalate.ErrNoSource
	}

	applyConfigDefaults(&e.cfg)

	if e.provider == nil {
		e.provider = prefs.NewStatic()
	}
	if e.bo == nil {
		e.bo = backoff.NewExponential(e.cfg.BackoffBase, 0)
	}

	e.scanner = scan.New(e.store, scan.WithLogger(e.logger))
	e.dispatcher = dispatcher.New(e.store, e.store, e.provider,
		dispatcher.WithLogger(e.logger),
		dispatcher.WithMaxRetries(e.cfg.MaxRetries),
		dispatcher.WithSendTimeout(e.cfg.SendTimeout),
	)
	e.dlqService = dlq.NewService(e.store, e.store)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if e.tracerProvider != nil {
		tracer := e.tracerProvider.Tracer("github.com/xraph/escalate")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if e.meterProvider != nil {
		meter := e.meterProvider.Meter("github.com/xraph/escalate")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default delivery stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(e.logger),
		tracingMw,
		metricsMw,
		mw.Logging(e.logger),
		mw.Timeout(e.logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(e.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, e.mws...)

	seen := make(map[channel.Channel]bool, len(e.channels))
	for _, reg := range e.channels {
		if seen[reg.cfg.Channel] {
			return nil, fmt.Errorf("engine: channel %s registered twice", reg.cfg.Channel)
		}
		seen[reg.cfg.Channel] = true

		qcfg := reg.cfg
		if qcfg.PollInterval <= 0 {
			qcfg.PollInterval = e.cfg.PollInterval
		}
		if qcfg.ShutdownTimeout <= 0 {
			qcfg.ShutdownTimeout = e.cfg.ShutdownTimeout
		}

		q, err := queue.New(qcfg, e.store, reg.sender,
			queue.WithBackoff(e.bo),
			queue.WithDLQ(e.dlqService),
			queue.WithMiddleware(allMws...),
			queue.WithLogger(e.logger),
		)
		if err != nil {
			return nil, err
		}
		e.queues = append(e.queues, q)
	}

	if e.schedule != "" {
		runner, err := scheduler.New(e.schedule, e.source, e.scanner, e.dispatcher,
			scheduler.WithLogger(e.logger),
		)
		if err != nil {
			return nil, err
		}
		e.runner = runner
	}

	return e, nil
}

func applyConfigDefaults(cfg *escalate.Config) {
	def := escalate.DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
}

// Start verifies the store is reachable, starts every channel queue,
// and starts the scan scheduler if one is configured.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("engine: store ping: %w", err)
	}

	for _, q := range e.queues {
		if err := q.Start(ctx); err != nil {
			return fmt.Errorf("engine: start %s queue: %w", q.Channel(), err)
		}
	}

	if e.runner != nil {
		if err := e.runner.Start(ctx); err != nil {
			return fmt.Errorf("engine: start scheduler: %w", err)
		}
	}

	e.logger.Info("escalation engine started",
		slog.Int("channels", len(e.queues)),
		slog.Bool("scheduled", e.runner != nil),
	)
	return nil
}

// Stop shuts the pipeline down: the scheduler first so no new passes
// start, then every queue, draining in-flight sends. Errors from the
// individual subsystems are joined.
func (e *Engine) Stop(ctx context.Context) error {
	var errs []error

	if e.runner != nil {
		if err := e.runner.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("engine: stop scheduler: %w", err))
		}
	}

	for _, q := range e.queues {
		if err := q.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("engine: stop %s queue: %w", q.Channel(), err))
		}
	}

	if len(errs) == 0 {
		e.logger.Info("escalation engine stopped")
	}
	return errors.Join(errs...)
}

// RunPass executes one evaluation pass at the given instant and returns
// the jobs it created. It works with or without a configured schedule,
// and is safe to run concurrently with scheduled passes: the delivery
// ledger deduplicates any overlap.
func (e *Engine) RunPass(ctx context.Context, now time.Time) ([]*job.Job, error) {
	if e.source == nil {
		return nil, escalate.ErrNoSource
	}

	snapshots, err := e.source.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: load snapshots: %w", err)
	}

	matches, err := e.scanner.Evaluate(ctx, now, snapshots)
	if err != nil {
		return nil, err
	}

	return e.dispatcher.Dispatch(ctx, matches)
}

// CancelJob cancels a pending job. Jobs already claimed by a worker
// return escalate.ErrNotCancellable.
func (e *Engine) CancelJob(ctx context.Context, jobID id.JobID) error {
	return e.store.CancelJob(ctx, jobID)
}

// SaveRule creates or updates an escalation rule after validating it.
func (e *Engine) SaveRule(ctx context.Context, r *rule.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return e.store.SaveRule(ctx, r)
}

// DeleteRule removes a rule. Its ledger entries and past jobs remain.
func (e *Engine) DeleteRule(ctx context.Context, ruleID string) error {
	return e.store.DeleteRule(ctx, ruleID)
}

// DLQ returns the dead-letter service for inspection and replay.
func (e *Engine) DLQ() *dlq.Service { return e.dlqService }

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Dispatcher returns the match dispatcher.
func (e *Engine) Dispatcher() *dispatcher.Dispatcher { return e.dispatcher }

// Scanner returns the rule scanner.
func (e *Engine) Scanner() *scan.Scanner { return e.scanner }
