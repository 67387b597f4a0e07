// Command escalated runs the escalation pipeline as a standalone daemon:
// it loads a YAML config, seeds rules, evaluates item snapshots on a
// cron schedule, and delivers notifications over the configured
// channels. Both senders default to dev mode (log instead of deliver)
// until explicitly enabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/channel/chat"
	"github.com/xraph/escalate/channel/email"
	"github.com/xraph/escalate/engine"
	"github.com/xraph/escalate/queue"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./escalated.yaml", "path to config yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	s, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck // shutdown path

	if err := s.Migrate(ctx); err != nil {
		return err
	}

	if cfg.RulesFile != "" {
		n, seedErr := seedRules(ctx, s, cfg.RulesFile)
		if seedErr != nil {
			return seedErr
		}
		logger.Info("rules seeded", slog.Int("count", n), slog.String("file", cfg.RulesFile))
	}

	emailSender, err := email.New(cfg.Email.Config, nil, email.WithLogger(logger))
	if err != nil {
		return err
	}
	chatSender, err := chat.New(cfg.Chat.Config, nil, chat.WithLogger(logger))
	if err != nil {
		return err
	}

	opts := []engine.Option{
		engine.WithStore(s),
		engine.WithLogger(logger),
		engine.WithConfig(cfg.Delivery.toConfig()),
		engine.WithChannel(emailSender, queue.Config{
			Channel:     channel.Email,
			Concurrency: cfg.Email.Concurrency,
			RateLimit:   cfg.Email.RateLimit,
			RateBurst:   cfg.Email.RateBurst,
		}),
		engine.WithChannel(chatSender, queue.Config{
			Channel:     channel.Chat,
			Concurrency: cfg.Chat.Concurrency,
			RateLimit:   cfg.Chat.RateLimit,
			RateBurst:   cfg.Chat.RateBurst,
		}),
	}
	if cfg.SnapshotsFile != "" {
		opts = append(opts, engine.WithSource(fileSource(cfg.SnapshotsFile)))
	}
	if cfg.Schedule != "" {
		opts = append(opts, engine.WithSchedule(cfg.Schedule))
	}

	eng, err := engine.New(opts...)
	if err != nil {
		return err
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Minute)
	defer stopCancel()
	return eng.Stop(stopCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
