package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/channel/chat"
	"github.com/xraph/escalate/channel/email"
)

// duration wraps time.Duration so YAML values like "30s" parse.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = duration(parsed)
	return nil
}

type fileConfig struct {
	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// Schedule is the cron expression driving scan passes, e.g.
	// "*/15 * * * *" or "@every 5m". Empty disables scheduled passes.
	Schedule string `yaml:"schedule"`

	// SnapshotsFile is a JSON file holding the item snapshots each pass
	// evaluates. Re-read on every pass so edits take effect live.
	SnapshotsFile string `yaml:"snapshots_file"`

	// RulesFile is a JSON file of escalation rules seeded into the store
	// at startup.
	RulesFile string `yaml:"rules_file"`

	Store    storeConfig    `yaml:"store"`
	Delivery deliveryConfig `yaml:"delivery"`
	Email    emailConfig    `yaml:"email"`
	Chat     chatConfig     `yaml:"chat"`
}

type storeConfig struct {
	// Backend is one of memory, sqlite, redis, postgres.
	Backend string `yaml:"backend"`

	// DSN is the sqlite path or postgres connection string.
	DSN string `yaml:"dsn"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type deliveryConfig struct {
	MaxRetries      int      `yaml:"max_retries"`
	BackoffBase     duration `yaml:"backoff_base"`
	SendTimeout     duration `yaml:"send_timeout"`
	PollInterval    duration `yaml:"poll_interval"`
	ShutdownTimeout duration `yaml:"shutdown_timeout"`
}

func (c deliveryConfig) toConfig() escalate.Config {
	return escalate.Config{
		MaxRetries:      c.MaxRetries,
		BackoffBase:     time.Duration(c.BackoffBase),
		SendTimeout:     time.Duration(c.SendTimeout),
		PollInterval:    time.Duration(c.PollInterval),
		ShutdownTimeout: time.Duration(c.ShutdownTimeout),
	}
}

type emailConfig struct {
	email.Config `yaml:",inline"`

	Concurrency int     `yaml:"concurrency"`
	RateLimit   float64 `yaml:"rate_limit"`
	RateBurst   int     `yaml:"rate_burst"`
}

type chatConfig struct {
	chat.Config `yaml:",inline"`

	Concurrency int     `yaml:"concurrency"`
	RateLimit   float64 `yaml:"rate_limit"`
	RateBurst   int     `yaml:"rate_burst"`
}

// loadConfig reads and parses the YAML config file. A missing file is an
// error; every field has a workable zero value, so an empty file runs a
// dev-mode pipeline on the memory store.
func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	return &cfg, nil
}
