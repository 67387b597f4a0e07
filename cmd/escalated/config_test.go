package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/escalate/store/memory"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "escalated.yaml", `
log_level: debug
schedule: "*/15 * * * *"
store:
  backend: sqlite
  dsn: "file:test.db"
delivery:
  max_retries: 5
  backoff_base: 2s
  send_timeout: 45s
email:
  enabled: true
  host: smtp.example.com
  from: noreply@example.com
  concurrency: 8
  rate_limit: 10
chat:
  token: "123:abc"
  chat_id: -100200300
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Store.Backend != "sqlite" || cfg.Store.DSN != "file:test.db" {
		t.Fatalf("store config = %+v", cfg.Store)
	}
	if cfg.Delivery.MaxRetries != 5 {
		t.Fatalf("max retries = %d, want 5", cfg.Delivery.MaxRetries)
	}
	if time.Duration(cfg.Delivery.BackoffBase) != 2*time.Second {
		t.Fatalf("backoff base = %v, want 2s", time.Duration(cfg.Delivery.BackoffBase))
	}
	if !cfg.Email.Enabled || cfg.Email.Host != "smtp.example.com" || cfg.Email.Concurrency != 8 {
		t.Fatalf("email config = %+v", cfg.Email)
	}
	if cfg.Chat.ChatID != -100200300 {
		t.Fatalf("chat id = %d", cfg.Chat.ChatID)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeFile(t, "empty.yaml", "")
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Fatalf("backend = %q, want memory", cfg.Store.Backend)
	}
}

func TestLoadConfig_RejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "bad.yaml", "schedle: \"@hourly\"\n")
	if _, err := loadConfig(path); err == nil {
		t.Fatal("misspelled field accepted")
	}
}

func TestFileSource(t *testing.T) {
	path := writeFile(t, "snapshots.json", `[
		{"id": "task-1", "kind": "task", "status": "in_progress", "assignee_id": "alice"},
		{"id": "proj-1", "kind": "project", "status": "planned"}
	]`)

	snapshots, err := fileSource(path).Snapshots(context.Background())
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snapshots))
	}
	if snapshots[0].ID != "task-1" || snapshots[0].AssigneeID != "alice" {
		t.Fatalf("snapshot = %+v", snapshots[0])
	}
}

func TestSeedRules(t *testing.T) {
	path := writeFile(t, "rules.json", `[
		{"id": "r1", "name": "overdue", "trigger": "days_after_due",
		 "trigger_value": 3, "action": "notify_owner", "status": "active"}
	]`)

	s := memory.New()
	n, err := seedRules(context.Background(), s, path)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 1 {
		t.Fatalf("seeded %d rules, want 1", n)
	}
	if _, err := s.GetRule(context.Background(), "r1"); err != nil {
		t.Fatalf("get seeded rule: %v", err)
	}

	bad := writeFile(t, "bad_rules.json", `[{"id": "", "trigger": "days_after_due"}]`)
	if _, err := seedRules(context.Background(), s, bad); err == nil {
		t.Fatal("invalid rule accepted")
	}
}
