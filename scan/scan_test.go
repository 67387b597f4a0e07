package scan_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/escalate/item"
	"github.com/xraph/escalate/rule"
	"github.com/xraph/escalate/scan"
	"github.com/xraph/escalate/store/memory"
)

func activeRule(id string, trigger rule.TriggerType, value int) *rule.Rule {
	return &rule.Rule{
		ID:           id,
		Name:         id,
		Trigger:      trigger,
		TriggerValue: value,
		Action:       rule.NotifyOwner,
		Status:       rule.StatusActive,
	}
}

func setupScanner(t *testing.T, rules ...*rule.Rule) *scan.Scanner {
	t.Helper()
	s := memory.New()
	for _, r := range rules {
		if err := s.SaveRule(context.Background(), r); err != nil {
			t.Fatalf("seed rule %s: %v", r.ID, err)
		}
	}
	return scan.New(s)
}

func timePtr(t time.Time) *time.Time { return &t }
func intPtr(n int) *int              { return &n }

func TestEvaluate_DaysAfterDueThresholds(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sc := setupScanner(t,
		activeRule("overdue-1d", rule.DaysAfterDue, 1),
		activeRule("overdue-3d", rule.DaysAfterDue, 3),
	)

	// 36 hours overdue: matches the 1-day rule only.
	task := &item.Snapshot{
		ID:      "task-1",
		Status:  item.StatusInProgress,
		DueDate: timePtr(now.Add(-36 * time.Hour)),
	}

	matches, err := sc.Evaluate(context.Background(), now, []*item.Snapshot{task})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Rule.ID != "overdue-1d" {
		t.Fatalf("matched rule %q, want overdue-1d", matches[0].Rule.ID)
	}

	// 80 hours overdue: matches both rules independently.
	task.DueDate = timePtr(now.Add(-80 * time.Hour))
	matches, err = sc.Evaluate(context.Background(), now, []*item.Snapshot{task})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
}

func TestEvaluate_DaysBeforeDueWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sc := setupScanner(t, activeRule("approaching-2d", rule.DaysBeforeDue, 2))

	cases := []struct {
		name string
		due  time.Time
		want int
	}{
		{"inside window", now.Add(24 * time.Hour), 1},
		{"at window edge", now.Add(48 * time.Hour), 1},
		{"outside window", now.Add(72 * time.Hour), 0},
		{"already due", now.Add(-time.Hour), 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := &item.Snapshot{
				ID:      "task-1",
				Status:  item.StatusInProgress,
				DueDate: timePtr(tc.due),
			}
			matches, err := sc.Evaluate(context.Background(), now, []*item.Snapshot{task})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if len(matches) != tc.want {
				t.Fatalf("got %d matches, want %d", len(matches), tc.want)
			}
		})
	}
}

func TestEvaluate_TerminalStatusNeverMatches(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sc := setupScanner(t,
		activeRule("overdue-1d", rule.DaysAfterDue, 1),
		activeRule("approaching-2d", rule.DaysBeforeDue, 2),
	)

	for _, status := range []item.Status{item.StatusCompleted, item.StatusCancelled} {
		task := &item.Snapshot{
			ID:      "task-1",
			Status:  status,
			DueDate: timePtr(now.Add(-10 * 24 * time.Hour)),
		}
		matches, err := sc.Evaluate(context.Background(), now, []*item.Snapshot{task})
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if len(matches) != 0 {
			t.Fatalf("status %s: got %d matches, want 0", status, len(matches))
		}
	}
}

func TestEvaluate_ProgressBelow(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	sc := setupScanner(t, activeRule("stalled-50", rule.ProgressBelow, 50))

	start := now.Add(-10 * 24 * time.Hour)
	end := now.Add(2 * 24 * time.Hour) // past midpoint

	project := &item.Snapshot{
		ID:        "proj-1",
		Kind:      item.Project,
		Status:    item.StatusInProgress,
		StartDate: timePtr(start),
		EndDate:   timePtr(end),
		Progress:  intPtr(30),
	}

	matches, err := sc.Evaluate(context.Background(), now, []*item.Snapshot{project})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}

	// Progress at the threshold does not match.
	project.Progress = intPtr(50)
	matches, err = sc.Evaluate(context.Background(), now, []*item.Snapshot{project})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("got %d matches, want 0 at threshold", len(matches))
	}

	// Before the schedule midpoint nothing matches regardless of progress.
	early := &item.Snapshot{
		ID:        "proj-2",
		Status:    item.StatusInProgress,
		StartDate: timePtr(now.Add(-24 * time.Hour)),
		EndDate:   timePtr(now.Add(10 * 24 * time.Hour)),
		Progress:  intPtr(0),
	}
	matches, err = sc.Evaluate(context.Background(), now, []*item.Snapshot{early})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("got %d matches, want 0 before midpoint", len(matches))
	}
}

func TestEvaluate_MissingFieldsNeverMatch(t *testing.T) {
	now := time.Now().UTC()
	sc := setupScanner(t,
		activeRule("overdue-1d", rule.DaysAfterDue, 1),
		activeRule("stalled-50", rule.ProgressBelow, 50),
	)

	// No due date, no schedule: a permanent non-match, not an error.
	task := &item.Snapshot{ID: "task-1", Status: item.StatusInProgress}
	matches, err := sc.Evaluate(context.Background(), now, []*item.Snapshot{task})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("got %d matches, want 0", len(matches))
	}
}

func TestEvaluate_ScopeMatching(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	scoped := activeRule("overdue-scoped", rule.DaysAfterDue, 1)
	scoped.ScopeProjectID = "proj-A"
	global := activeRule("overdue-global", rule.DaysAfterDue, 1)

	sc := setupScanner(t, scoped, global)

	inScope := &item.Snapshot{
		ID:        "task-a",
		Status:    item.StatusInProgress,
		ProjectID: "proj-A",
		DueDate:   timePtr(now.Add(-48 * time.Hour)),
	}
	outOfScope := &item.Snapshot{
		ID:        "task-b",
		Status:    item.StatusInProgress,
		ProjectID: "proj-B",
		DueDate:   timePtr(now.Add(-48 * time.Hour)),
	}

	matches, err := sc.Evaluate(context.Background(), now, []*item.Snapshot{inScope, outOfScope})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	// in-scope task matches both rules, out-of-scope only the global one.
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	for _, m := range matches {
		if m.Rule.ID == "overdue-scoped" && m.Item.ID != "task-a" {
			t.Fatalf("scoped rule matched %s", m.Item.ID)
		}
	}
}

func TestEvaluate_InactiveRulesSkipped(t *testing.T) {
	now := time.Now().UTC()
	inactive := activeRule("overdue-1d", rule.DaysAfterDue, 1)
	inactive.Status = rule.StatusInactive
	sc := setupScanner(t, inactive)

	task := &item.Snapshot{
		ID:      "task-1",
		Status:  item.StatusInProgress,
		DueDate: timePtr(now.Add(-48 * time.Hour)),
	}
	matches, err := sc.Evaluate(context.Background(), now, []*item.Snapshot{task})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("got %d matches, want 0 for inactive rule", len(matches))
	}
}

func TestEvaluate_MalformedSnapshotSkipped(t *testing.T) {
	now := time.Now().UTC()
	sc := setupScanner(t, activeRule("overdue-1d", rule.DaysAfterDue, 1))

	bad := &item.Snapshot{ID: "", Status: item.StatusInProgress}
	good := &item.Snapshot{
		ID:      "task-1",
		Status:  item.StatusInProgress,
		DueDate: timePtr(now.Add(-48 * time.Hour)),
	}

	matches, err := sc.Evaluate(context.Background(), now, []*item.Snapshot{bad, good})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(matches) != 1 || matches[0].Item.ID != "task-1" {
		t.Fatalf("bad snapshot was not skipped cleanly: %d matches", len(matches))
	}
}
