package job_test

import (
	"testing"
	"time"

	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/job"
)

func TestNewDefaults(t *testing.T) {
	j := job.New("escalation", channel.Email, "alice", "subject", "body")

	if j.ID.IsNil() {
		t.Fatal("job created without ID")
	}
	if j.State != job.StatePending {
		t.Fatalf("state = %s, want pending", j.State)
	}
	if j.MaxRetries != 3 {
		t.Fatalf("max retries = %d, want 3", j.MaxRetries)
	}
	if j.RunAt.IsZero() || j.RunAt.After(time.Now().UTC()) {
		t.Fatalf("RunAt = %v, want due immediately", j.RunAt)
	}
	if j.CreatedAt.IsZero() || j.UpdatedAt.IsZero() {
		t.Fatal("entity timestamps not set")
	}
}

func TestNewOptions(t *testing.T) {
	payload := []byte(`{"k":"v"}`)
	j := job.New("escalation", channel.Chat, "bob", "s", "m",
		job.WithPriority(9),
		job.WithMaxRetries(5),
		job.WithTimeout(10*time.Second),
		job.WithPayload(payload),
		job.WithOrigin("rule-7", "task-7"),
	)

	if j.Priority != 9 || j.MaxRetries != 5 || j.Timeout != 10*time.Second {
		t.Fatalf("options not applied: %+v", j)
	}
	if string(j.Payload) != `{"k":"v"}` {
		t.Fatalf("payload = %s", j.Payload)
	}
	if j.RuleID != "rule-7" || j.ItemID != "task-7" {
		t.Fatalf("origin = (%s, %s)", j.RuleID, j.ItemID)
	}
}

func TestStateTerminal(t *testing.T) {
	terminal := map[job.State]bool{
		job.StatePending:    false,
		job.StateProcessing: false,
		job.StateSent:       true,
		job.StateFailed:     true,
		job.StateCancelled:  true,
	}
	for state, want := range terminal {
		if got := state.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", state, got, want)
		}
	}
}
