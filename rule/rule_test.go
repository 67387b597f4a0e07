package rule_test

import (
	"testing"

	"github.com/xraph/escalate/item"
	"github.com/xraph/escalate/rule"
)

func validRule() *rule.Rule {
	return &rule.Rule{
		ID:           "r1",
		Name:         "overdue",
		Trigger:      rule.DaysAfterDue,
		TriggerValue: 3,
		Action:       rule.NotifyOwner,
		Status:       rule.StatusActive,
	}
}

func TestValidate(t *testing.T) {
	if err := validRule().Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*rule.Rule)
	}{
		{"empty id", func(r *rule.Rule) { r.ID = "" }},
		{"negative threshold", func(r *rule.Rule) { r.TriggerValue = -1 }},
		{"unknown trigger", func(r *rule.Rule) { r.Trigger = "on_full_moon" }},
		{"unknown action", func(r *rule.Rule) { r.Action = "notify_everyone" }},
		{"unknown status", func(r *rule.Rule) { r.Status = "paused" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRule()
			tt.mutate(r)
			if err := r.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestAppliesTo_Scope(t *testing.T) {
	snap := &item.Snapshot{ID: "t1", ProjectID: "proj-a", OrgID: "org-1"}

	tests := []struct {
		name       string
		projectID  string
		orgID      string
		wantApply  bool
	}{
		{"unscoped applies everywhere", "", "", true},
		{"matching project", "proj-a", "", true},
		{"other project", "proj-b", "", false},
		{"matching org", "", "org-1", true},
		{"other org", "", "org-2", false},
		{"project matches but org does not", "proj-a", "org-2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRule()
			r.ScopeProjectID = tt.projectID
			r.ScopeOrgID = tt.orgID
			if got := r.AppliesTo(snap); got != tt.wantApply {
				t.Fatalf("AppliesTo = %v, want %v", got, tt.wantApply)
			}
		})
	}
}
