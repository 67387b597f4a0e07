// Package rule defines escalation rules: declarative trigger + threshold +
// action definitions governing when and how a notification is raised.
// Rule management (create/edit UI) lives outside this module; the pipeline
// only reads active rules during a scan pass.
package rule

import (
	"errors"
	"fmt"

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/item"
)

// TriggerType is the class of condition a rule watches.
type TriggerType string

const (
	// DaysAfterDue fires once the item is overdue by at least the
	// threshold number of days.
	DaysAfterDue TriggerType = "days_after_due"
	// DaysBeforeDue fires inside the threshold window before the due date.
	DaysBeforeDue TriggerType = "days_before_due"
	// ProgressBelow fires when the item is past the midpoint of its
	// schedule with progress under the threshold percentage.
	ProgressBelow TriggerType = "progress_below"
)

// Action selects who gets notified when the rule fires.
type Action string

const (
	// NotifyOwner notifies the assignee, falling back to the owner.
	NotifyOwner Action = "notify_owner"
	// NotifyStakeholders notifies stakeholders plus the assignee.
	NotifyStakeholders Action = "notify_stakeholders"
	// EscalateToManager notifies the project manager plus the assignee.
	EscalateToManager Action = "escalate_to_manager"
)

// Status enables or disables a rule.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Rule is one escalation rule. Rules are immutable during a scan pass;
// mutation happens only through the external management layer.
type Rule struct {
	escalate.Entity

	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Trigger     TriggerType `json:"trigger"`

	// TriggerValue is the trigger threshold: days for the day-based
	// triggers, a percentage for ProgressBelow. Always >= 0.
	TriggerValue int `json:"trigger_value"`

	Action Action `json:"action"`
	Status Status `json:"status"`

	// Priority orders the rule's jobs within a channel queue. Higher
	// runs first. It does not suppress other matching rules.
	Priority int `json:"priority"`

	// ScopeProjectID limits the rule to one project; empty applies to all.
	ScopeProjectID string `json:"scope_project_id,omitempty"`
	// ScopeOrgID limits the rule to one organization; empty applies to all.
	ScopeOrgID string `json:"scope_org_id,omitempty"`
}

// Validate checks rule integrity.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return errors.New("rule: empty id")
	}
	if r.TriggerValue < 0 {
		return fmt.Errorf("rule %s: negative trigger value %d", r.ID, r.TriggerValue)
	}
	switch r.Trigger {
	case DaysAfterDue, DaysBeforeDue, ProgressBelow:
	default:
		return fmt.Errorf("rule %s: unknown trigger type %q", r.ID, r.Trigger)
	}
	switch r.Action {
	case NotifyOwner, NotifyStakeholders, EscalateToManager:
	default:
		return fmt.Errorf("rule %s: unknown action %q", r.ID, r.Action)
	}
	switch r.Status {
	case StatusActive, StatusInactive:
	default:
		return fmt.Errorf("rule %s: unknown status %q", r.ID, r.Status)
	}
	return nil
}

// AppliesTo reports whether the rule's scope covers the item. An empty
// scope field applies to everything.
func (r *Rule) AppliesTo(s *item.Snapshot) bool {
	if r.ScopeProjectID != "" && r.ScopeProjectID != s.ProjectID {
		return false
	}
	if r.ScopeOrgID != "" && r.ScopeOrgID != s.OrgID {
		return false
	}
	return true
}
