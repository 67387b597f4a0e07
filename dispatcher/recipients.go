package dispatcher

import (
	"fmt"

	"github.com/xraph/escalate/item"
	"github.com/xraph/escalate/prefs"
	"github.com/xraph/escalate/rule"
	"github.com/xraph/escalate/scan"
)

// Recipients resolves the recipient set for an action against one item.
// Results are deduplicated by recipient ID and never contain empty IDs.
func Recipients(action rule.Action, s *item.Snapshot) []string {
	var ids []string

	switch action {
	case rule.NotifyOwner:
		if s.AssigneeID != "" {
			ids = append(ids, s.AssigneeID)
		} else if s.OwnerID != "" {
			ids = append(ids, s.OwnerID)
		}

	case rule.NotifyStakeholders:
		ids = append(ids, s.StakeholderIDs...)
		if s.AssigneeID != "" {
			ids = append(ids, s.AssigneeID)
		}

	case rule.EscalateToManager:
		if s.ManagerID != "" {
			ids = append(ids, s.ManagerID)
		}
		if s.AssigneeID != "" {
			ids = append(ids, s.AssigneeID)
		}
	}

	return dedup(ids)
}

// Category maps a trigger type to the preference category that gates it.
// Both day-based triggers are deadline notifications; a stalled-progress
// trigger reports on item status.
func Category(t rule.TriggerType) prefs.Category {
	if t == rule.ProgressBelow {
		return prefs.StatusChange
	}
	return prefs.Deadline
}

// render builds the subject and message for a match. Content rendering
// (HTML templates, branding) lives outside this module; these are the
// plain strings every channel can carry.
func render(m *scan.Match) (subject, message string) {
	name := m.Rule.Name
	if name == "" {
		name = m.Rule.ID
	}

	kind := string(m.Item.Kind)
	if kind == "" {
		kind = "item"
	}

	switch m.Rule.Trigger {
	case rule.DaysAfterDue:
		subject = fmt.Sprintf("Overdue %s: %s", kind, m.Item.ID)
		message = fmt.Sprintf("%s %s is overdue by at least %d day(s). Escalation rule %q fired at %s.",
			kind, m.Item.ID, m.Rule.TriggerValue, name, m.MatchedAt.Format("2006-01-02 15:04 MST"))
	case rule.DaysBeforeDue:
		subject = fmt.Sprintf("Deadline approaching for %s: %s", kind, m.Item.ID)
		message = fmt.Sprintf("%s %s is due within %d day(s). Escalation rule %q fired at %s.",
			kind, m.Item.ID, m.Rule.TriggerValue, name, m.MatchedAt.Format("2006-01-02 15:04 MST"))
	case rule.ProgressBelow:
		progress := 0
		if m.Item.Progress != nil {
			progress = *m.Item.Progress
		}
		subject = fmt.Sprintf("Progress stalled on %s: %s", kind, m.Item.ID)
		message = fmt.Sprintf("%s %s is past its schedule midpoint at %d%% progress (threshold %d%%). Escalation rule %q fired at %s.",
			kind, m.Item.ID, progress, m.Rule.TriggerValue, name, m.MatchedAt.Format("2006-01-02 15:04 MST"))
	default:
		subject = fmt.Sprintf("Escalation on %s: %s", kind, m.Item.ID)
		message = fmt.Sprintf("Escalation rule %q fired for %s %s.", name, kind, m.Item.ID)
	}

	return subject, message
}

func dedup(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
