// Package item defines the read-only work-item snapshot the surrounding
// system supplies on every scan pass. Snapshots are projections of tasks
// or projects; the pipeline never mutates them.
package item

import (
	"errors"
	"fmt"
	"time"
)

// Kind distinguishes the projection source.
type Kind string

const (
	// Task is a task projection.
	Task Kind = "task"
	// Project is a project projection.
	Project Kind = "project"
)

// Status is the work item's lifecycle status as reported by the
// surrounding system.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusOnHold     Status = "on_hold"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status excludes the item from deadline
// rules. Completed and cancelled items never match.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Snapshot is a point-in-time projection of one work item. Optional
// fields are pointers; a rule that needs an absent field permanently
// does not match, which is not an error.
type Snapshot struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Status Status `json:"status"`

	DueDate   *time.Time `json:"due_date,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	// Progress is a completion percentage in [0, 100].
	Progress *int `json:"progress,omitempty"`

	ProjectID string `json:"project_id,omitempty"`
	OrgID     string `json:"org_id,omitempty"`

	AssigneeID     string   `json:"assignee_id,omitempty"`
	OwnerID        string   `json:"owner_id,omitempty"`
	ManagerID      string   `json:"manager_id,omitempty"`
	StakeholderIDs []string `json:"stakeholder_ids,omitempty"`
}

// Validate checks snapshot integrity. A snapshot that fails validation
// is skipped by the scanner; it never aborts a pass.
func (s *Snapshot) Validate() error {
	if s == nil {
		return errors.New("item: nil snapshot")
	}
	if s.ID == "" {
		return errors.New("item: snapshot has empty id")
	}
	if s.Progress != nil && (*s.Progress < 0 || *s.Progress > 100) {
		return fmt.Errorf("item %s: progress %d outside [0, 100]", s.ID, *s.Progress)
	}
	if s.StartDate != nil && s.EndDate != nil && s.EndDate.Before(*s.StartDate) {
		return fmt.Errorf("item %s: end date before start date", s.ID)
	}
	return nil
}
