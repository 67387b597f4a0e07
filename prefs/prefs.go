// Package prefs models per-recipient notification preferences. The
// surrounding system owns the preference data; the dispatcher consults a
// Provider to decide which categories a recipient receives and on which
// channels. A recipient whose relevant category is disabled is skipped
// silently — expected suppression, not a failure.
package prefs

import (
	"context"
	"sync"

	"github.com/xraph/escalate/channel"
)

// Category is a notification category a recipient can toggle.
type Category string

const (
	Deadline         Category = "deadline"
	AssignmentChange Category = "assignment_change"
	Mention          Category = "mention"
	StatusChange     Category = "status_change"
)

// Preferences holds one recipient's notification settings.
type Preferences struct {
	// Categories maps each category to whether the recipient receives
	// it. A category missing from the map falls back to the default
	// (enabled).
	Categories map[Category]bool `json:"categories,omitempty"`

	// Channels lists the transports the recipient is configured to
	// receive. A recipient with both email and chat enabled yields two
	// jobs from one rule match.
	Channels []channel.Channel `json:"channels,omitempty"`
}

// Wants reports whether the recipient receives the given category.
func (p Preferences) Wants(c Category) bool {
	enabled, ok := p.Categories[c]
	if !ok {
		return true
	}
	return enabled
}

// Defaults returns the preferences applied to recipients without a
// stored record: every category on, email only.
func Defaults() Preferences {
	return Preferences{
		Channels: []channel.Channel{channel.Email},
	}
}

// Provider supplies per-recipient preferences.
type Provider interface {
	// Preferences returns the settings for one recipient. Unknown
	// recipients get Defaults(), not an error.
	Preferences(ctx context.Context, recipientID string) (Preferences, error)
}

// Static is a map-backed Provider for development and tests.
// Safe for concurrent use.
type Static struct {
	mu   sync.RWMutex
	byID map[string]Preferences
}

// NewStatic creates an empty Static provider.
func NewStatic() *Static {
	return &Static{byID: make(map[string]Preferences)}
}

// Set stores preferences for a recipient.
func (s *Static) Set(recipientID string, p Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[recipientID] = p
}

// Preferences returns the stored settings, or Defaults() for unknown
// recipients.
func (s *Static) Preferences(_ context.Context, recipientID string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[recipientID]
	if !ok {
		return Defaults(), nil
	}
	return p, nil
}
