package prefs_test

import (
	"context"
	"testing"

	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/prefs"
)

func TestWants(t *testing.T) {
	p := prefs.Preferences{
		Categories: map[prefs.Category]bool{
			prefs.Deadline: false,
			prefs.Mention:  true,
		},
	}

	if p.Wants(prefs.Deadline) {
		t.Fatal("disabled category reported as wanted")
	}
	if !p.Wants(prefs.Mention) {
		t.Fatal("enabled category reported as unwanted")
	}
	// Categories missing from the map default to enabled.
	if !p.Wants(prefs.StatusChange) {
		t.Fatal("unset category should default to enabled")
	}
}

func TestStaticProvider(t *testing.T) {
	s := prefs.NewStatic()
	s.Set("alice", prefs.Preferences{
		Channels: []channel.Channel{channel.Email, channel.Chat},
	})

	got, err := s.Preferences(context.Background(), "alice")
	if err != nil {
		t.Fatalf("preferences: %v", err)
	}
	if len(got.Channels) != 2 {
		t.Fatalf("alice has %d channels, want 2", len(got.Channels))
	}

	// Unknown recipients fall back to the defaults: email only, all
	// categories on.
	def, err := s.Preferences(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("preferences for unknown: %v", err)
	}
	if len(def.Channels) != 1 || def.Channels[0] != channel.Email {
		t.Fatalf("default channels = %v, want [email]", def.Channels)
	}
	if !def.Wants(prefs.Deadline) {
		t.Fatal("default preferences should enable every category")
	}
}
