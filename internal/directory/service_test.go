package directory

import (
	"context"
	"testing"
	"time"

	"slonyara/internal/storage"
	logx "slonyara/pkg/logx"
)

func newService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	st := storage.NewMemory()
	s := New(Config{
		DefaultTimezone:          "UTC",
		DefaultLeadOffsetMinutes: 30,
		OwnerIDs:                 []int64{1},
		OwnerUsernames:           []string{"@Boss"},
	}, st, logx.Nop())
	return s, st
}

func TestAdminChecks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newService(t)

	tests := []struct {
		name     string
		userID   int64
		username string
		want     bool
	}{
		{name: "owner by id", userID: 1, want: true},
		{name: "owner by username case-insensitive", userID: 99, username: "boss", want: true},
		{name: "owner by username with at", userID: 99, username: "@BOSS", want: true},
		{name: "stranger", userID: 99, username: "nobody", want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := s.IsAdmin(tt.userID, tt.username); got != tt.want {
				t.Fatalf("IsAdmin(%d, %q) = %v, want %v", tt.userID, tt.username, got, tt.want)
			}
		})
	}

	if err := s.AddAdmin(ctx, "@Helper"); err != nil {
		t.Fatalf("AddAdmin: %v", err)
	}
	if !s.IsAdmin(50, "helper") {
		t.Fatalf("stored admin not recognized")
	}
	if s.IsOwner(50, "helper") {
		t.Fatalf("stored admin must not be owner")
	}
	if err := s.RemoveAdmin(ctx, "helper"); err != nil {
		t.Fatalf("RemoveAdmin: %v", err)
	}
	if s.IsAdmin(50, "helper") {
		t.Fatalf("removed admin still recognized")
	}
}

func TestAdminsSurviveReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, st := newService(t)
	_ = s.AddAdmin(ctx, "helper")

	// A fresh service over the same store picks stored admins up via Load.
	s2 := New(Config{DefaultTimezone: "UTC"}, st, logx.Nop())
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s2.IsAdmin(0, "helper") {
		t.Fatalf("stored admin lost across restart")
	}
}

func TestChatSettingsDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newService(t)

	if got := s.LeadOffset(ctx, 10); got != 30 {
		t.Fatalf("default LeadOffset = %d, want 30", got)
	}
	if got := s.TimeZone(ctx, 10); got != time.UTC {
		t.Fatalf("default TimeZone = %v, want UTC", got)
	}

	if err := s.SetLeadOffset(ctx, 10, -5); err != nil {
		t.Fatalf("SetLeadOffset: %v", err)
	}
	if got := s.LeadOffset(ctx, 10); got != 0 {
		t.Fatalf("negative offset must normalize to 0, got %d", got)
	}
	if err := s.SetLeadOffset(ctx, 10, 45); err != nil {
		t.Fatalf("SetLeadOffset: %v", err)
	}
	if got := s.LeadOffset(ctx, 10); got != 45 {
		t.Fatalf("LeadOffset = %d, want 45", got)
	}

	if err := s.SetTimeZone(ctx, 10, "no/such_zone"); err == nil {
		t.Fatalf("bogus timezone must be rejected")
	}
	if err := s.SetTimeZone(ctx, 10, "UTC"); err != nil {
		t.Fatalf("SetTimeZone: %v", err)
	}
	if got := s.TimeZone(ctx, 10); got.String() != "UTC" {
		t.Fatalf("TimeZone = %v, want UTC", got)
	}
	// Offset set earlier survives the timezone update.
	if got := s.LeadOffset(ctx, 10); got != 45 {
		t.Fatalf("LeadOffset after SetTimeZone = %d, want 45", got)
	}
}

func TestChatRegistry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newService(t)

	_ = s.RegisterChat(ctx, storage.RegisteredChat{ChatID: 5, Title: "Team", TopicID: 2, TopicTitle: "standup"})
	if !s.IsRegistered(ctx, 5, 2) {
		t.Fatalf("registered chat not found")
	}
	if s.IsRegistered(ctx, 5, 0) {
		t.Fatalf("different topic must not count as registered")
	}
	_ = s.UnregisterChat(ctx, 5, 2)
	if s.IsRegistered(ctx, 5, 2) {
		t.Fatalf("unregistered chat still present")
	}
}
