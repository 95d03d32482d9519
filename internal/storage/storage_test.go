package storage

import (
	"context"
	"testing"
	"time"

	"slonyara/internal/job"
	logx "slonyara/pkg/logx"
)

func sampleJob(id string, chatID int64, text string) job.Reminder {
	return job.Reminder{
		ID:           id,
		TargetChatID: chatID,
		TopicID:      7,
		SourceChatID: chatID,
		Text:         text,
		FireAt:       time.Date(2024, 8, 8, 17, 10, 0, 0, time.UTC),
		Recurrence:   job.Once,
		AuthorID:     42,
		Signature:    "sig-" + id,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestMemoryJobCRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemory()

	j := sampleJob("rem-1", 100, "08.08 МТС 20:40 2в")
	if err := st.PutJob(ctx, j); err != nil {
		t.Fatalf("PutJob: %v", err)
	}

	got, err := st.GetJob(ctx, "rem-1")
	if err != nil || got == nil {
		t.Fatalf("GetJob = %v, %v", got, err)
	}
	if got.Text != j.Text || !got.FireAt.Equal(j.FireAt) || got.Recurrence != job.Once {
		t.Fatalf("round-trip mismatch: %+v", got)
	}

	missing, err := st.GetJob(ctx, "rem-absent")
	if err != nil || missing != nil {
		t.Fatalf("miss must be (nil, nil), got %v, %v", missing, err)
	}

	// Upsert mutates fire time and recurrence.
	j.FireAt = j.FireAt.Add(24 * time.Hour)
	j.Recurrence = job.Daily
	if err := st.PutJob(ctx, j); err != nil {
		t.Fatalf("PutJob update: %v", err)
	}
	got, _ = st.GetJob(ctx, "rem-1")
	if !got.FireAt.Equal(j.FireAt) || got.Recurrence != job.Daily {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := st.DeleteJob(ctx, "rem-1"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if err := st.DeleteJob(ctx, "rem-1"); err != nil {
		t.Fatalf("DeleteJob must be idempotent: %v", err)
	}
}

func TestMemoryFindJobByText(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemory()
	_ = st.PutJob(ctx, sampleJob("rem-1", 100, "08.08 МТС 20:40 2в"))
	_ = st.PutJob(ctx, sampleJob("rem-2", 200, "08.08 МТС 20:40 2в"))

	got, err := st.FindJobByText(ctx, 100, "08.08 МТС 20:40 2в")
	if err != nil || got == nil || got.ID != "rem-1" {
		t.Fatalf("FindJobByText = %v, %v", got, err)
	}
	got, err = st.FindJobByText(ctx, 100, "09.08 МТС 20:40 2в")
	if err != nil || got != nil {
		t.Fatalf("different text must miss, got %v", got)
	}
	got, err = st.FindJobByText(ctx, 300, "08.08 МТС 20:40 2в")
	if err != nil || got != nil {
		t.Fatalf("different chat must miss, got %v", got)
	}
}

func TestMemoryArchive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemory()
	j := sampleJob("rem-1", 100, "text")
	_ = st.PutJob(ctx, j)

	if err := st.ArchiveJob(ctx, j, "cancelled"); err != nil {
		t.Fatalf("ArchiveJob: %v", err)
	}
	if got, _ := st.GetJob(ctx, "rem-1"); got != nil {
		t.Fatalf("archived job still active")
	}

	page, err := st.ListArchive(ctx, 10, 0)
	if err != nil || len(page) != 1 {
		t.Fatalf("ListArchive = %v, %v", page, err)
	}
	if page[0].Reason != "cancelled" || page[0].Job.ID != "rem-1" {
		t.Fatalf("archive entry mismatch: %+v", page[0])
	}

	n, err := st.PruneArchive(ctx, time.Now().Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("PruneArchive = %d, %v", n, err)
	}
	page, _ = st.ListArchive(ctx, 10, 0)
	if len(page) != 0 {
		t.Fatalf("archive not pruned")
	}
}

func TestMemoryChatSettingsAndRegistry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemory()

	if cs, err := st.GetChatSettings(ctx, 1); err != nil || cs != nil {
		t.Fatalf("unset settings must be (nil, nil)")
	}
	_ = st.PutChatSettings(ctx, ChatSettings{ChatID: 1, Timezone: "Europe/Moscow", LeadOffsetMinutes: 45})
	cs, err := st.GetChatSettings(ctx, 1)
	if err != nil || cs == nil || cs.LeadOffsetMinutes != 45 {
		t.Fatalf("GetChatSettings = %+v, %v", cs, err)
	}

	_ = st.PutChat(ctx, RegisteredChat{ChatID: 1, Title: "Team", TopicID: 0})
	_ = st.PutChat(ctx, RegisteredChat{ChatID: 1, Title: "Team", TopicID: 5, TopicTitle: "standups"})
	chats, _ := st.ListChats(ctx)
	if len(chats) != 2 {
		t.Fatalf("ListChats = %d entries, want 2", len(chats))
	}
	_ = st.DeleteChat(ctx, 1, 5)
	chats, _ = st.ListChats(ctx)
	if len(chats) != 1 || chats[0].TopicID != 0 {
		t.Fatalf("DeleteChat left %+v", chats)
	}
}

func TestMemoryAdmins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemory()
	_ = st.AddAdmin(ctx, "alice")
	_ = st.AddAdmin(ctx, "bob")
	_ = st.AddAdmin(ctx, "alice") // duplicate is a no-op
	_ = st.AddAdmin(ctx, "  ")    // blank ignored

	admins, err := st.ListAdmins(ctx)
	if err != nil || len(admins) != 2 {
		t.Fatalf("ListAdmins = %v, %v", admins, err)
	}
	_ = st.RemoveAdmin(ctx, "alice")
	admins, _ = st.ListAdmins(ctx)
	if len(admins) != 1 || admins[0] != "bob" {
		t.Fatalf("RemoveAdmin left %v", admins)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Parallel()

	st, err := Open(Config{Driver: "memory"}, logx.Nop())
	if err != nil || st == nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver must error")
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatalf("sqlite without path must error")
	}
}
