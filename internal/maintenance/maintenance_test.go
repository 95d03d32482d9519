package maintenance

import (
	"context"
	"testing"
	"time"

	"slonyara/internal/job"
	"slonyara/internal/storage"
	logx "slonyara/pkg/logx"
)

func TestRunOncePrunesOldRows(t *testing.T) {
	t.Parallel()

	st := storage.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	old := job.Reminder{ID: "rem-old", TargetChatID: 1, Text: "old", FireAt: now.AddDate(0, 0, -120)}
	fresh := job.Reminder{ID: "rem-new", TargetChatID: 1, Text: "new", FireAt: now.Add(-time.Hour)}
	if err := st.PutJob(ctx, old); err != nil {
		t.Fatalf("PutJob: %v", err)
	}
	if err := st.PutJob(ctx, fresh); err != nil {
		t.Fatalf("PutJob: %v", err)
	}
	if err := st.ArchiveJob(ctx, old, "fired"); err != nil {
		t.Fatalf("ArchiveJob: %v", err)
	}
	if err := st.ArchiveJob(ctx, fresh, "fired"); err != nil {
		t.Fatalf("ArchiveJob: %v", err)
	}

	s := New(Config{ArchiveRetentionDays: 90, AuditRetentionDays: 365}, st, logx.Nop())
	s.now = func() time.Time { return now }

	page, err := st.ListArchive(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListArchive: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("archived = %d, want 2", len(page))
	}

	// Both rows were archived just now, so nothing should be pruned.
	s.RunOnce(ctx)
	page, _ = st.ListArchive(ctx, 10, 0)
	if len(page) != 2 {
		t.Fatalf("fresh rows pruned: %d left", len(page))
	}

	// Move the clock past the retention window; now everything goes.
	s.now = func() time.Time { return now.AddDate(0, 0, 91) }
	s.RunOnce(ctx)
	page, _ = st.ListArchive(ctx, 10, 0)
	if len(page) != 0 {
		t.Fatalf("rows survived retention: %d", len(page))
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	s := New(Config{Schedule: "not a cron spec"}, storage.NewMemory(), logx.Nop())
	if err := s.Start(); err == nil {
		t.Fatalf("bad schedule accepted")
	}
}

func TestStartAndStop(t *testing.T) {
	t.Parallel()

	s := New(Config{}, storage.NewMemory(), logx.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
