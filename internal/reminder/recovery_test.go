package reminder

import (
	"context"
	"testing"
	"time"

	"slonyara/internal/job"
)

func TestRecoverAll(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{CatchupWindow: 5 * time.Minute})
	ctx := context.Background()
	now := time.Now().UTC()

	future := job.Reminder{ID: job.NewID(), TargetChatID: 1, Text: "future",
		FireAt: now.Add(time.Hour), Recurrence: job.Once, AuthorID: 7}
	recent := job.Reminder{ID: job.NewID(), TargetChatID: 1, Text: "recent",
		FireAt: now.Add(-2 * time.Minute), Recurrence: job.Once, AuthorID: 7}
	stale := job.Reminder{ID: job.NewID(), TargetChatID: 1, Text: "stale",
		FireAt: now.Add(-10 * time.Minute), Recurrence: job.Once, AuthorID: 7, Signature: "sig-stale"}
	for _, j := range []job.Reminder{future, recent, stale} {
		if err := r.st.PutJob(ctx, j); err != nil {
			t.Fatalf("PutJob: %v", err)
		}
	}

	stats, err := r.ctrl.RecoverAll(ctx)
	if err != nil {
		t.Fatalf("RecoverAll: %v", err)
	}
	if stats.Rearmed != 1 || stats.CaughtUp != 1 || stats.Dropped != 1 {
		t.Fatalf("stats = %+v, want 1/1/1", stats)
	}

	// The future job is re-armed, not fired.
	if !r.ctrl.core.Contains(future.ID) {
		t.Fatalf("future job not re-armed")
	}
	at, _ := r.ctrl.core.DueAt(future.ID)
	if !at.Equal(future.FireAt) {
		t.Fatalf("future due = %v, want %v", at, future.FireAt)
	}

	// The recently overdue job fires through the normal path.
	r.tx.waitSend(t)
	time.Sleep(200 * time.Millisecond)
	if n := r.tx.countText("recent"); n != 1 {
		t.Fatalf("recent delivered %d times, want 1", n)
	}
	if stored, _ := r.st.GetJob(ctx, recent.ID); stored != nil {
		t.Fatalf("caught-up once job must settle")
	}

	// The stale job is archived without a send.
	if n := r.tx.countText("stale"); n != 0 {
		t.Fatalf("stale job was delivered")
	}
	if stored, _ := r.st.GetJob(ctx, stale.ID); stored != nil {
		t.Fatalf("stale job still active")
	}
	page, _ := r.st.ListArchive(ctx, 10, 0)
	staleArchived := false
	for _, a := range page {
		if a.Job.ID == stale.ID && a.Reason == "stale" {
			staleArchived = true
		}
	}
	if !staleArchived {
		t.Fatalf("stale job not archived with reason stale: %+v", page)
	}
}

func TestRecoverCatchupRecurringAdvances(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{CatchupWindow: 5 * time.Minute})
	ctx := context.Background()
	due := time.Now().UTC().Add(-time.Minute)

	j := job.Reminder{ID: job.NewID(), TargetChatID: 1, Text: "daily-catchup",
		FireAt: due, Recurrence: job.Daily, AuthorID: 7}
	if err := r.st.PutJob(ctx, j); err != nil {
		t.Fatalf("PutJob: %v", err)
	}

	if _, err := r.ctrl.RecoverAll(ctx); err != nil {
		t.Fatalf("RecoverAll: %v", err)
	}
	r.tx.waitSend(t)
	time.Sleep(200 * time.Millisecond)

	// Catch-up goes through the same fire handler, so the recurrence
	// advances from the original due time.
	stored, _ := r.st.GetJob(ctx, j.ID)
	if stored == nil {
		t.Fatalf("recurring job removed by catch-up")
	}
	want := due.Add(24 * time.Hour)
	if !stored.FireAt.Equal(want) {
		t.Fatalf("next fire = %v, want %v", stored.FireAt, want)
	}
	if !r.ctrl.core.Contains(j.ID) {
		t.Fatalf("recurring job not re-armed after catch-up")
	}
}

func TestRecoverEmptyStore(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{})
	stats, err := r.ctrl.RecoverAll(context.Background())
	if err != nil {
		t.Fatalf("RecoverAll: %v", err)
	}
	if stats != (RecoveryStats{}) {
		t.Fatalf("stats = %+v, want zero", stats)
	}
	if r.ctrl.core.Len() != 0 {
		t.Fatalf("timers armed from an empty store")
	}
}

func TestLockArena(t *testing.T) {
	t.Parallel()

	a := newLockArena()
	unlock := a.lock("j1")
	if a.size() != 1 {
		t.Fatalf("size = %d, want 1", a.size())
	}

	acquired := make(chan struct{})
	go func() {
		u := a.lock("j1")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired while first still holds")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second holder never acquired")
	}

	// Entries vanish when the last holder releases.
	deadline := time.Now().Add(time.Second)
	for a.size() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("arena not drained: %d", a.size())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
