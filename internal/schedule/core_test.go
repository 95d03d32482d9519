package schedule

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "slonyara/pkg/logx"
)

func TestCoreFiresOnce(t *testing.T) {
	t.Parallel()

	c := New(logx.Nop())
	var fired atomic.Int32
	done := make(chan struct{})
	c.Schedule("j1", time.Now().Add(50*time.Millisecond), func(id string) {
		if id != "j1" {
			t.Errorf("callback id = %q, want j1", id)
		}
		fired.Add(1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire")
	}
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("fired %d times, want 1", got)
	}
	if c.Contains("j1") || c.Len() != 0 {
		t.Fatalf("fired entry still live")
	}
}

func TestCoreReplaceNeverFiresOld(t *testing.T) {
	t.Parallel()

	c := New(logx.Nop())
	var old, recent atomic.Int32
	done := make(chan struct{})

	c.Schedule("j1", time.Now().Add(30*time.Millisecond), func(string) { old.Add(1) })
	c.Schedule("j1", time.Now().Add(80*time.Millisecond), func(string) {
		recent.Add(1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("replacement timer did not fire")
	}
	time.Sleep(100 * time.Millisecond)
	if old.Load() != 0 {
		t.Fatalf("replaced timer fired %d times", old.Load())
	}
	if recent.Load() != 1 {
		t.Fatalf("replacement fired %d times, want 1", recent.Load())
	}
}

func TestCoreReschedule(t *testing.T) {
	t.Parallel()

	c := New(logx.Nop())
	if c.Reschedule("absent", time.Now().Add(time.Hour)) {
		t.Fatalf("reschedule of absent id must return false")
	}

	done := make(chan struct{})
	c.Schedule("j1", time.Now().Add(time.Hour), func(string) { close(done) })
	if !c.Reschedule("j1", time.Now().Add(40*time.Millisecond)) {
		t.Fatalf("reschedule of live id must return true")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("rescheduled timer did not fire")
	}

	at, ok := c.DueAt("j1")
	if ok || !at.IsZero() {
		t.Fatalf("fired entry still has due time")
	}
}

func TestCoreCancelIdempotent(t *testing.T) {
	t.Parallel()

	c := New(logx.Nop())
	var fired atomic.Int32
	c.Schedule("j1", time.Now().Add(50*time.Millisecond), func(string) { fired.Add(1) })

	if !c.Cancel("j1") {
		t.Fatalf("first cancel must report existence")
	}
	if c.Cancel("j1") {
		t.Fatalf("second cancel must be a no-op")
	}
	if c.Cancel("never-scheduled") {
		t.Fatalf("cancel of unknown id must return false")
	}

	time.Sleep(150 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("cancelled timer fired")
	}
}

func TestCoreCancelVersusFireRace(t *testing.T) {
	t.Parallel()

	c := New(logx.Nop())
	for i := 0; i < 50; i++ {
		var fired atomic.Int32
		c.Schedule("race", time.Now().Add(time.Millisecond), func(string) { fired.Add(1) })

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			c.Cancel("race")
		}()
		wg.Wait()
		time.Sleep(5 * time.Millisecond)

		// Either outcome is fine, but never both-and-never twice.
		if n := fired.Load(); n > 1 {
			t.Fatalf("iteration %d: fired %d times", i, n)
		}
		if c.Contains("race") {
			t.Fatalf("iteration %d: entry survived both cancel and fire", i)
		}
	}
}

func TestCoreStop(t *testing.T) {
	t.Parallel()

	c := New(logx.Nop())
	var fired atomic.Int32
	c.Schedule("j1", time.Now().Add(30*time.Millisecond), func(string) { fired.Add(1) })
	c.Stop()

	c.Schedule("j2", time.Now().Add(10*time.Millisecond), func(string) { fired.Add(1) })
	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("stopped core executed callbacks")
	}
	if c.Len() != 0 {
		t.Fatalf("stopped core holds entries")
	}
}

func TestCoreCancelAll(t *testing.T) {
	t.Parallel()

	c := New(logx.Nop())
	var fired atomic.Int32
	for _, id := range []string{"a", "b", "c"} {
		c.Schedule(id, time.Now().Add(50*time.Millisecond), func(string) { fired.Add(1) })
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	c.CancelAll()
	if c.Len() != 0 {
		t.Fatalf("Len = %d after CancelAll, want 0", c.Len())
	}
	time.Sleep(120 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("cancelled timers fired %d times", fired.Load())
	}
}
