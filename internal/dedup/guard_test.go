package dedup

import (
	"fmt"
	"sync"
	"testing"
)

func TestGuardSkipAndRelease(t *testing.T) {
	t.Parallel()

	g := New(4)
	if g.ShouldSkip("a") {
		t.Fatalf("first submission must not be skipped")
	}
	if !g.ShouldSkip("a") {
		t.Fatalf("second submission must be skipped")
	}

	g.Release("a")
	if g.ShouldSkip("a") {
		t.Fatalf("released signature must be accepted again")
	}

	// Releasing an unknown signature is a no-op.
	g.Release("never-seen")
	if got := g.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
}

func TestGuardEviction(t *testing.T) {
	t.Parallel()

	g := New(3)
	for i := 0; i < 3; i++ {
		g.ShouldSkip(fmt.Sprintf("sig-%d", i))
	}
	// Fourth insert evicts the oldest.
	g.ShouldSkip("sig-3")
	if g.Len() != 3 {
		t.Fatalf("Len = %d, want 3", g.Len())
	}
	if g.ShouldSkip("sig-0") {
		t.Fatalf("evicted signature must be accepted again")
	}
	if !g.ShouldSkip("sig-3") {
		t.Fatalf("recent signature must still be suppressed")
	}
}

func TestGuardEmptySignature(t *testing.T) {
	t.Parallel()

	g := New(2)
	if g.ShouldSkip("") || g.ShouldSkip("") {
		t.Fatalf("empty signature must never be suppressed")
	}
	if g.Len() != 0 {
		t.Fatalf("empty signature must not be recorded")
	}
}

func TestGuardConcurrent(t *testing.T) {
	t.Parallel()

	g := New(64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sig := fmt.Sprintf("sig-%d-%d", n, j%10)
				g.ShouldSkip(sig)
				if j%3 == 0 {
					g.Release(sig)
				}
			}
		}(i)
	}
	wg.Wait()
	if g.Len() > 64 {
		t.Fatalf("guard exceeded capacity: %d", g.Len())
	}
}
