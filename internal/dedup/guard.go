// Package dedup suppresses near-simultaneous duplicate submissions.
//
// The guard is only a fast pre-check against double-tap races; the
// authoritative "same meeting already scheduled" check is a store
// lookup performed by the lifecycle controller.
package dedup

import "sync"

const defaultCapacity = 30

// Guard is a fixed-capacity FIFO of recent signatures. Safe for
// concurrent use.
type Guard struct {
	mu    sync.Mutex
	cap   int
	order []string
	seen  map[string]struct{}
}

// New returns a guard holding at most capacity signatures; capacity
// <= 0 selects the default of 30.
func New(capacity int) *Guard {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Guard{
		cap:  capacity,
		seen: make(map[string]struct{}, capacity),
	}
}

// ShouldSkip reports whether sig was submitted recently. A miss
// records the signature (evicting the oldest entry when full) and
// returns false; a hit leaves the guard unchanged.
func (g *Guard) ShouldSkip(sig string) bool {
	if sig == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[sig]; ok {
		return true
	}
	if len(g.order) >= g.cap {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.seen, oldest)
	}
	g.order = append(g.order, sig)
	g.seen[sig] = struct{}{}
	return false
}

// Release forgets sig early, so a corrected resubmission right after a
// cancellation is not wrongly suppressed. Unknown signatures are a
// no-op.
func (g *Guard) Release(sig string) {
	if sig == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[sig]; !ok {
		return
	}
	delete(g.seen, sig)
	for i, s := range g.order {
		if s == sig {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of currently held signatures.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.order)
}
