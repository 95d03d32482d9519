package reminder

import "sync"

// lockArena hands out one mutex per job id. Entries are refcounted and
// disappear when the last holder releases, so the arena stays small no
// matter how many ids pass through.
type lockArena struct {
	mu    sync.Mutex
	locks map[string]*arenaEntry
}

type arenaEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockArena() *lockArena {
	return &lockArena{locks: make(map[string]*arenaEntry)}
}

// lock blocks until the per-id mutex is held and returns the unlock
// function. Every read-modify-write of a job runs inside such a pair.
func (a *lockArena) lock(id string) func() {
	a.mu.Lock()
	e := a.locks[id]
	if e == nil {
		e = &arenaEntry{}
		a.locks[id] = e
	}
	e.refs++
	a.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		a.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(a.locks, id)
		}
		a.mu.Unlock()
	}
}

// size returns the number of ids currently contended; test helper.
func (a *lockArena) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}
