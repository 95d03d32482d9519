// Package schedule owns the mapping from job ids to concrete future
// firings. It is deliberately generic: what happens on fire belongs to
// the caller's callback, not to this package.
package schedule

import (
	"sync"
	"time"

	logx "slonyara/pkg/logx"
)

// FireFunc is invoked exactly once when a scheduled entry comes due.
// It runs on the timer goroutine; slow work (sending messages) must be
// handed off so other due timers are not delayed.
type FireFunc func(jobID string)

// Core maps job ids to one-shot timers.
//
// Every mutation of an id bumps a per-id version counter; a timer
// callback that wakes up with a stale version aborts. That makes
// replace and cancel atomic with respect to firing: the old and the
// new timer for one id can never both fire.
type Core struct {
	log logx.Logger
	now func() time.Time

	mu      sync.Mutex
	timers  map[string]*time.Timer
	due     map[string]time.Time
	fns     map[string]FireFunc
	ver     map[string]uint64 // monotonic per id, survives removal
	stopped bool
}

func New(log logx.Logger) *Core {
	return &Core{
		log:    log.With(logx.String("svc", "schedule")),
		now:    time.Now,
		timers: make(map[string]*time.Timer),
		due:    make(map[string]time.Time),
		fns:    make(map[string]FireFunc),
		ver:    make(map[string]uint64),
	}
}

// Schedule arms (or re-arms) a timer for jobID. An existing entry for
// the same id is replaced; its timer never fires. A due instant in the
// past fires as soon as possible.
func (c *Core) Schedule(jobID string, at time.Time, fn FireFunc) {
	if jobID == "" || fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.armLocked(jobID, at, fn)
}

// Reschedule moves an existing entry to a new due instant, keeping its
// callback. Returns false when jobID has no live entry.
func (c *Core) Reschedule(jobID string, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	fn, ok := c.fns[jobID]
	if !ok {
		return false
	}
	c.armLocked(jobID, at, fn)
	return true
}

func (c *Core) armLocked(jobID string, at time.Time, fn FireFunc) {
	if t, ok := c.timers[jobID]; ok {
		t.Stop()
	}
	c.ver[jobID]++
	v := c.ver[jobID]
	c.due[jobID] = at
	c.fns[jobID] = fn

	delay := at.Sub(c.now())
	if delay < 0 {
		delay = 0
	}
	c.timers[jobID] = time.AfterFunc(delay, func() { c.fire(jobID, v) })
	c.log.Trace("armed", logx.String("job_id", jobID), logx.Time("due", at))
}

func (c *Core) fire(jobID string, v uint64) {
	c.mu.Lock()
	if c.stopped || c.ver[jobID] != v {
		c.mu.Unlock()
		return
	}
	fn := c.fns[jobID]
	c.ver[jobID]++ // invalidate any other in-flight copy
	delete(c.timers, jobID)
	delete(c.due, jobID)
	delete(c.fns, jobID)
	c.mu.Unlock()

	if fn != nil {
		c.log.Trace("fired", logx.String("job_id", jobID))
		fn(jobID)
	}
}

// Cancel removes a live entry. It is idempotent; cancelling an absent
// id returns false with no side effects.
func (c *Core) Cancel(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.timers[jobID]
	if !ok {
		return false
	}
	t.Stop()
	c.ver[jobID]++
	delete(c.timers, jobID)
	delete(c.due, jobID)
	delete(c.fns, jobID)
	c.log.Trace("cancelled", logx.String("job_id", jobID))
	return true
}

// CancelAll drops every live entry.
func (c *Core) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		c.ver[id]++
	}
	c.timers = make(map[string]*time.Timer)
	c.due = make(map[string]time.Time)
	c.fns = make(map[string]FireFunc)
}

// Stop cancels everything and refuses further scheduling. Used on
// shutdown so late timer wakeups become no-ops.
func (c *Core) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for id, t := range c.timers {
		t.Stop()
		c.ver[id]++
	}
	c.timers = make(map[string]*time.Timer)
	c.due = make(map[string]time.Time)
	c.fns = make(map[string]FireFunc)
}

// Contains reports whether jobID has a live entry.
func (c *Core) Contains(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.timers[jobID]
	return ok
}

// DueAt returns the due instant of a live entry.
func (c *Core) DueAt(jobID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.due[jobID]
	return at, ok
}

// Len returns the number of live entries.
func (c *Core) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
