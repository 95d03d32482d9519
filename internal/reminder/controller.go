// Package reminder is the job lifecycle controller: it orchestrates
// creation (parse, resolve, dedup, persist, schedule), firing (send,
// then advance or archive) and the mutation operations, all under a
// per-job lock so a cancel racing a fire can never double-send or leave
// the store and the timer map diverged.
package reminder

import (
	"context"
	"errors"
	"time"

	"slonyara/internal/audit"
	"slonyara/internal/dedup"
	"slonyara/internal/job"
	"slonyara/internal/meeting"
	"slonyara/internal/schedule"
	"slonyara/internal/storage"
	kit "slonyara/internal/transport"
	logx "slonyara/pkg/logx"
)

var ErrUnauthorized = errors.New("not allowed")

// Directory is the slice of the chat/admin directory the controller
// needs.
type Directory interface {
	TimeZone(ctx context.Context, chatID int64) *time.Location
	LeadOffset(ctx context.Context, chatID int64) int
	IsAdmin(userID int64, username string) bool
}

// Transport is the outbound delivery surface. Enqueue is used from
// fire handlers (must not block timers); Send is the synchronous path
// for user-initiated immediate sends.
type Transport interface {
	Enqueue(to kit.ChatTarget, text string)
	Send(ctx context.Context, to kit.ChatTarget, text string) error
}

// Actor identifies who asked for a mutation.
type Actor struct {
	ID       int64
	Username string
}

// Config tunes the controller.
type Config struct {
	// CatchupWindow bounds how long after its due time a persisted job
	// is still fired on recovery. Default 5m.
	CatchupWindow time.Duration
	// MinDelay and FloorDelay implement the clock-skew clamp: a
	// computed delay below MinDelay is raised to FloorDelay. Defaults
	// 2s and 5s.
	MinDelay   time.Duration
	FloorDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.CatchupWindow <= 0 {
		c.CatchupWindow = 5 * time.Minute
	}
	if c.MinDelay <= 0 {
		c.MinDelay = 2 * time.Second
	}
	if c.FloorDelay <= 0 {
		c.FloorDelay = 5 * time.Second
	}
	return c
}

type Controller struct {
	log   logx.Logger
	cfg   Config
	st    storage.Store
	core  *schedule.Core
	guard *dedup.Guard
	dir   Directory
	tx    Transport
	sink  audit.Sink
	locks *lockArena

	now func() time.Time
}

func New(cfg Config, st storage.Store, core *schedule.Core, guard *dedup.Guard,
	dir Directory, tx Transport, sink audit.Sink, log logx.Logger) *Controller {
	if sink == nil {
		sink = audit.Nop()
	}
	return &Controller{
		log:   log.With(logx.String("svc", "reminder")),
		cfg:   cfg.withDefaults(),
		st:    st,
		core:  core,
		guard: guard,
		dir:   dir,
		tx:    tx,
		sink:  sink,
		locks: newLockArena(),
		now:   time.Now,
	}
}

// CreateRequest is one submitted meeting line.
type CreateRequest struct {
	Text           string
	SourceChatID   int64
	TargetChatID   int64
	TopicID        int
	AuthorID       int64
	AuthorUsername string
}

// Create runs the full creation pipeline. Expected rejections come
// back as outcomes; only store failures surface as errors.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (Outcome, error) {
	loc := c.dir.TimeZone(ctx, req.TargetChatID)
	offset := c.dir.LeadOffset(ctx, req.TargetChatID)
	now := c.now()

	p, ok := meeting.Parse(req.Text, loc, now)
	if !ok {
		return Outcome{Kind: OutcomeFormatError}, nil
	}
	fireAt := meeting.FireAt(p, offset)
	sig := job.Signature(req.TargetChatID, p.Canonical, p.Local)

	// Double-tap suppression comes before the durable duplicate check:
	// a rapid resubmit of the very same line is swallowed silently
	// instead of being reported as a duplicate.
	if fireAt.After(now) && c.guard.ShouldSkip(sig) {
		c.sink.Emit(ctx, audit.Record{
			Event: audit.EventDedupSkipped, ChatID: req.TargetChatID,
			TopicID: req.TopicID, ActorID: req.AuthorID,
			ActorUsername: req.AuthorUsername, Text: p.Canonical, When: fireAt,
		})
		return Outcome{Kind: OutcomeDedupSkipped}, nil
	}

	existing, err := c.st.FindJobByText(ctx, req.TargetChatID, p.Canonical)
	if err != nil {
		c.guard.Release(sig)
		return Outcome{}, err
	}
	if existing != nil {
		// The guard entry recorded just above belongs to no new job;
		// the live one is protected by this store check.
		c.guard.Release(sig)
		return Outcome{Kind: OutcomeDuplicate, Existing: existing}, nil
	}

	to := kit.ChatTarget{ChatID: req.TargetChatID, ThreadID: req.TopicID}

	if !fireAt.After(now) {
		// Already due: best-effort direct send, nothing persisted.
		sendErr := c.tx.Send(ctx, to, p.Canonical)
		c.guard.Release(sig)
		c.sink.Emit(ctx, audit.Record{
			Event: audit.EventSentImmediately, ChatID: req.TargetChatID,
			TopicID: req.TopicID, ActorID: req.AuthorID,
			ActorUsername: req.AuthorUsername, Text: p.Canonical, When: now,
		})
		return Outcome{Kind: OutcomeSentImmediately, FireAt: now, SendErr: sendErr}, nil
	}

	if fireAt.Sub(now) < c.cfg.MinDelay {
		// Too close to now to schedule reliably; push it out a little.
		fireAt = now.Add(c.cfg.FloorDelay)
	}

	j := job.Reminder{
		ID:             job.NewID(),
		TargetChatID:   req.TargetChatID,
		TopicID:        req.TopicID,
		SourceChatID:   req.SourceChatID,
		Text:           p.Canonical,
		FireAt:         fireAt.UTC(),
		Recurrence:     job.Once,
		AuthorID:       req.AuthorID,
		AuthorUsername: req.AuthorUsername,
		Signature:      sig,
		CreatedAt:      now.UTC(),
	}
	if err := c.st.PutJob(ctx, j); err != nil {
		c.guard.Release(sig)
		return Outcome{}, err
	}
	c.core.Schedule(j.ID, j.FireAt, c.fire)
	c.sink.Emit(ctx, audit.Record{
		Event: audit.EventScheduled, JobID: j.ID, ChatID: j.TargetChatID,
		TopicID: j.TopicID, ActorID: j.AuthorID, ActorUsername: j.AuthorUsername,
		Text: j.Text, When: j.FireAt,
	})
	c.log.Info("reminder scheduled",
		logx.String("job_id", j.ID),
		logx.Int64("chat_id", j.TargetChatID),
		logx.Time("fire_at", j.FireAt))
	return Outcome{Kind: OutcomeScheduled, Job: &j, FireAt: j.FireAt}, nil
}

// fire is the scheduler callback. The job may have been cancelled
// between the timer going off and the lock being acquired; the re-read
// resolves that race in favor of the cancel.
func (c *Controller) fire(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	unlock := c.locks.lock(jobID)
	defer unlock()

	j, err := c.st.GetJob(ctx, jobID)
	if err != nil {
		c.log.Error("fire: job load failed", logx.String("job_id", jobID), logx.Err(err))
		return
	}
	if j == nil {
		return
	}

	c.tx.Enqueue(kit.ChatTarget{ChatID: j.TargetChatID, ThreadID: j.TopicID}, j.Text)
	c.sink.Emit(ctx, audit.Record{
		Event: audit.EventFired, JobID: j.ID, ChatID: j.TargetChatID,
		TopicID: j.TopicID, Text: j.Text, When: j.FireAt,
	})
	c.settleLocked(ctx, j, "fired")
}

// settleLocked applies the post-send bookkeeping: once-jobs are
// archived, recurring jobs advance from their previous scheduled time
// (never from the actual send instant, so occurrences do not drift).
// Caller holds the job lock.
func (c *Controller) settleLocked(ctx context.Context, j *job.Reminder, reason string) {
	if j.Recurrence == job.Once {
		c.guard.Release(j.Signature)
		if err := c.st.ArchiveJob(ctx, *j, reason); err != nil {
			c.log.Error("archive failed", logx.String("job_id", j.ID), logx.Err(err))
		}
		return
	}

	j.FireAt = j.FireAt.Add(j.Recurrence.Period())
	if err := c.st.PutJob(ctx, *j); err != nil {
		c.log.Error("recurrence update failed", logx.String("job_id", j.ID), logx.Err(err))
	}
	if !c.core.Reschedule(j.ID, j.FireAt) {
		c.core.Schedule(j.ID, j.FireAt, c.fire)
	}
	c.sink.Emit(ctx, audit.Record{
		Event: audit.EventRescheduled, JobID: j.ID, ChatID: j.TargetChatID,
		TopicID: j.TopicID, Text: j.Text, When: j.FireAt,
		Reason: string(j.Recurrence),
	})
}

// Cancel removes a live job. Author or admin only. Returns whether the
// job existed; cancelling twice is a safe no-op.
func (c *Controller) Cancel(ctx context.Context, jobID string, by Actor) (bool, error) {
	unlock := c.locks.lock(jobID)
	defer unlock()

	j, err := c.st.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if j == nil {
		return false, nil
	}
	if !c.mayManage(j, by) {
		return false, ErrUnauthorized
	}

	c.core.Cancel(jobID)
	c.guard.Release(j.Signature)
	if err := c.st.ArchiveJob(ctx, *j, "cancelled"); err != nil {
		return false, err
	}
	c.sink.Emit(ctx, audit.Record{
		Event: audit.EventCancelled, JobID: j.ID, ChatID: j.TargetChatID,
		TopicID: j.TopicID, ActorID: by.ID, ActorUsername: by.Username,
		Text: j.Text, When: j.FireAt,
	})
	return true, nil
}

// Shift moves a job's fire time by delta. Admin only. A shift into the
// past follows the same immediate-fire rule as creation.
func (c *Controller) Shift(ctx context.Context, jobID string, delta time.Duration, by Actor) (*job.Reminder, error) {
	if !c.dir.IsAdmin(by.ID, by.Username) {
		return nil, ErrUnauthorized
	}

	unlock := c.locks.lock(jobID)
	defer unlock()

	j, err := c.st.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, nil
	}

	newAt := j.FireAt.Add(delta)
	now := c.now()
	if !newAt.After(now) {
		c.core.Cancel(jobID)
		c.tx.Enqueue(kit.ChatTarget{ChatID: j.TargetChatID, ThreadID: j.TopicID}, j.Text)
		c.sink.Emit(ctx, audit.Record{
			Event: audit.EventFired, JobID: j.ID, ChatID: j.TargetChatID,
			TopicID: j.TopicID, ActorID: by.ID, ActorUsername: by.Username,
			Text: j.Text, When: now, Reason: "shift",
		})
		c.settleLocked(ctx, j, "fired")
		return j, nil
	}

	j.FireAt = newAt
	if err := c.st.PutJob(ctx, *j); err != nil {
		return nil, err
	}
	if !c.core.Reschedule(jobID, newAt) {
		c.core.Schedule(jobID, newAt, c.fire)
	}
	c.sink.Emit(ctx, audit.Record{
		Event: audit.EventRescheduled, JobID: j.ID, ChatID: j.TargetChatID,
		TopicID: j.TopicID, ActorID: by.ID, ActorUsername: by.Username,
		Text: j.Text, When: newAt, Reason: "shift",
	})
	return j, nil
}

// SetRecurrence updates the stored recurrence only; the live timer and
// fire time are untouched. Admin only.
func (c *Controller) SetRecurrence(ctx context.Context, jobID string, r job.Recurrence, by Actor) (*job.Reminder, error) {
	if !c.dir.IsAdmin(by.ID, by.Username) {
		return nil, ErrUnauthorized
	}
	if !r.Valid() {
		return nil, errors.New("invalid recurrence: " + string(r))
	}

	unlock := c.locks.lock(jobID)
	defer unlock()

	j, err := c.st.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, nil
	}

	j.Recurrence = r
	if err := c.st.PutJob(ctx, *j); err != nil {
		return nil, err
	}
	c.sink.Emit(ctx, audit.Record{
		Event: audit.EventRescheduled, JobID: j.ID, ChatID: j.TargetChatID,
		TopicID: j.TopicID, ActorID: by.ID, ActorUsername: by.Username,
		Text: j.Text, When: j.FireAt, Reason: "recurrence:" + string(r),
	})
	return j, nil
}

// SendNow fires a job ahead of schedule. Author or admin. The usual
// once/recurring settlement applies afterwards.
func (c *Controller) SendNow(ctx context.Context, jobID string, by Actor) (bool, error) {
	unlock := c.locks.lock(jobID)
	defer unlock()

	j, err := c.st.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if j == nil {
		return false, nil
	}
	if !c.mayManage(j, by) {
		return false, ErrUnauthorized
	}

	c.core.Cancel(jobID)
	if err := c.tx.Send(ctx, kit.ChatTarget{ChatID: j.TargetChatID, ThreadID: j.TopicID}, j.Text); err != nil {
		// Delivery is uncertain but the attempt was made; proceed.
		c.log.Warn("send-now delivery failed", logx.String("job_id", j.ID), logx.Err(err))
	}
	c.sink.Emit(ctx, audit.Record{
		Event: audit.EventSentImmediately, JobID: j.ID, ChatID: j.TargetChatID,
		TopicID: j.TopicID, ActorID: by.ID, ActorUsername: by.Username,
		Text: j.Text, When: c.now(), Reason: "send_now",
	})
	c.settleLocked(ctx, j, "fired")
	return true, nil
}

// CancelChat archives every job targeting a chat/topic; used when the
// chat is unregistered. topicID < 0 matches all topics.
func (c *Controller) CancelChat(ctx context.Context, chatID int64, topicID int) (int, error) {
	jobs, err := c.st.ListChatJobs(ctx, chatID, topicID)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range jobs {
		id := jobs[i].ID
		unlock := c.locks.lock(id)
		j, err := c.st.GetJob(ctx, id)
		if err != nil || j == nil {
			unlock()
			continue
		}
		c.core.Cancel(id)
		c.guard.Release(j.Signature)
		if err := c.st.ArchiveJob(ctx, *j, "chat_unregistered"); err != nil {
			c.log.Error("archive failed", logx.String("job_id", id), logx.Err(err))
			unlock()
			continue
		}
		c.sink.Emit(ctx, audit.Record{
			Event: audit.EventCancelled, JobID: id, ChatID: j.TargetChatID,
			TopicID: j.TopicID, Text: j.Text, When: j.FireAt,
			Reason: "chat_unregistered",
		})
		n++
		unlock()
	}
	return n, nil
}

// Get loads a single live job.
func (c *Controller) Get(ctx context.Context, jobID string) (*job.Reminder, error) {
	return c.st.GetJob(ctx, jobID)
}

// List returns the live jobs for a chat (topicID < 0 for all topics),
// ordered by fire time.
func (c *Controller) List(ctx context.Context, chatID int64, topicID int) ([]job.Reminder, error) {
	return c.st.ListChatJobs(ctx, chatID, topicID)
}

// Stop cancels all live timers. Persisted jobs are untouched and come
// back through recovery on the next start.
func (c *Controller) Stop() {
	c.core.Stop()
}

func (c *Controller) mayManage(j *job.Reminder, by Actor) bool {
	if by.ID != 0 && by.ID == j.AuthorID {
		return true
	}
	return c.dir.IsAdmin(by.ID, by.Username)
}
