package reminder

import (
	"context"
	"time"

	"slonyara/internal/audit"
	logx "slonyara/pkg/logx"
)

// RecoveryStats summarizes one RecoverAll pass.
type RecoveryStats struct {
	Rearmed  int // future jobs re-armed
	CaughtUp int // due-while-offline jobs fired through the normal path
	Dropped  int // stale jobs archived without sending
}

// RecoverAll reconciles persisted jobs against wall-clock time after a
// restart. It must run before any user input is accepted: it is the
// sole writer during this phase.
//
//   - fire time in the future: re-arm
//   - overdue within the catch-up window: fire as soon as possible,
//     through the normal fire handler (recurrence advances as usual)
//   - older than the window: archive as stale, never send
func (c *Controller) RecoverAll(ctx context.Context) (RecoveryStats, error) {
	jobs, err := c.st.ListJobs(ctx)
	if err != nil {
		return RecoveryStats{}, err
	}

	var stats RecoveryStats
	now := c.now()
	for i := range jobs {
		j := jobs[i]
		delay := j.FireAt.Sub(now)
		switch {
		case delay > 0:
			c.core.Schedule(j.ID, j.FireAt, c.fire)
			stats.Rearmed++

		case delay >= -c.cfg.CatchupWindow:
			c.core.Schedule(j.ID, now, c.fire)
			stats.CaughtUp++

		default:
			if err := c.st.ArchiveJob(ctx, j, "stale"); err != nil {
				c.log.Error("stale archive failed", logx.String("job_id", j.ID), logx.Err(err))
				continue
			}
			c.guard.Release(j.Signature)
			c.sink.Emit(ctx, audit.Record{
				Event: audit.EventDropped, JobID: j.ID, ChatID: j.TargetChatID,
				TopicID: j.TopicID, Text: j.Text, When: j.FireAt, Reason: "stale",
			})
			stats.Dropped++
		}
	}

	c.log.Info("recovery complete",
		logx.Int("rearmed", stats.Rearmed),
		logx.Int("caught_up", stats.CaughtUp),
		logx.Int("dropped", stats.Dropped),
		logx.Duration("catchup_window", c.cfg.CatchupWindow))
	return stats, nil
}

// SetClock overrides the controller's time source; test helper.
func (c *Controller) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}
