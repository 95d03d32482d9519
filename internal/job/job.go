// Package job defines the durable reminder record shared by the store,
// the scheduler and the lifecycle controller.
package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recurrence is the repetition policy of a reminder.
type Recurrence string

const (
	Once   Recurrence = "once"
	Daily  Recurrence = "daily"
	Weekly Recurrence = "weekly"
)

// Valid reports whether r is one of the known policies.
func (r Recurrence) Valid() bool {
	switch r {
	case Once, Daily, Weekly:
		return true
	}
	return false
}

// Period returns the advance step between occurrences, 0 for Once.
func (r Recurrence) Period() time.Duration {
	switch r {
	case Daily:
		return 24 * time.Hour
	case Weekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

// Next cycles once -> daily -> weekly -> once. Used by the recurrence
// toggle button.
func (r Recurrence) Next() Recurrence {
	switch r {
	case Once:
		return Daily
	case Daily:
		return Weekly
	default:
		return Once
	}
}

// Reminder is the central durable entity. Text is frozen at creation;
// FireAt and Recurrence are the only fields mutated afterwards, always
// under the controller's per-job lock.
type Reminder struct {
	ID           string
	TargetChatID int64
	TopicID      int
	SourceChatID int64

	Text string

	// FireAt is the absolute send instant, always UTC.
	FireAt     time.Time
	Recurrence Recurrence

	AuthorID       int64
	AuthorUsername string

	Signature string
	CreatedAt time.Time
}

// NewID allocates a process-wide unique job id. Ids are opaque and
// never reused.
func NewID() string {
	return "rem-" + uuid.NewString()
}

// Signature derives the dedup key for a meeting submission. Two
// submissions that normalize to the same canonical text for the same
// chat and the same meeting instant collide here.
func Signature(targetChatID int64, canonical string, local time.Time) string {
	return fmt.Sprintf("%d|%s|%d", targetChatID, canonical, local.Unix())
}
