package reminder

import (
	"time"

	"slonyara/internal/job"
)

// OutcomeKind classifies the result of a create request. Expected
// failures (bad format, duplicates) are outcomes, not errors.
type OutcomeKind int

const (
	// OutcomeFormatError: the text does not parse as a meeting line.
	OutcomeFormatError OutcomeKind = iota
	// OutcomeDuplicate: an active job with the same canonical text
	// already exists in the target chat.
	OutcomeDuplicate
	// OutcomeDedupSkipped: suppressed as a rapid double-submit; the
	// caller stays silent.
	OutcomeDedupSkipped
	// OutcomeSentImmediately: the computed fire time was already due,
	// the reminder was sent right away and nothing was persisted.
	OutcomeSentImmediately
	// OutcomeScheduled: a job was persisted and armed.
	OutcomeScheduled
)

// Outcome is the value returned by Create.
type Outcome struct {
	Kind OutcomeKind

	// Job is set for OutcomeScheduled.
	Job *job.Reminder
	// Existing is set for OutcomeDuplicate.
	Existing *job.Reminder
	// FireAt is set for OutcomeScheduled.
	FireAt time.Time
	// SendErr carries a transport failure on the immediate-send path;
	// the outcome is still OutcomeSentImmediately.
	SendErr error
}
