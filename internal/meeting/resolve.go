package meeting

import "time"

// FireAt computes the reminder's absolute send instant: the meeting's
// local wall-clock time minus the chat's lead offset, in UTC. A result
// at or before "now" is a valid outcome and means "send immediately";
// routing that case is the caller's job.
func FireAt(p Parsed, leadOffsetMinutes int) time.Time {
	if leadOffsetMinutes < 0 {
		leadOffsetMinutes = 0
	}
	return p.Local.Add(-time.Duration(leadOffsetMinutes) * time.Minute).UTC()
}
