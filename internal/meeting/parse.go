// Package meeting parses one-line meeting descriptions and resolves
// them into reminder fire instants.
//
// The accepted line shape is:
//
//	DD.MM TYPE HH:MM ROOM [TICKET]
//
// with "." in the date also accepted as "-" or "/", and ":" in the time
// also accepted as ".". TYPE and ROOM are single non-space tokens;
// TICKET is the optional remainder of the line.
package meeting

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var lineRe = regexp.MustCompile(`^\s*(\d{1,2})[.\-/](\d{1,2})\s+(\S+)\s+(\d{1,2})[:.](\d{2})\s+(\S+)(?:\s+(.+?))?\s*$`)

// Parsed is the structured form of a meeting line. Local is the
// meeting's own wall-clock instant in the owning chat's zone and is
// always after "now" at construction time (year rollover guarantees
// it). Canonical is the normalized re-rendering used both as the
// reminder body and as the dedup signature component.
type Parsed struct {
	Day, Month   int
	Type         string
	Hour, Minute int
	Room         string
	Ticket       string

	Local     time.Time
	Canonical string
}

// Parse turns a meeting line into its structured form. It is a pure
// function of text, loc and now; any input that fails the grammar or
// does not form a real calendar date yields ok=false, never an error.
func Parse(text string, loc *time.Location, now time.Time) (Parsed, bool) {
	m := lineRe.FindStringSubmatch(text)
	if m == nil {
		return Parsed{}, false
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	if day < 1 || month < 1 || month > 12 || hour > 23 || minute > 59 {
		return Parsed{}, false
	}

	nowLocal := now.In(loc)
	local, ok := buildLocal(nowLocal.Year(), month, day, hour, minute, loc)
	if !ok {
		// 29.02 of a non-leap current year can still be a valid
		// next-year date.
		local, ok = buildLocal(nowLocal.Year()+1, month, day, hour, minute, loc)
		if !ok {
			return Parsed{}, false
		}
	}
	if !local.After(nowLocal) {
		local, ok = buildLocal(local.Year()+1, month, day, hour, minute, loc)
		if !ok || !local.After(nowLocal) {
			return Parsed{}, false
		}
	}

	p := Parsed{
		Day: day, Month: month,
		Type: m[3],
		Hour: hour, Minute: minute,
		Room:   m[6],
		Ticket: strings.TrimSpace(m[7]),
		Local:  local,
	}
	p.Canonical = canonical(p)
	return p, true
}

// buildLocal constructs the wall-clock instant and rejects dates that
// time.Date would normalize away (e.g. 31.02 -> 03.03).
func buildLocal(year, month, day, hour, minute int, loc *time.Location) (time.Time, bool) {
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if t.Day() != day || t.Month() != time.Month(month) || t.Year() != year {
		return time.Time{}, false
	}
	return t, true
}

func canonical(p Parsed) string {
	s := fmt.Sprintf("%02d.%02d %s %02d:%02d %s", p.Day, p.Month, p.Type, p.Hour, p.Minute, p.Room)
	if p.Ticket != "" {
		s += " " + p.Ticket
	}
	return s
}
