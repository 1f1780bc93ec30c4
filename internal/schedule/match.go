package schedule

import (
	"strconv"
	"strings"

	"confprog/internal/model"
)

const (
	// rangeSep separates start and end in session times and slot labels.
	rangeSep = "–"
	// openSlotPrefix marks an open-ended slot ("ab 18:00" = at or after 18:00).
	openSlotPrefix = "ab "
)

// Range is a time span in minutes after midnight. A single point has Start == End.
type Range struct {
	Start int
	End   int
}

// Slot is a parsed filter slot label.
type Slot struct {
	Range
	Open bool
}

// ParseClock parses "H:MM" or "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, bool) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, false
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 24 {
		return 0, false
	}
	mins, err := strconv.Atoi(m)
	if err != nil || mins < 0 || mins > 59 {
		return 0, false
	}
	if hours == 24 && mins > 0 {
		return 0, false
	}
	return hours*60 + mins, true
}

// ParseSessionTime parses a session time string. A single point becomes the
// zero-width range [start, start]; anything other than exactly two parts
// also falls back to the first part as a point.
func ParseSessionTime(s string) (Range, bool) {
	parts := strings.Split(s, rangeSep)
	start, ok := ParseClock(parts[0])
	if !ok {
		return Range{}, false
	}
	if len(parts) != 2 {
		return Range{Start: start, End: start}, true
	}
	end, ok := ParseClock(parts[1])
	if !ok {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}

// StartMinutes returns the parsed start of a session time, or 0 when the
// time is missing or malformed.
func StartMinutes(s string) int {
	r, ok := ParseSessionTime(s)
	if !ok {
		return 0
	}
	return r.Start
}

// ParseSlot parses a slot label: "ab HH:MM" (open-ended) or "start–end".
func ParseSlot(label string) (Slot, bool) {
	if rest, ok := strings.CutPrefix(label, openSlotPrefix); ok {
		start, ok := ParseClock(rest)
		if !ok {
			return Slot{}, false
		}
		return Slot{Range: Range{Start: start, End: start}, Open: true}, true
	}

	parts := strings.Split(label, rangeSep)
	if len(parts) != 2 {
		return Slot{}, false
	}
	start, ok := ParseClock(parts[0])
	if !ok {
		return Slot{}, false
	}
	end, ok := ParseClock(parts[1])
	if !ok {
		return Slot{}, false
	}
	return Slot{Range: Range{Start: start, End: end}}, true
}

// Matcher decides whether a session falls into a selected slot.
type Matcher struct {
	exactDays map[string]struct{}
}

// NewMatcher returns a Matcher that applies exact matching on the given dates
// and overlap matching everywhere else.
func NewMatcher(exactMatchDays []string) *Matcher {
	m := &Matcher{exactDays: make(map[string]struct{}, len(exactMatchDays))}
	for _, d := range exactMatchDays {
		m.exactDays[d] = struct{}{}
	}
	return m
}

// IsExactDay reports whether closed slots on dayDate require exact equality.
func (m *Matcher) IsExactDay(dayDate string) bool {
	_, ok := m.exactDays[dayDate]
	return ok
}

// Matches reports whether session s on dayDate falls into slot.
//
//   - empty slot: always true
//   - open slot: session start >= slot start
//   - closed slot on an exact day: start and end equal the slot's
//   - closed slot otherwise: half-open overlap
//
// Malformed slots or session times never match.
func (m *Matcher) Matches(s model.Session, slot, dayDate string) bool {
	if slot == "" {
		return true
	}
	sl, ok := ParseSlot(slot)
	if !ok {
		return false
	}
	r, ok := ParseSessionTime(s.Time)
	if !ok {
		return false
	}

	if sl.Open {
		return r.Start >= sl.Start
	}
	if dayDate != "" && m.IsExactDay(dayDate) {
		return r.Start == sl.Start && r.End == sl.End
	}
	return r.Start < sl.End && r.End > sl.Start
}
