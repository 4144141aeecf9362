package booking

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DayFormat is the layout of the portal's day labels, e.g. "02/Jan/2025".
// Years are always four digits; two-digit layouts are rejected.
const DayFormat = "02/Jan/2006"

// SessionSet maps a day label to the time-slot labels seen on that day,
// e.g. "02/Jan/2025" -> ["09:00 - 10:00", "11:00 - 12:00"]. Slot order
// within a day carries no meaning; comparisons are set-semantic.
type SessionSet map[string][]string

// Slot is one (day, time-slot) pair flattened out of a SessionSet together
// with its parsed start instant.
type Slot struct {
	Day   string
	Time  string
	Start time.Time
}

// Key returns the element-index key for the slot, "day : time".
func (s Slot) Key() string { return ElementKey(s.Day, s.Time) }

// ParseDay parses a portal day label.
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(DayFormat, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", day, err)
	}
	return t, nil
}

// ParseSlotStart parses the start instant of a slot label on the given day.
// Slot labels look like "09:00 - 10:00"; only the start time participates in
// ordering.
func ParseSlotStart(day, slot string) (time.Time, error) {
	start, _, _ := strings.Cut(slot, " ")
	t, err := time.Parse(DayFormat+" 15:04", day+" "+strings.TrimSpace(start))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot %q on %q: %w", slot, day, err)
	}
	return t, nil
}

// Add inserts the slot under the day, ignoring duplicates.
func (s SessionSet) Add(day, slot string) {
	for _, have := range s[day] {
		if have == slot {
			return
		}
	}
	s[day] = append(s[day], slot)
}

// Remove deletes the slot from the day, dropping the day entirely once its
// last slot is gone.
func (s SessionSet) Remove(day, slot string) {
	slots := s[day]
	for i, have := range slots {
		if have == slot {
			s[day] = append(slots[:i], slots[i+1:]...)
			break
		}
	}
	if len(s[day]) == 0 {
		delete(s, day)
	}
}

// Contains reports whether the slot is present under the day.
func (s SessionSet) Contains(day, slot string) bool {
	for _, have := range s[day] {
		if have == slot {
			return true
		}
	}
	return false
}

// Count returns the total number of slots across all days.
func (s SessionSet) Count() int {
	n := 0
	for _, slots := range s {
		n += len(slots)
	}
	return n
}

// Clone returns a deep copy of the set.
func (s SessionSet) Clone() SessionSet {
	out := make(SessionSet, len(s))
	for day, slots := range s {
		out[day] = append([]string(nil), slots...)
	}
	return out
}

// Days returns the day labels sorted chronologically. Labels that fail to
// parse sort last, in lexical order, so a malformed scrape cannot hide days.
func (s SessionSet) Days() []string {
	days := make([]string, 0, len(s))
	for day := range s {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool {
		ti, erri := ParseDay(days[i])
		tj, errj := ParseDay(days[j])
		if erri != nil || errj != nil {
			if (erri == nil) != (errj == nil) {
				return erri == nil
			}
			return days[i] < days[j]
		}
		return ti.Before(tj)
	})
	return days
}

// EarliestDay returns the chronologically first day label, or false when the
// set is empty or no label parses.
func (s SessionSet) EarliestDay() (string, time.Time, bool) {
	var (
		bestDay string
		bestAt  time.Time
		found   bool
	)
	for day := range s {
		at, err := ParseDay(day)
		if err != nil {
			continue
		}
		if !found || at.Before(bestAt) {
			bestDay, bestAt, found = day, at, true
		}
	}
	return bestDay, bestAt, found
}

// Flatten expands the set into slots sorted ascending by start instant.
// Slots whose labels do not parse are dropped; the scraper surfaces those as
// scrape errors before the engine runs.
func (s SessionSet) Flatten() []Slot {
	out := make([]Slot, 0, s.Count())
	for day, slots := range s {
		for _, slot := range slots {
			start, err := ParseSlotStart(day, slot)
			if err != nil {
				continue
			}
			out = append(out, Slot{Day: day, Time: slot, Start: start})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// ElementKey builds the web-element index key for a day and slot label.
func ElementKey(day, slot string) string { return day + " : " + slot }
