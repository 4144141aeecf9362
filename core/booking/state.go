package booking

import (
	"github.com/Zhannyhong/cdc-bot/core/logger"
)

// CategoryState holds the calendar view of a single category. All sets are
// rebuilt from a fresh scrape at the start of each cycle except CachedEarlier,
// which survives resets: it is the engine's only memory of what the user has
// already been told about.
type CategoryState struct {
	LessonName string

	Available SessionSet
	Reserved  SessionSet
	Booked    SessionSet
	// Earlier is the subset of Available strictly before the earliest booked
	// day, or all of Available when nothing is booked yet.
	Earlier       SessionSet
	CachedEarlier SessionSet

	// DaysInView lists the day labels currently visible in the portal grid.
	DaysInView []string
	// WebElements maps "day : time" keys to opaque element handles passed
	// back to the portal when claiming or releasing. The engine never
	// interprets the handle.
	WebElements map[string]string

	CanBookNext     bool
	HasAutoReserved bool
}

func newCategoryState() *CategoryState {
	return &CategoryState{
		Available:     make(SessionSet),
		Reserved:      make(SessionSet),
		Booked:        make(SessionSet),
		Earlier:       make(SessionSet),
		CachedEarlier: make(SessionSet),
		WebElements:   make(map[string]string),
		CanBookNext:   true,
	}
}

// Reset clears every set and flag except CachedEarlier.
func (s *CategoryState) Reset() {
	s.LessonName = ""
	s.Available = make(SessionSet)
	s.Reserved = make(SessionSet)
	s.Booked = make(SessionSet)
	s.Earlier = make(SessionSet)
	s.DaysInView = nil
	s.WebElements = make(map[string]string)
	s.CanBookNext = true
	s.HasAutoReserved = false
}

// DayInView reports whether the day label is part of the visible grid.
func (s *CategoryState) DayInView(day string) bool {
	for _, have := range s.DaysInView {
		if have == day {
			return true
		}
	}
	return false
}

// Grid owns the per-category state for all configured categories. Updates
// addressed to a category outside the configured set are logged and dropped.
type Grid struct {
	states map[Category]*CategoryState
	order  []Category
	log    logger.Logger
}

// NewGrid creates a grid for the given categories, preserving their order for
// iteration. A nil logger falls back to NopLogger.
func NewGrid(cats []Category, log logger.Logger) *Grid {
	if log == nil {
		log = logger.NopLogger{}
	}
	g := &Grid{states: make(map[Category]*CategoryState, len(cats)), log: log}
	for _, c := range cats {
		if _, dup := g.states[c]; dup {
			continue
		}
		g.states[c] = newCategoryState()
		g.order = append(g.order, c)
	}
	return g
}

// Categories returns the configured categories in processing order.
func (g *Grid) Categories() []Category { return append([]Category(nil), g.order...) }

// State returns the state of a configured category.
func (g *Grid) State(cat Category) (*CategoryState, bool) {
	st, ok := g.states[cat]
	return st, ok
}

// SetScrape replaces the scraped view of a category. Unknown categories are a
// logged no-op.
func (g *Grid) SetScrape(cat Category, available, reserved, booked SessionSet, elements map[string]string, daysInView []string) {
	st, ok := g.states[cat]
	if !ok {
		g.log.Warnf("dropping scrape update for unconfigured category %s", cat)
		return
	}
	if available == nil {
		available = make(SessionSet)
	}
	if reserved == nil {
		reserved = make(SessionSet)
	}
	if booked == nil {
		booked = make(SessionSet)
	}
	if elements == nil {
		elements = make(map[string]string)
	}
	st.Available = available
	st.Reserved = reserved
	st.Booked = booked
	st.WebElements = elements
	st.DaysInView = daysInView
}

// ResetAll clears every configured category, retaining cached earlier sets.
func (g *Grid) ResetAll() {
	for _, st := range g.states {
		st.Reset()
	}
}

// UpdateEarlier recomputes the Earlier set of a category from its current
// Available and Booked sets. A day qualifies when it falls strictly before
// the earliest booked day, or on it when the same-day policy is enabled.
// With nothing booked, all of Available qualifies.
func (g *Grid) UpdateEarlier(cat Category, sameDay bool) {
	st, ok := g.states[cat]
	if !ok {
		g.log.Warnf("dropping earlier update for unconfigured category %s", cat)
		return
	}
	st.Earlier = ComputeEarlier(st.Available, st.Booked, sameDay)
}

// ComputeEarlier derives the earlier-session subset of available given the
// booked set. Exposed for the reconciler's finalization step.
func ComputeEarlier(available, booked SessionSet, sameDay bool) SessionSet {
	if len(booked) == 0 {
		return available.Clone()
	}
	_, cutoff, ok := booked.EarliestDay()
	if !ok {
		return available.Clone()
	}
	earlier := make(SessionSet)
	for day, slots := range available {
		at, err := ParseDay(day)
		if err != nil {
			continue
		}
		if at.Before(cutoff) || (sameDay && at.Equal(cutoff)) {
			earlier[day] = append([]string(nil), slots...)
		}
	}
	return earlier
}
