package notify

import (
	"sort"
	"strings"

	"github.com/Zhannyhong/cdc-bot/core/booking"
)

// Report is the structured post-reconciliation summary of one category.
type Report struct {
	Category booking.Category
	Booked   booking.SessionSet
	Reserved booking.SessionSet
	Earlier  booking.SessionSet
	// HasOutstandingReservations is set when any reserved slot exists at
	// finalization. Outstanding reservations are forfeited unless the user
	// confirms them on the portal.
	HasOutstandingReservations bool
}

// Compose builds a category report from its finalized state.
func Compose(cat booking.Category, st *booking.CategoryState) Report {
	return Report{
		Category:                   cat,
		Booked:                     st.Booked.Clone(),
		Reserved:                   st.Reserved.Clone(),
		Earlier:                    st.Earlier.Clone(),
		HasOutstandingReservations: st.Reserved.Count() > 0,
	}
}

// Render formats the report in the digest's plain-text layout.
func (r Report) Render() string {
	var b strings.Builder

	b.WriteString("\n=======================\n")
	b.WriteString(strings.ToUpper(r.Category.String()) + " UPDATE\n")
	b.WriteString("=======================\n\n")

	b.WriteString("--------------------------\n")
	b.WriteString("Booked sessions:\n")
	writeSessions(&b, r.Booked)
	b.WriteString("--------------------------\n")

	b.WriteString("--------------------------\n")
	b.WriteString("Reserved sessions:\n")
	writeSessions(&b, r.Reserved)
	b.WriteString("--------------------------\n\n")

	b.WriteString("Available sessions:\n")
	for _, day := range r.Earlier.Days() {
		b.WriteString(day + ":\n")
		for _, slot := range r.Earlier[day] {
			b.WriteString("  -> " + slot + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	return b.String()
}

func writeSessions(b *strings.Builder, set booking.SessionSet) {
	for _, day := range set.Days() {
		b.WriteString(day + ":\n")
		for _, slot := range set[day] {
			b.WriteString("  -> " + slot + "\n")
		}
	}
}

// OtherTeamsReport renders slots discovered on other teams' calendars. These
// are informational only and never merged into a category's own view.
func OtherTeamsReport(teams map[string]booking.SessionSet) string {
	if len(teams) == 0 {
		return ""
	}
	names := make([]string, 0, len(teams))
	for name := range teams {
		names = append(names, name)
	}
	// Stable output regardless of map order.
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString("=======================\n")
		b.WriteString(name + " has slots:\n\n")
		for _, day := range teams[name].Days() {
			b.WriteString(day + ":\n")
			for _, slot := range teams[name][day] {
				b.WriteString("  -> " + slot + "\n")
			}
		}
		b.WriteString("=======================\n")
	}
	return b.String()
}
