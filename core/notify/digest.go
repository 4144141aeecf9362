package notify

import (
	"strings"

	"github.com/google/uuid"
)

// OutstandingWarning is sent alongside a digest whenever reserved slots
// remain at the end of a cycle.
const OutstandingWarning = "You have outstanding slots reserved! " +
	"Please log in to the website and confirm these reservations else they will be forfeited."

// Digest accumulates per-category reports over one monitoring cycle, in
// category-processing order. It is rendered and sent once per cycle; no
// per-category message leaves the composer on its own.
type Digest struct {
	id      string
	reports []Report
}

// NewDigest creates an empty digest with a fresh cycle ID.
func NewDigest() *Digest {
	return &Digest{id: uuid.NewString()}
}

// ID returns the cycle ID stamped on logs and metrics for this digest.
func (d *Digest) ID() string { return d.id }

// Add appends a category report.
func (d *Digest) Add(r Report) { d.reports = append(d.reports, r) }

// Empty reports whether no category produced an update this cycle.
func (d *Digest) Empty() bool { return len(d.reports) == 0 }

// HasOutstandingReservations reports whether any category finished the cycle
// with reserved slots.
func (d *Digest) HasOutstandingReservations() bool {
	for _, r := range d.reports {
		if r.HasOutstandingReservations {
			return true
		}
	}
	return false
}

// Render concatenates all category reports in insertion order.
func (d *Digest) Render() string {
	var b strings.Builder
	for _, r := range d.reports {
		b.WriteString(r.Render())
	}
	return b.String()
}
