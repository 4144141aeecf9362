package reconcile

import (
	"time"

	"github.com/Zhannyhong/cdc-bot/core/booking"
	"github.com/Zhannyhong/cdc-bot/core/logger"
	"github.com/Zhannyhong/cdc-bot/internal/eventbus"
)

// Actuator is the narrow surface of the booking portal used by the
// reconciler. Claim and Release return a *Rejection for site-issued business
// refusals; any other non-nil error is an infrastructure failure.
type Actuator interface {
	Claim(handle string) error
	Release(handle string) error
	// DismissAlert acknowledges the topmost portal alert, if any, and
	// returns its message.
	DismissAlert() (msg string, found bool)
}

// Outcome summarizes one reconciliation pass for a category.
type Outcome struct {
	Category booking.Category
	Claimed  []booking.Slot
	Released []booking.Slot
	// KeptReservations counts reserved slots judged good enough to hold.
	KeptReservations int
	FailedReleases   int
	FailedClaims     int
	// SlotsNeeded is the residual quota need after the pass.
	SlotsNeeded int
	// QuotaHit is set when the portal reported a hard booking limit,
	// stopping the claim pass for this category.
	QuotaHit bool
}

// Reconciler decides which held reservations to release in favor of earlier
// slots and which candidates to claim. One pass runs release decisions before
// claim decisions and always leaves the category state internally consistent;
// per-slot failures never abort the pass.
type Reconciler struct {
	actuator Actuator
	bus      eventbus.EventBus
	log      logger.Logger
	sameDay  bool
}

// New creates a Reconciler. bus may be nil when no observers are wired; a nil
// logger falls back to NopLogger.
func New(actuator Actuator, bus eventbus.EventBus, log logger.Logger, sameDay bool) *Reconciler {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Reconciler{actuator: actuator, bus: bus, log: log, sameDay: sameDay}
}

// Reconcile runs one pass for the category: compute the target set, release
// reservations that are later than the target, claim the earliest candidates
// for the residual need, then recompute the earlier set and snapshot it into
// the cache. The pass is not re-entrant; callers invoke it at most once per
// category per cycle, and only after the change detector fired.
func (r *Reconciler) Reconcile(cat booking.Category, st *booking.CategoryState, quota int, autoReserve bool) Outcome {
	out := Outcome{Category: cat}

	need := quota
	if autoReserve && need > 0 {
		need = r.releasePass(cat, st, need, &out)
		if need > 0 && st.CanBookNext {
			r.claimPass(cat, st, need, &out)
		} else if need > 0 {
			r.log.Debugf("skipping %s claim pass: portal reported category not bookable", cat)
		}
	}
	out.SlotsNeeded = need - len(out.Claimed)

	// Finalization: the cache snapshot is the state the user will be told
	// about, and the gate for the next cycle's change detection.
	st.Earlier = booking.ComputeEarlier(st.Available, st.Booked, r.sameDay)
	st.CachedEarlier = st.Earlier.Clone()
	return out
}

// releasePass walks current reservations and keeps the ones that are out of
// view or at least as early as anything we would newly claim, deducting them
// from the quota need. Later reservations are released through the actuator;
// a refused release is kept and deducted, with no retry this cycle. Returns
// the residual need.
func (r *Reconciler) releasePass(cat booking.Category, st *booking.CategoryState, need int, out *Outcome) int {
	target := booking.SelectEarliest(st.Earlier, need, cat)
	targetCutoff, haveCutoff := earliestDayOf(target)

	released := make(booking.SessionSet)
	for _, day := range st.Reserved.Days() {
		slots := append([]string(nil), st.Reserved[day]...)

		if !st.DayInView(day) {
			// Confirmed out of the visible grid, e.g. already rolled off
			// the calendar page. Good enough to hold.
			need -= len(slots)
			out.KeptReservations += len(slots)
			continue
		}
		reservedAt, err := booking.ParseDay(day)
		if err != nil {
			r.log.Warnf("keeping %s reservation with unparseable day %q", cat, day)
			need -= len(slots)
			out.KeptReservations += len(slots)
			continue
		}
		if !haveCutoff || !reservedAt.After(targetCutoff) {
			// At least as early as anything the target would claim.
			need -= len(slots)
			out.KeptReservations += len(slots)
			continue
		}

		for _, slot := range slots {
			handle, ok := st.WebElements[booking.ElementKey(day, slot)]
			if !ok {
				r.log.Errorf("no element handle for reserved %s slot %s : %s, keeping it", cat, day, slot)
				need--
				out.FailedReleases++
				break
			}
			if err := r.actuator.Release(handle); err != nil {
				r.log.Errorf("failed to release %s slot on %s : %s: %v", cat, day, slot, err)
				if rej, ok := AsRejection(err); ok {
					r.publish(ReleaseRejected{Category: cat, Day: day, Time: slot, Reason: rej.Message})
				}
				need--
				out.FailedReleases++
				break
			}
			r.log.Infof("released %s slot on %s : %s", cat, day, slot)
			released.Add(day, slot)
			r.publish(SlotReleased{Category: cat, Day: day, Time: slot})
		}
	}

	for day, slots := range released {
		for _, slot := range slots {
			st.Reserved.Remove(day, slot)
			st.Available.Add(day, slot)
			start, _ := booking.ParseSlotStart(day, slot)
			out.Released = append(out.Released, booking.Slot{Day: day, Time: slot, Start: start})
		}
	}
	return need
}

// claimPass claims the earliest candidates for the residual need in ascending
// day order, chronologically within a day. A quota or timing limit reported
// by the portal stops the entire pass; an adjacency refusal skips just that
// slot.
func (r *Reconciler) claimPass(cat booking.Category, st *booking.CategoryState, need int, out *Outcome) {
	target := booking.SelectEarliest(st.Earlier, need, cat)

days:
	for _, day := range target.Days() {
		for _, slot := range target[day] {
			handle, ok := st.WebElements[booking.ElementKey(day, slot)]
			if !ok {
				r.log.Errorf("no element handle for %s candidate %s : %s", cat, day, slot)
				out.FailedClaims++
				continue
			}
			r.log.Infof("attempting to reserve a %s slot on %s : %s", cat, day, slot)

			rej, err := r.claim(handle)
			if err != nil {
				r.log.Errorf("claim of %s slot on %s : %s failed: %v", cat, day, slot, err)
				out.FailedClaims++
				continue
			}
			if rej != nil {
				r.log.Errorf("failed to reserve %s slot on %s : %s: %s", cat, day, slot, rej.Message)
				r.publish(ClaimRejected{Category: cat, Day: day, Time: slot, Reason: rej.Message})
				out.FailedClaims++
				if IsQuotaExceeded(rej.Message) {
					out.QuotaHit = true
					break days
				}
				// Back-to-back and other refusals: next slot in the day.
				continue
			}

			st.Reserved.Add(day, slot)
			st.Available.Remove(day, slot)
			st.HasAutoReserved = true
			start, _ := booking.ParseSlotStart(day, slot)
			out.Claimed = append(out.Claimed, booking.Slot{Day: day, Time: slot, Start: start})
			r.publish(SlotClaimed{Category: cat, Day: day, Time: slot})
		}
	}
}

// claim attempts one claim and resolves the non-computerised interim alert:
// that alert is dismissed exactly once more, and the claim stands when no
// further alert follows.
func (r *Reconciler) claim(handle string) (*Rejection, error) {
	err := r.actuator.Claim(handle)
	if err == nil {
		return nil, nil
	}
	rej, ok := AsRejection(err)
	if !ok {
		return nil, err
	}
	if IsNonComputerised(rej.Message) {
		if msg, found := r.actuator.DismissAlert(); found {
			return &Rejection{Message: msg}, nil
		}
		return nil, nil
	}
	return rej, nil
}

func (r *Reconciler) publish(e eventbus.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

func earliestDayOf(set booking.SessionSet) (time.Time, bool) {
	_, at, ok := set.EarliestDay()
	return at, ok
}
