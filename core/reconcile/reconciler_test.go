package reconcile

import (
	"errors"
	"testing"

	"github.com/Zhannyhong/cdc-bot/core/booking"
)

// fakeActuator scripts per-handle responses and records every call in order.
type fakeActuator struct {
	claimErrs   map[string]error
	releaseErrs map[string]error
	alerts      []string

	claims   []string
	releases []string
	dismiss  int
}

func (f *fakeActuator) Claim(handle string) error {
	f.claims = append(f.claims, handle)
	return f.claimErrs[handle]
}

func (f *fakeActuator) Release(handle string) error {
	f.releases = append(f.releases, handle)
	return f.releaseErrs[handle]
}

func (f *fakeActuator) DismissAlert() (string, bool) {
	f.dismiss++
	if len(f.alerts) == 0 {
		return "", false
	}
	msg := f.alerts[0]
	f.alerts = f.alerts[1:]
	return msg, true
}

func newState(available, reserved, booked booking.SessionSet) *booking.CategoryState {
	st := &booking.CategoryState{
		Available:     available,
		Reserved:      reserved,
		Booked:        booked,
		Earlier:       make(booking.SessionSet),
		CachedEarlier: make(booking.SessionSet),
		WebElements:   make(map[string]string),
		CanBookNext:   true,
	}
	if st.Available == nil {
		st.Available = make(booking.SessionSet)
	}
	if st.Reserved == nil {
		st.Reserved = make(booking.SessionSet)
	}
	if st.Booked == nil {
		st.Booked = make(booking.SessionSet)
	}
	index := func(s booking.SessionSet) {
		for day, slots := range s {
			st.DaysInView = appendMissing(st.DaysInView, day)
			for _, slot := range slots {
				st.WebElements[booking.ElementKey(day, slot)] = "btn_" + day + "_" + slot
			}
		}
	}
	index(st.Available)
	index(st.Reserved)
	index(st.Booked)
	st.Earlier = booking.ComputeEarlier(st.Available, st.Booked, false)
	return st
}

func appendMissing(days []string, day string) []string {
	for _, have := range days {
		if have == day {
			return days
		}
	}
	return append(days, day)
}

func set(pairs ...[2]string) booking.SessionSet {
	s := make(booking.SessionSet)
	for _, p := range pairs {
		s.Add(p[0], p[1])
	}
	return s
}

func handle(day, slot string) string { return "btn_" + day + "_" + slot }

func TestReconcileClaimsEarliestAvailable(t *testing.T) {
	st := newState(set(
		[2]string{"05/Jan/2025", "09:00 - 10:00"},
		[2]string{"02/Jan/2025", "09:00 - 10:00"},
	), nil, nil)
	fake := &fakeActuator{}
	out := New(fake, nil, nil, false).Reconcile(booking.Practical, st, 1, true)

	if len(out.Claimed) != 1 || out.Claimed[0].Day != "02/Jan/2025" {
		t.Fatalf("claimed %v", out.Claimed)
	}
	if len(fake.claims) != 1 || fake.claims[0] != handle("02/Jan/2025", "09:00 - 10:00") {
		t.Fatalf("claim calls: %v", fake.claims)
	}
	if !st.Reserved.Contains("02/Jan/2025", "09:00 - 10:00") {
		t.Fatalf("claimed slot not moved to reserved")
	}
	if st.Available.Contains("02/Jan/2025", "09:00 - 10:00") {
		t.Fatalf("claimed slot still available")
	}
	if !st.HasAutoReserved {
		t.Fatalf("auto-reserved flag not set")
	}
	if out.SlotsNeeded != 0 {
		t.Fatalf("slots needed: got %d want 0", out.SlotsNeeded)
	}
}

func TestReconcileReleasesLaterReservationForEarlierSlot(t *testing.T) {
	st := newState(
		set([2]string{"02/Jan/2025", "09:00 - 10:00"}),
		set([2]string{"05/Jan/2025", "09:00 - 10:00"}),
		nil,
	)
	fake := &fakeActuator{}
	out := New(fake, nil, nil, false).Reconcile(booking.Practical, st, 1, true)

	if len(out.Released) != 1 || out.Released[0].Day != "05/Jan/2025" {
		t.Fatalf("released %v", out.Released)
	}
	if len(out.Claimed) != 1 || out.Claimed[0].Day != "02/Jan/2025" {
		t.Fatalf("claimed %v", out.Claimed)
	}
	if st.Reserved.Contains("05/Jan/2025", "09:00 - 10:00") {
		t.Fatalf("released slot still reserved")
	}
	if !st.Available.Contains("05/Jan/2025", "09:00 - 10:00") {
		t.Fatalf("released slot not returned to available")
	}
	if !st.Reserved.Contains("02/Jan/2025", "09:00 - 10:00") {
		t.Fatalf("earlier slot not reserved")
	}
}

func TestReconcileKeepsReservationAsEarlyAsTarget(t *testing.T) {
	st := newState(
		set([2]string{"05/Jan/2025", "14:00 - 15:00"}),
		set([2]string{"02/Jan/2025", "09:00 - 10:00"}),
		nil,
	)
	fake := &fakeActuator{}
	out := New(fake, nil, nil, false).Reconcile(booking.Practical, st, 1, true)

	if len(fake.releases) != 0 {
		t.Fatalf("release calls issued for an already-early reservation: %v", fake.releases)
	}
	if len(fake.claims) != 0 {
		t.Fatalf("claim calls issued though the quota is already covered: %v", fake.claims)
	}
	if out.KeptReservations != 1 {
		t.Fatalf("kept: got %d want 1", out.KeptReservations)
	}
	if out.SlotsNeeded != 0 {
		t.Fatalf("slots needed: got %d want 0", out.SlotsNeeded)
	}
}

func TestReconcileKeepsOutOfViewReservation(t *testing.T) {
	st := newState(
		set([2]string{"02/Jan/2025", "09:00 - 10:00"}),
		nil,
		nil,
	)
	// A reservation known from the statement but absent from the visible grid.
	st.Reserved.Add("20/Dec/2024", "09:00 - 10:00")

	fake := &fakeActuator{}
	out := New(fake, nil, nil, false).Reconcile(booking.Practical, st, 1, true)

	if len(fake.releases) != 0 {
		t.Fatalf("out-of-view reservation was released")
	}
	if out.KeptReservations != 1 {
		t.Fatalf("kept: got %d want 1", out.KeptReservations)
	}
	if len(fake.claims) != 0 {
		t.Fatalf("claims issued with quota already covered: %v", fake.claims)
	}
}

func TestReconcileRefusedReleaseIsKeptWithoutRetry(t *testing.T) {
	st := newState(
		set([2]string{"02/Jan/2025", "09:00 - 10:00"}),
		set([2]string{"05/Jan/2025", "09:00 - 10:00"}),
		nil,
	)
	fake := &fakeActuator{releaseErrs: map[string]error{
		handle("05/Jan/2025", "09:00 - 10:00"): &Rejection{Message: "You are not allowed to cancel this session"},
	}}
	out := New(fake, nil, nil, false).Reconcile(booking.Practical, st, 1, true)

	if len(fake.releases) != 1 {
		t.Fatalf("refused release retried: %v", fake.releases)
	}
	if out.FailedReleases != 1 {
		t.Fatalf("failed releases: got %d want 1", out.FailedReleases)
	}
	if !st.Reserved.Contains("05/Jan/2025", "09:00 - 10:00") {
		t.Fatalf("refused release dropped from reserved")
	}
	// The kept reservation still covers the quota; nothing is claimed.
	if len(fake.claims) != 0 {
		t.Fatalf("claims issued: %v", fake.claims)
	}
}

func TestReconcileQuotaExceededStopsClaimPass(t *testing.T) {
	st := newState(set(
		[2]string{"02/Jan/2025", "09:00 - 10:00"},
		[2]string{"03/Jan/2025", "09:00 - 10:00"},
		[2]string{"04/Jan/2025", "09:00 - 10:00"},
	), nil, nil)
	fake := &fakeActuator{claimErrs: map[string]error{
		handle("02/Jan/2025", "09:00 - 10:00"): &Rejection{Message: "You have exceeded the maximum number of bookings"},
	}}
	out := New(fake, nil, nil, false).Reconcile(booking.Practical, st, 3, true)

	if len(fake.claims) != 1 {
		t.Fatalf("claim pass continued past a quota rejection: %v", fake.claims)
	}
	if !out.QuotaHit {
		t.Fatalf("quota hit not reported")
	}
	if len(out.Claimed) != 0 {
		t.Fatalf("claimed %v", out.Claimed)
	}
}

func TestReconcileBackToBackSkipsSlotOnly(t *testing.T) {
	st := newState(set(
		[2]string{"02/Jan/2025", "09:00 - 10:00"},
		[2]string{"02/Jan/2025", "11:00 - 12:00"},
		[2]string{"02/Jan/2025", "13:00 - 14:00"},
	), nil, nil)
	fake := &fakeActuator{claimErrs: map[string]error{
		handle("02/Jan/2025", "11:00 - 12:00"): &Rejection{Message: "Back to Back session is not allowed"},
	}}
	out := New(fake, nil, nil, false).Reconcile(booking.Simulator, st, 2, true)

	// Simulator targeting already skips adjacent slots, so 09:00 and 13:00
	// are picked and the scripted 11:00 refusal is never hit.
	if len(out.Claimed) != 2 {
		t.Fatalf("claimed %v", out.Claimed)
	}
	if out.QuotaHit {
		t.Fatalf("quota hit reported for an adjacency refusal")
	}
}

func TestReconcileAdjacencyRefusalContinuesWithinDay(t *testing.T) {
	st := newState(set(
		[2]string{"02/Jan/2025", "09:00 - 10:00"},
		[2]string{"02/Jan/2025", "10:00 - 11:00"},
	), nil, nil)
	fake := &fakeActuator{claimErrs: map[string]error{
		handle("02/Jan/2025", "09:00 - 10:00"): &Rejection{Message: "Back to Back session is not allowed"},
	}}
	out := New(fake, nil, nil, false).Reconcile(booking.Practical, st, 2, true)

	if len(fake.claims) != 2 {
		t.Fatalf("refusal stopped the pass: %v", fake.claims)
	}
	if len(out.Claimed) != 1 || out.Claimed[0].Time != "10:00 - 11:00" {
		t.Fatalf("claimed %v", out.Claimed)
	}
	if out.FailedClaims != 1 {
		t.Fatalf("failed claims: got %d want 1", out.FailedClaims)
	}
}

func TestReconcileNonComputerisedDismissedOnce(t *testing.T) {
	st := newState(set([2]string{"02/Jan/2025", "09:00 - 10:00"}), nil, nil)
	fake := &fakeActuator{claimErrs: map[string]error{
		handle("02/Jan/2025", "09:00 - 10:00"): &Rejection{Message: "this is a non-computerised session"},
	}}
	out := New(fake, nil, nil, false).Reconcile(booking.Practical, st, 1, true)

	if fake.dismiss != 1 {
		t.Fatalf("dismiss calls: got %d want 1", fake.dismiss)
	}
	// Silence after the dismissal means the claim stood.
	if len(out.Claimed) != 1 {
		t.Fatalf("claimed %v", out.Claimed)
	}
	if !st.Reserved.Contains("02/Jan/2025", "09:00 - 10:00") {
		t.Fatalf("slot not reserved after interim alert")
	}
}

func TestReconcileNonComputerisedFollowedByRefusal(t *testing.T) {
	st := newState(set([2]string{"02/Jan/2025", "09:00 - 10:00"}), nil, nil)
	fake := &fakeActuator{
		claimErrs: map[string]error{
			handle("02/Jan/2025", "09:00 - 10:00"): &Rejection{Message: "this is a non-computerised session"},
		},
		alerts: []string{"You have exceeded the maximum number of bookings"},
	}
	out := New(fake, nil, nil, false).Reconcile(booking.Practical, st, 1, true)

	if len(out.Claimed) != 0 {
		t.Fatalf("claimed %v", out.Claimed)
	}
	if !out.QuotaHit {
		t.Fatalf("follow-up quota alert not honored")
	}
}

func TestReconcileInfrastructureErrorIsNotARejection(t *testing.T) {
	st := newState(set(
		[2]string{"02/Jan/2025", "09:00 - 10:00"},
		[2]string{"03/Jan/2025", "09:00 - 10:00"},
	), nil, nil)
	// The message contains a quota marker but is a transport failure, not a
	// portal rejection, so it must not stop the pass.
	fake := &fakeActuator{claimErrs: map[string]error{
		handle("02/Jan/2025", "09:00 - 10:00"): errors.New("context deadline exceeded before click"),
	}}
	out := New(fake, nil, nil, false).Reconcile(booking.Practical, st, 2, true)

	if out.QuotaHit {
		t.Fatalf("infrastructure error treated as quota rejection")
	}
	if len(out.Claimed) != 1 || out.Claimed[0].Day != "03/Jan/2025" {
		t.Fatalf("claimed %v", out.Claimed)
	}
	if out.FailedClaims != 1 {
		t.Fatalf("failed claims: got %d want 1", out.FailedClaims)
	}
}

func TestReconcileSecondPassIsIdempotent(t *testing.T) {
	st := newState(set(
		[2]string{"02/Jan/2025", "09:00 - 10:00"},
		[2]string{"05/Jan/2025", "09:00 - 10:00"},
	), nil, nil)
	fake := &fakeActuator{}
	rec := New(fake, nil, nil, false)

	rec.Reconcile(booking.Practical, st, 1, true)
	calls := len(fake.claims) + len(fake.releases)

	st.Earlier = booking.ComputeEarlier(st.Available, st.Booked, false)
	rec.Reconcile(booking.Practical, st, 1, true)
	if len(fake.claims)+len(fake.releases) != calls {
		t.Fatalf("second pass over a converged state issued portal calls: claims=%v releases=%v", fake.claims, fake.releases)
	}
}

func TestReconcileAutoReserveDisabledTouchesNothing(t *testing.T) {
	st := newState(
		set([2]string{"02/Jan/2025", "09:00 - 10:00"}),
		set([2]string{"05/Jan/2025", "09:00 - 10:00"}),
		nil,
	)
	fake := &fakeActuator{}
	out := New(fake, nil, nil, false).Reconcile(booking.Practical, st, 1, false)

	if len(fake.claims) != 0 || len(fake.releases) != 0 {
		t.Fatalf("portal calls with auto-reserve off: claims=%v releases=%v", fake.claims, fake.releases)
	}
	if st.CachedEarlier.Count() == 0 {
		t.Fatalf("cache snapshot skipped")
	}
	if out.SlotsNeeded != 1 {
		t.Fatalf("slots needed: got %d want 1", out.SlotsNeeded)
	}
}

func TestReconcileCannotBookSkipsClaims(t *testing.T) {
	st := newState(set([2]string{"02/Jan/2025", "09:00 - 10:00"}), nil, nil)
	st.CanBookNext = false
	fake := &fakeActuator{}
	out := New(fake, nil, nil, false).Reconcile(booking.Practical, st, 1, true)

	if len(fake.claims) != 0 {
		t.Fatalf("claims issued though the portal reported the category unbookable")
	}
	if out.SlotsNeeded != 1 {
		t.Fatalf("slots needed: got %d want 1", out.SlotsNeeded)
	}
}

func TestReconcileFinalizationSnapshotsCache(t *testing.T) {
	st := newState(set(
		[2]string{"02/Jan/2025", "09:00 - 10:00"},
		[2]string{"08/Jan/2025", "09:00 - 10:00"},
	), nil, set([2]string{"05/Jan/2025", "09:00 - 10:00"}))
	fake := &fakeActuator{}
	New(fake, nil, nil, false).Reconcile(booking.Practical, st, 0, true)

	if booking.HasChanged(st.Earlier, st.CachedEarlier) {
		t.Fatalf("cache differs from earlier after finalization")
	}
	if st.CachedEarlier.Contains("08/Jan/2025", "09:00 - 10:00") {
		t.Fatalf("slot past the booked cutoff leaked into the cache")
	}
	st.Earlier.Add("09/Jan/2025", "09:00 - 10:00")
	if st.CachedEarlier.Contains("09/Jan/2025", "09:00 - 10:00") {
		t.Fatalf("cache aliases the earlier set")
	}
}

func TestReconcileReservedCountStaysWithinQuota(t *testing.T) {
	// Mixed pass: one reservation early enough to keep, one later reservation
	// whose release is refused, and earlier slots left to claim. However the
	// pass plays out, reservations may grow by at most the quota.
	st := newState(
		set(
			[2]string{"02/Jan/2025", "09:00 - 10:00"},
			[2]string{"03/Jan/2025", "09:00 - 10:00"},
		),
		set(
			[2]string{"01/Jan/2025", "09:00 - 10:00"},
			[2]string{"10/Jan/2025", "09:00 - 10:00"},
		),
		nil,
	)
	originalReserved := st.Reserved.Count()
	quota := 3
	fake := &fakeActuator{releaseErrs: map[string]error{
		handle("10/Jan/2025", "09:00 - 10:00"): &Rejection{Message: "You are not allowed to cancel this session"},
	}}
	out := New(fake, nil, nil, false).Reconcile(booking.Practical, st, quota, true)

	if got := st.Reserved.Count(); got > originalReserved+quota {
		t.Fatalf("reserved count %d exceeds original %d + quota %d", got, originalReserved, quota)
	}
	// Both survivors count against the need, leaving one claim.
	if out.KeptReservations != 1 || out.FailedReleases != 1 {
		t.Fatalf("kept=%d failedReleases=%d", out.KeptReservations, out.FailedReleases)
	}
	if len(out.Claimed) != 1 || out.Claimed[0].Day != "02/Jan/2025" {
		t.Fatalf("claimed %v", out.Claimed)
	}
	if st.Reserved.Count() != 3 {
		t.Fatalf("reserved count: got %d want 3", st.Reserved.Count())
	}
}

func TestRejectionHelpers(t *testing.T) {
	if _, ok := AsRejection(errors.New("plain")); ok {
		t.Fatalf("plain error classified as rejection")
	}
	wrapped := &Rejection{Message: "Store Value: $10"}
	if rej, ok := AsRejection(wrapped); !ok || rej.Message != "Store Value: $10" {
		t.Fatalf("rejection not extracted")
	}
	if !IsQuotaExceeded("Store Value: $10") || !IsQuotaExceeded("wait before booking") {
		t.Fatalf("quota markers not matched")
	}
	if IsQuotaExceeded("all good") {
		t.Fatalf("false quota match")
	}
	if !IsBackToBack("Back to Back session is not allowed here") {
		t.Fatalf("back-to-back marker not matched")
	}
	if !IsNonComputerised("a non-computerised session") {
		t.Fatalf("non-computerised marker not matched")
	}
}
