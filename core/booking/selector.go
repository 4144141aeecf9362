package booking

// SelectEarliest picks up to quota chronologically earliest slots from the
// given sessions and groups them back into a day -> slots mapping.
//
// Simulator lessons may not be booked back to back, so for that category only
// every second candidate of the sorted list is taken (indices 0, 2, 4, ...);
// all other categories walk the list one by one. Deterministic for a given
// input.
func SelectEarliest(sessions SessionSet, quota int, cat Category) SessionSet {
	picked := make(SessionSet)
	if quota <= 0 {
		return picked
	}
	sorted := sessions.Flatten()

	step := 1
	if cat == Simulator {
		step = 2
	}
	for i := 0; i < min(quota*step, len(sorted)); i += step {
		picked.Add(sorted[i].Day, sorted[i].Time)
	}
	return picked
}
