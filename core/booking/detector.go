package booking

// HasChanged reports whether two session sets differ semantically: a day
// present in one but not the other, or any slot-label mismatch within a day,
// makes them different. Slot order is irrelevant. The comparison is pure and
// total; it is the sole gate in front of a reconciliation pass.
func HasChanged(a, b SessionSet) bool {
	for day, slots := range a {
		other, ok := b[day]
		if !ok {
			return true
		}
		for _, slot := range slots {
			if !contains(other, slot) {
				return true
			}
		}
	}
	for day, slots := range b {
		other, ok := a[day]
		if !ok {
			return true
		}
		for _, slot := range slots {
			if !contains(other, slot) {
				return true
			}
		}
	}
	return false
}

func contains(slots []string, slot string) bool {
	for _, have := range slots {
		if have == slot {
			return true
		}
	}
	return false
}
