package booking

import "testing"

func TestGridDropsDuplicateCategories(t *testing.T) {
	g := NewGrid([]Category{Practical, Practical, Simulator}, nil)
	cats := g.Categories()
	if len(cats) != 2 || cats[0] != Practical || cats[1] != Simulator {
		t.Fatalf("got %v", cats)
	}
}

func TestGridSetScrapeUnknownCategory(t *testing.T) {
	g := NewGrid([]Category{Practical}, nil)
	g.SetScrape(Simulator, set([2]string{"02/Jan/2025", "09:00 - 10:00"}), nil, nil, nil, nil)
	if _, ok := g.State(Simulator); ok {
		t.Fatalf("unconfigured category gained state")
	}
}

func TestGridSetScrapeNilSets(t *testing.T) {
	g := NewGrid([]Category{Practical}, nil)
	g.SetScrape(Practical, nil, nil, nil, nil, nil)
	st, _ := g.State(Practical)
	if st.Available == nil || st.Reserved == nil || st.Booked == nil || st.WebElements == nil {
		t.Fatalf("nil scrape inputs were not replaced with empty containers")
	}
}

func TestResetKeepsCachedEarlier(t *testing.T) {
	g := NewGrid([]Category{Practical}, nil)
	st, _ := g.State(Practical)
	st.Available = set([2]string{"02/Jan/2025", "09:00 - 10:00"})
	st.CachedEarlier = set([2]string{"02/Jan/2025", "09:00 - 10:00"})
	st.CanBookNext = false
	st.HasAutoReserved = true

	g.ResetAll()

	if st.Available.Count() != 0 {
		t.Fatalf("available survived reset")
	}
	if st.CachedEarlier.Count() != 1 {
		t.Fatalf("cached earlier did not survive reset")
	}
	if !st.CanBookNext || st.HasAutoReserved {
		t.Fatalf("flags not restored to defaults")
	}
}

func TestDayInView(t *testing.T) {
	st := newCategoryState()
	st.DaysInView = []string{"02/Jan/2025", "03/Jan/2025"}
	if !st.DayInView("02/Jan/2025") {
		t.Fatalf("visible day reported out of view")
	}
	if st.DayInView("04/Jan/2025") {
		t.Fatalf("absent day reported in view")
	}
}

func TestComputeEarlierNothingBooked(t *testing.T) {
	avail := set([2]string{"02/Jan/2025", "09:00 - 10:00"}, [2]string{"10/Jan/2025", "09:00 - 10:00"})
	earlier := ComputeEarlier(avail, nil, false)
	if HasChanged(earlier, avail) {
		t.Fatalf("with nothing booked all available slots should qualify")
	}
	earlier.Add("11/Jan/2025", "09:00 - 10:00")
	if avail.Contains("11/Jan/2025", "09:00 - 10:00") {
		t.Fatalf("result aliases the available set")
	}
}

func TestComputeEarlierCutsAtEarliestBookedDay(t *testing.T) {
	avail := set(
		[2]string{"02/Jan/2025", "09:00 - 10:00"},
		[2]string{"05/Jan/2025", "09:00 - 10:00"},
		[2]string{"08/Jan/2025", "09:00 - 10:00"},
	)
	booked := set([2]string{"05/Jan/2025", "14:00 - 15:00"})

	earlier := ComputeEarlier(avail, booked, false)
	if earlier.Count() != 1 || !earlier.Contains("02/Jan/2025", "09:00 - 10:00") {
		t.Fatalf("strict cutoff wrong: %v", earlier)
	}

	sameDay := ComputeEarlier(avail, booked, true)
	if sameDay.Count() != 2 || !sameDay.Contains("05/Jan/2025", "09:00 - 10:00") {
		t.Fatalf("same-day cutoff wrong: %v", sameDay)
	}
}

func TestUpdateEarlier(t *testing.T) {
	g := NewGrid([]Category{Practical}, nil)
	st, _ := g.State(Practical)
	st.Available = set([2]string{"02/Jan/2025", "09:00 - 10:00"}, [2]string{"08/Jan/2025", "09:00 - 10:00"})
	st.Booked = set([2]string{"05/Jan/2025", "09:00 - 10:00"})

	g.UpdateEarlier(Practical, false)
	if st.Earlier.Count() != 1 || !st.Earlier.Contains("02/Jan/2025", "09:00 - 10:00") {
		t.Fatalf("got %v", st.Earlier)
	}
}

func TestParseCategoryRoundTrip(t *testing.T) {
	for _, cat := range Categories() {
		got, err := ParseCategory(cat.String())
		if err != nil {
			t.Fatalf("%s: %v", cat, err)
		}
		if got != cat {
			t.Fatalf("round trip %s: got %s", cat, got)
		}
	}
	if _, err := ParseCategory("bogus"); err == nil {
		t.Fatalf("expected error for unknown category name")
	}
}
