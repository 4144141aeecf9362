package portal

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/Zhannyhong/cdc-bot/core/booking"
)

const (
	bookedTableID   = "ctl00_ContentPlaceHolder1_gvBooked"
	reservedTableID = "ctl00_ContentPlaceHolder1_gvReserved"
)

// Statement is the dashboard's view of sessions already booked or reserved,
// grouped per category, with the portal's lesson names.
type Statement struct {
	Booked      map[booking.Category]booking.SessionSet
	Reserved    map[booking.Category]booking.SessionSet
	LessonNames map[booking.Category]string
}

// RefreshStatement opens the booking dashboard and parses the booked and
// reserved session tables.
func (p *Portal) RefreshStatement(ctx context.Context) (Statement, error) {
	if err := p.openIndex(ctx, dashboardPath, 0); err != nil {
		return Statement{}, err
	}
	// The dashboard sometimes greets with a notice alert.
	p.awaitAlert(5 * time.Second)

	var bookedHTML, reservedHTML string
	err := p.run(ctx,
		chromedp.OuterHTML("#"+bookedTableID, &bookedHTML, chromedp.ByQuery),
		chromedp.OuterHTML("#"+reservedTableID, &reservedHTML, chromedp.ByQuery),
	)
	if err != nil {
		return Statement{}, &ScrapeError{Category: booking.Practical, Reason: "dashboard tables not found", Err: err}
	}

	st := Statement{
		Booked:      make(map[booking.Category]booking.SessionSet),
		Reserved:    make(map[booking.Category]booking.SessionSet),
		LessonNames: make(map[booking.Category]string),
	}
	if err := parseStatementTable(bookedHTML, st.Booked, st.LessonNames, false); err != nil {
		return Statement{}, err
	}
	if err := parseStatementTable(reservedHTML, st.Reserved, st.LessonNames, true); err != nil {
		return Statement{}, err
	}
	return st, nil
}

// parseStatementTable reads one dashboard table. Rows carry the day label,
// start and end times and the lesson name. Practical reservations are
// excluded from the reserved view: the portal tracks those on the booking
// grid itself.
func parseStatementTable(html string, out map[booking.Category]booking.SessionSet, names map[booking.Category]string, skipPractical bool) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return &ScrapeError{Category: booking.Practical, Reason: "statement table unparseable", Err: err}
	}
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}
		lessonName := strings.TrimSpace(cells.Eq(4).Text())
		cat, ok := classifyLesson(lessonName)
		if !ok {
			return
		}
		if skipPractical && cat == booking.Practical {
			return
		}
		names[cat] = lessonName

		day := strings.TrimSpace(cells.Eq(0).Text())
		slot := statementSlot(cells.Eq(2).Text(), cells.Eq(3).Text())
		if day == "" || slot == "" {
			return
		}
		set, ok := out[cat]
		if !ok {
			set = make(booking.SessionSet)
			out[cat] = set
		}
		set.Add(day, slot)
	})
	return nil
}

// statementSlot builds a grid-style slot label from the statement's start and
// end cells, which carry a three-character suffix after the time.
func statementSlot(start, end string) string {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)
	if len(start) <= 3 || len(end) <= 3 {
		return ""
	}
	return start[:len(start)-3] + " - " + end[:len(end)-3]
}

// classifyLesson maps a portal lesson name onto a category. Practical lessons
// appear under several course names.
func classifyLesson(name string) (booking.Category, bool) {
	switch {
	case strings.Contains(name, "SIMULATOR"):
		return booking.Simulator, true
	case strings.Contains(name, "Lesson"), strings.Contains(name, "2BL"), strings.Contains(name, "ONETEAM"):
		return booking.Practical, true
	case strings.Contains(name, "BTT"):
		return booking.BasicTheory, true
	case strings.Contains(name, "RTT"):
		return booking.RidingTheory, true
	case strings.Contains(name, "FTT"):
		return booking.FinalTheory, true
	case strings.Contains(name, "PT"):
		return booking.PracticalTest, true
	default:
		return 0, false
	}
}
