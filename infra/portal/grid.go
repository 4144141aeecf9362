package portal

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/Zhannyhong/cdc-bot/core/booking"
)

const gridTableID = "ctl00_ContentPlaceHolder1_gvLatestav"

// Cell markers in the grid: the portal encodes slot status in the button
// image.
const (
	availableMarker = "Images1.gif"
	reservedMarker  = "Images2.gif"
	bookedMarker    = "Images3.gif"
)

// View is one parsed snapshot of a category's slot grid.
type View struct {
	Available booking.SessionSet
	Reserved  booking.SessionSet
	Booked    booking.SessionSet
	// Elements maps "day : time" keys to the portal's element IDs.
	Elements map[string]string
	// Days are the day labels visible in the grid, in page order.
	Days []string
	// CanBook is false when a probe showed the account cannot currently
	// book this category (e.g. prerequisite lessons missing).
	CanBook bool
}

// RefreshGrid captures and parses the slot grid of the currently open booking
// page. The caller must have opened the category's page first.
func (p *Portal) RefreshGrid(ctx context.Context, cat booking.Category) (View, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("#"+gridTableID, &html, chromedp.ByQuery))
	if err != nil {
		return View{}, &ScrapeError{Category: cat, Reason: "slot grid not found", Err: err}
	}
	view, err := parseGrid(html, cat)
	if err != nil {
		return View{}, err
	}

	// When nothing is booked or reserved in view, probe whether the account
	// can book this category at all.
	if cat == booking.Practical || cat == booking.Simulator || cat == booking.PracticalTest {
		if len(view.Booked) == 0 && len(view.Reserved) == 0 {
			p.probeCanBook(ctx, cat, &view)
		}
	}
	return view, nil
}

// parseGrid extracts the slot sets from the grid table HTML. The header row
// carries the session times; each data row starts with the day label and
// holds one button per session column.
func parseGrid(html string, cat booking.Category) (View, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return View{}, &ScrapeError{Category: cat, Reason: "grid html unparseable", Err: err}
	}
	rows := doc.Find("tr")
	if rows.Length() == 0 {
		return View{}, &ScrapeError{Category: cat, Reason: "grid has no rows"}
	}

	var headers []string
	rows.First().Find("th").Each(func(_ int, th *goquery.Selection) {
		headers = append(headers, headerTime(th.Text()))
	})

	// Simulator grids carry two extra leading header columns.
	startCol := 2
	if cat == booking.Simulator {
		startCol = 4
	}

	view := View{
		Available: make(booking.SessionSet),
		Reserved:  make(booking.SessionSet),
		Booked:    make(booking.SessionSet),
		Elements:  make(map[string]string),
		CanBook:   true,
	}

	var parseErr error
	rows.Each(func(_ int, row *goquery.Selection) {
		day := strings.TrimSpace(row.Find("td").First().Text())
		if day == "" {
			return
		}
		view.Days = append(view.Days, day)

		row.Find("input").Each(func(_ int, input *goquery.Selection) {
			src, _ := input.Attr("src")
			id, _ := input.Attr("id")
			marker := cellMarker(src)
			if marker == "" || id == "" {
				return
			}
			col, err := sessionColumn(id)
			if err != nil {
				parseErr = &ScrapeError{Category: cat, Reason: "malformed session button id " + id, Err: err}
				return
			}
			idx := col + startCol
			if idx >= len(headers) {
				parseErr = &ScrapeError{Category: cat, Reason: "session column out of range in " + id}
				return
			}
			slot := headers[idx]
			view.Elements[booking.ElementKey(day, slot)] = id
			switch marker {
			case availableMarker:
				view.Available.Add(day, slot)
			case reservedMarker:
				view.Reserved.Add(day, slot)
			case bookedMarker:
				view.Booked.Add(day, slot)
			}
		})
	})
	if parseErr != nil {
		return View{}, parseErr
	}
	return view, nil
}

func cellMarker(src string) string {
	for _, marker := range []string{availableMarker, reservedMarker, bookedMarker} {
		if strings.Contains(src, marker) {
			return marker
		}
	}
	return ""
}

// sessionColumn derives the zero-based session column from a button ID like
// "ctl00_ContentPlaceHolder1_gvLatestav_ctl02_btnSession4".
func sessionColumn(id string) (int, error) {
	parts := strings.Split(id, "_")
	last := parts[len(parts)-1]
	n, err := strconv.Atoi(strings.TrimPrefix(last, "btnSession"))
	if err != nil {
		return 0, err
	}
	return n - 1, nil
}

// headerTime extracts the "HH:MM - HH:MM" line from a header cell, whose text
// stacks the session name above the time range.
func headerTime(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > 1 {
		return strings.TrimSpace(lines[1])
	}
	return strings.TrimSpace(lines[0])
}

// probeCanBook reserves and immediately reverts the last available slot to
// learn whether the portal lets this account book the category. An alert on
// the first click means it does not.
func (p *Portal) probeCanBook(ctx context.Context, cat booking.Category, view *View) {
	slots := view.Available.Flatten()
	if len(slots) == 0 {
		return
	}
	last := slots[len(slots)-1]
	handle, ok := view.Elements[last.Key()]
	if !ok {
		return
	}

	p.log.Infof("probing whether %s can be booked", cat)
	p.drainAlerts()
	if err := p.run(ctx, chromedp.Click("#"+handle, chromedp.ByQuery)); err != nil {
		p.log.Errorf("bookability probe click failed: %v", err)
		return
	}
	if msg, found := p.awaitAlert(5 * time.Second); found {
		p.log.Warnf("account cannot book %s: %s", cat, msg)
		view.CanBook = false
		return
	}
	// No alert: the slot is now reserved and must be reverted.
	if err := p.run(ctx,
		chromedp.Click("#"+handle, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	); err != nil {
		p.log.Errorf("failed to revert bookability probe on %s : %s: %v", last.Day, last.Time, err)
		return
	}
	p.log.Infof("reverted bookability probe reservation")
}
