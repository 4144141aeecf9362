package portal

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/Zhannyhong/cdc-bot/core/booking"
)

// OtherTeams reads the available sessions offered by other teams on the
// practical booking page. The result is informational only and never merged
// into the account's own availability. Returns nil when the account cannot
// book from other teams.
func (p *Portal) OtherTeams(ctx context.Context) (map[string]booking.SessionSet, error) {
	present, err := p.elementPresent(ctx, otherTeamsID)
	if err != nil || !present {
		return nil, err
	}
	names, err := p.selectOptions(ctx, otherTeamsID)
	if err != nil {
		return nil, err
	}
	if len(names) <= 1 {
		return nil, nil
	}

	teams := make(map[string]booking.SessionSet)
	for idx := 1; idx < len(names); idx++ {
		if err := p.selectIndex(ctx, otherTeamsID, idx); err != nil {
			return teams, err
		}
		view, err := p.RefreshGrid(ctx, booking.Practical)
		if err != nil {
			p.log.Errorf("failed to read team %q grid: %v", names[idx], err)
			continue
		}
		if view.Available.Count() > 0 {
			teams[names[idx]] = view.Available
		}
	}
	// Restore the account's own team view.
	if err := p.selectIndex(ctx, otherTeamsID, 0); err != nil {
		return teams, err
	}
	return teams, nil
}

// selectOptions returns the visible texts of a select control's options.
func (p *Portal) selectOptions(ctx context.Context, selectID string) ([]string, error) {
	script := fmt.Sprintf(`(() => {
		const sel = document.getElementById(%q);
		if (!sel) return [];
		return Array.from(sel.options).map(o => o.text.trim());
	})()`, selectID)
	var names []string
	if err := p.run(ctx, chromedp.Evaluate(script, &names)); err != nil {
		return nil, err
	}
	return names, nil
}

// selectIndex selects an option by index and waits for the postback repaint.
func (p *Portal) selectIndex(ctx context.Context, selectID string, idx int) error {
	script := fmt.Sprintf(`(() => {
		const sel = document.getElementById(%q);
		if (!sel || sel.options.length <= %d) return false;
		sel.selectedIndex = %d;
		sel.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, selectID, idx, idx)
	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("team option %d not available", idx)
	}
	return p.run(ctx, chromedp.Sleep(time.Second))
}
