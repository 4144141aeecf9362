package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/Zhannyhong/cdc-bot/core/booking"
)

const (
	theoryPagePath    = "NewPortal/Booking/BookingTT.aspx"
	practicalPagePath = "NewPortal/Booking/BookingPL.aspx"
	simulatorPagePath = "NewPortal/Booking/BookingSimulator.aspx"
	testPagePath      = "NewPortal/Booking/BookingPT.aspx"
	dashboardPath     = "NewPortal/Booking/Dashboard.aspx"

	courseSelectID  = "ctl00_ContentPlaceHolder1_ddlCourse"
	otherTeamsID    = "ctl00_ContentPlaceHolder1_ddlOthTeamID"
	captchaImageID  = "ctl00_ContentPlaceHolder1_CaptchaImg"
	fullBookMsgID   = "ctl00_ContentPlaceHolder1_lblFullBookMsg"
	testNameLabelID = "ctl00_ContentPlaceHolder1_lblResAsmBlyDesc"
	termsCheckboxID = "ctl00_ContentPlaceHolder1_chkTermsAndCond"
	termsAgreeBtnID = "ctl00_ContentPlaceHolder1_btnAgreeTerms"
	practicalCourse = "Class 3A Motorcar"
	simulatorCourse = "Simulator Course - Car (School)"
)

// checkAccess reports whether the current page is reachable for this
// account. The portal redirects blocked accounts to an alert page.
func (p *Portal) checkAccess(ctx context.Context) (bool, error) {
	var current string
	if err := p.run(ctx, chromedp.Location(&current)); err != nil {
		return false, err
	}
	return !strings.Contains(current, "Alert.aspx"), nil
}

// OpenBookingPage navigates to the category's booking page, handling course
// selection and the entry captcha dialog. A failed captcha dismissal reopens
// the page; after maxPageRetries reopens the session is recycled with a
// logout/login and the counter restarts. Returns false when the category is
// not available to this account.
func (p *Portal) OpenBookingPage(ctx context.Context, cat booking.Category, practicalLessonName string) (bool, error) {
	retries := 0
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if retries > maxPageRetries {
			p.log.Warnf("%s page kept failing, recycling the session", cat)
			if err := p.Logout(ctx); err != nil {
				p.log.Warnf("logout during session recycle failed: %v", err)
			}
			if err := p.Login(ctx); err != nil {
				return false, err
			}
			retries = 0
		}

		ok, retry, err := p.openOnce(ctx, cat, practicalLessonName)
		if err != nil {
			return false, err
		}
		if retry {
			retries++
			continue
		}
		return ok, nil
	}
}

// openOnce performs a single page-open attempt. retry is set when the entry
// captcha could not be dismissed and the page should be reopened.
func (p *Portal) openOnce(ctx context.Context, cat booking.Category, practicalLessonName string) (ok, retry bool, err error) {
	switch cat {
	case booking.BasicTheory, booking.RidingTheory, booking.FinalTheory:
		return p.openTheoryPage(ctx, cat)
	case booking.Practical:
		return p.openPracticalPage(ctx)
	case booking.Simulator:
		return p.openSimulatorPage(ctx)
	case booking.PracticalTest:
		if strings.Contains(practicalLessonName, "REVISION") {
			p.log.Infof("practical lessons completed, practical test page skipped")
			return false, false, nil
		}
		return p.openTestPage(ctx)
	default:
		return false, false, fmt.Errorf("%w: %v", booking.ErrUnknownCategory, cat)
	}
}

func (p *Portal) openTheoryPage(ctx context.Context, cat booking.Category) (bool, bool, error) {
	if err := p.openIndex(ctx, theoryPagePath, time.Second); err != nil {
		return false, false, err
	}
	if ok, err := p.checkAccess(ctx); err != nil || !ok {
		p.log.Debugf("account has no access to %s booking", cat)
		return false, false, err
	}
	if !p.dismissEntryCaptcha(ctx, cat.String()) {
		return false, true, nil
	}
	p.acceptTerms(ctx)

	var testName string
	if err := p.run(ctx, chromedp.Text("#"+testNameLabelID, &testName, chromedp.ByQuery)); err != nil {
		return false, false, &ScrapeError{Category: cat, Reason: "theory test label missing", Err: err}
	}
	want := map[booking.Category]string{
		booking.BasicTheory:  "Basic Theory Test",
		booking.RidingTheory: "Riding Theory Test",
		booking.FinalTheory:  "Final Theory Test",
	}[cat]
	return strings.Contains(testName, want), false, nil
}

func (p *Portal) openPracticalPage(ctx context.Context) (bool, bool, error) {
	if err := p.openIndex(ctx, practicalPagePath, time.Second); err != nil {
		return false, false, err
	}
	if ok, err := p.checkAccess(ctx); err != nil || !ok {
		p.log.Debugf("account has no access to practical booking")
		return false, false, err
	}
	if err := p.selectCourse(ctx, courseSelectID, practicalCourse); err != nil {
		return false, false, err
	}
	if !p.dismissEntryCaptcha(ctx, "practical") {
		return false, true, nil
	}
	if present, _ := p.elementPresent(ctx, fullBookMsgID); present {
		p.log.Infof("no available practical lessons currently")
		return false, false, nil
	}
	return true, false, nil
}

func (p *Portal) openSimulatorPage(ctx context.Context) (bool, bool, error) {
	if err := p.openIndex(ctx, simulatorPagePath, time.Second); err != nil {
		return false, false, err
	}
	if ok, err := p.checkAccess(ctx); err != nil || !ok {
		p.log.Debugf("account has no access to simulator booking")
		return false, false, err
	}
	if err := p.selectCourse(ctx, courseSelectID, simulatorCourse); err != nil {
		return false, false, err
	}
	if !p.dismissEntryCaptcha(ctx, "simulator") {
		return false, true, nil
	}
	return true, false, nil
}

func (p *Portal) openTestPage(ctx context.Context) (bool, bool, error) {
	if err := p.openIndex(ctx, testPagePath, time.Second); err != nil {
		return false, false, err
	}
	if ok, err := p.checkAccess(ctx); err != nil || !ok {
		p.log.Debugf("account has no access to practical test booking")
		return false, false, err
	}
	if !p.dismissEntryCaptcha(ctx, "pt") {
		return false, true, nil
	}
	p.acceptTerms(ctx)
	return true, false, nil
}

// dismissEntryCaptcha closes the page-entry captcha dialog when present.
// Solving captchas is an external concern; the dialog is simply closed, and a
// follow-up "incorrect captcha" alert marks the attempt as failed.
func (p *Portal) dismissEntryCaptcha(ctx context.Context, pageName string) bool {
	present, err := p.elementPresent(ctx, captchaImageID)
	if err != nil || !present {
		return err == nil
	}
	if err := p.run(ctx, chromedp.Click(".close", chromedp.ByQuery)); err != nil {
		p.log.Errorf("failed to close %s captcha dialog: %v", pageName, err)
		return false
	}
	if msg, found := p.awaitAlert(2 * time.Second); found && strings.Contains(msg, "incorrect captcha") {
		// A secondary alert usually follows; consume it.
		p.awaitAlert(5 * time.Second)
		p.log.Infof("captcha dismissal failed for %s page", pageName)
		return false
	}
	return true
}

// acceptTerms ticks the terms-and-conditions gate when the portal shows it.
func (p *Portal) acceptTerms(ctx context.Context) {
	present, err := p.elementPresent(ctx, termsCheckboxID)
	if err != nil || !present {
		return
	}
	if err := p.run(ctx,
		chromedp.Click("#"+termsCheckboxID, chromedp.ByQuery),
		chromedp.Click("#"+termsAgreeBtnID, chromedp.ByQuery),
	); err != nil {
		p.log.Warnf("failed to accept terms: %v", err)
	}
}

// selectCourse picks the course whose visible text contains name, falling
// back to the first real option.
func (p *Portal) selectCourse(ctx context.Context, selectID, name string) error {
	script := fmt.Sprintf(`(() => {
		const sel = document.getElementById(%q);
		if (!sel) return -1;
		for (let i = 0; i < sel.options.length; i++) {
			if (sel.options[i].text.includes(%q)) {
				sel.selectedIndex = i;
				sel.dispatchEvent(new Event('change', {bubbles: true}));
				return i;
			}
		}
		if (sel.options.length > 1) {
			sel.selectedIndex = 1;
			sel.dispatchEvent(new Event('change', {bubbles: true}));
			return 1;
		}
		return -2;
	})()`, selectID, name)

	var idx int
	if err := p.run(ctx, chromedp.Evaluate(script, &idx)); err != nil {
		return err
	}
	switch idx {
	case -1:
		return fmt.Errorf("course selector %s not found", selectID)
	case -2:
		return fmt.Errorf("no courses available in %s", selectID)
	}
	// Let the postback repaint the grid.
	return p.run(ctx, chromedp.Sleep(2*time.Second))
}

func (p *Portal) elementPresent(ctx context.Context, id string) (bool, error) {
	var present bool
	err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(`document.getElementById(%q) !== null`, id), &present))
	return present, err
}
