package portal

import (
	"github.com/chromedp/chromedp"

	"github.com/Zhannyhong/cdc-bot/core/reconcile"
)

// Claim clicks the slot's button and waits for the portal's verdict. A portal
// alert becomes a *reconcile.Rejection carrying the raw message; silence
// means the claim stood.
func (p *Portal) Claim(handle string) error {
	return p.toggleSlot(handle)
}

// Release clicks a reserved slot's button to cancel the reservation, with the
// same alert semantics as Claim.
func (p *Portal) Release(handle string) error {
	return p.toggleSlot(handle)
}

// toggleSlot flips a slot button. The portal uses the same control for
// reserving and unreserving; the current cell state decides the effect.
func (p *Portal) toggleSlot(handle string) error {
	p.drainAlerts()
	if err := p.run(nil,
		chromedp.WaitVisible("#"+handle, chromedp.ByQuery),
		chromedp.Click("#"+handle, chromedp.ByQuery),
	); err != nil {
		return err
	}
	if msg, found := p.awaitAlert(alertTimeout); found {
		return &reconcile.Rejection{Message: msg}
	}
	return nil
}
