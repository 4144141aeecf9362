package reconcile

import "github.com/Zhannyhong/cdc-bot/core/booking"

// SlotClaimed is published on the event bus after a successful claim.
type SlotClaimed struct {
	Category booking.Category
	Day      string
	Time     string
}

// SlotReleased is published after a successful release.
type SlotReleased struct {
	Category booking.Category
	Day      string
	Time     string
}

// ClaimRejected is published when the portal refused a claim.
type ClaimRejected struct {
	Category booking.Category
	Day      string
	Time     string
	Reason   string
}

// ReleaseRejected is published when the portal refused a release.
type ReleaseRejected struct {
	Category booking.Category
	Day      string
	Time     string
	Reason   string
}
