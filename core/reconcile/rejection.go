package reconcile

import (
	"errors"
	"strings"
)

// Rejection is a business rejection issued by the booking portal in response
// to a claim or release attempt. It carries the raw site message and is
// handled in-line by the reconciler, never surfaced to the monitoring loop.
type Rejection struct {
	Message string
}

func (r *Rejection) Error() string { return "portal rejected operation: " + r.Message }

// AsRejection extracts a portal rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// quotaMarkers are fragments of portal messages signalling that the account
// hit a hard booking limit for the category. Any of them stops the claim pass.
var quotaMarkers = []string{
	"Store Value:",
	"before",
	"exceeded the maximum number",
}

// IsQuotaExceeded reports whether the portal message signals a quota or
// timing limit.
func IsQuotaExceeded(msg string) bool {
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsBackToBack reports whether the portal refused an adjacent simulator slot.
func IsBackToBack(msg string) bool {
	return strings.Contains(msg, "Back to Back session is not allowed")
}

// IsNonComputerised reports whether the portal raised the non-computerised
// interim alert, which must be dismissed once more before the outcome of the
// claim is known.
func IsNonComputerised(msg string) bool {
	return strings.Contains(msg, "non-computerised")
}
