package metrics

import "github.com/Zhannyhong/cdc-bot/core/booking"

// CycleResult captures the outcome of one reconciliation pass for recording.
type CycleResult struct {
	Cycle        string
	Category     booking.Category
	Claimed      int
	Released     int
	Kept         int
	FailedClaims int
	QuotaHit     bool
	EarlierSlots int
}

// Sink records engine activity for observability purposes.
type Sink interface {
	RecordCycle(res CycleResult) error
	RecordScrapeFailure(cat booking.Category) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordCycle(CycleResult) error              { return nil }
func (NopSink) RecordScrapeFailure(booking.Category) error { return nil }
