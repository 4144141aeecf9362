package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Zhannyhong/cdc-bot/core/booking"
	coremetrics "github.com/Zhannyhong/cdc-bot/core/metrics"
)

func TestPromSink_RecordCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}

	err = sink.RecordCycle(coremetrics.CycleResult{
		Cycle:        "abc",
		Category:     booking.Practical,
		Claimed:      2,
		Released:     1,
		FailedClaims: 1,
		QuotaHit:     false,
		EarlierSlots: 3,
	})
	if err != nil {
		t.Fatalf("record cycle: %v", err)
	}

	expected := `
# HELP cdcbot_reconcile_cycles_total Reconciliation passes run per category
# TYPE cdcbot_reconcile_cycles_total counter
cdcbot_reconcile_cycles_total{category="practical",quota_hit="false"} 1
`
	if err := testutil.CollectAndCompare(sink.cycles, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected cycle metrics: %v", err)
	}

	if got := testutil.ToFloat64(sink.slots.WithLabelValues("practical", "claim", "ok")); got != 2 {
		t.Errorf("claim counter: got %v want 2", got)
	}
	if got := testutil.ToFloat64(sink.slots.WithLabelValues("practical", "release", "ok")); got != 1 {
		t.Errorf("release counter: got %v want 1", got)
	}
	if got := testutil.ToFloat64(sink.earlier.WithLabelValues("practical")); got != 3 {
		t.Errorf("earlier gauge: got %v want 3", got)
	}
}

func TestPromSink_RecordScrapeFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	if err := sink.RecordScrapeFailure(booking.Simulator); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if got := testutil.ToFloat64(sink.failures.WithLabelValues("simulator")); got != 1 {
		t.Errorf("failure counter: got %v want 1", got)
	}
}

func TestPromSink_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPromSinkWithRegistry(reg); err != nil {
		t.Fatalf("second registration should reuse collectors: %v", err)
	}
}
