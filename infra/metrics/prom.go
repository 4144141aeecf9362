package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Zhannyhong/cdc-bot/core/booking"
	coremetrics "github.com/Zhannyhong/cdc-bot/core/metrics"
)

// PromSink records engine activity in Prometheus metrics.
type PromSink struct {
	cycles   *prometheus.CounterVec
	slots    *prometheus.CounterVec
	failures *prometheus.CounterVec
	earlier  *prometheus.GaugeVec
}

// NewPromSink registers the watcher metrics on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global one.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cdcbot_reconcile_cycles_total",
		Help: "Reconciliation passes run per category",
	}, []string{"category", "quota_hit"})
	slots := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cdcbot_slot_operations_total",
		Help: "Slot claims and releases per category and outcome",
	}, []string{"category", "operation", "outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cdcbot_scrape_failures_total",
		Help: "Scrape failures per category",
	}, []string{"category"})
	earlier := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cdcbot_earlier_slots",
		Help: "Earlier-available slots seen at the end of the last pass",
	}, []string{"category"})

	if err := register(reg, &cycles); err != nil {
		return nil, err
	}
	if err := register(reg, &slots); err != nil {
		return nil, err
	}
	if err := register(reg, &failures); err != nil {
		return nil, err
	}
	if err := registerGauge(reg, &earlier); err != nil {
		return nil, err
	}
	return &PromSink{cycles: cycles, slots: slots, failures: failures, earlier: earlier}, nil
}

func register(reg prometheus.Registerer, vec **prometheus.CounterVec) error {
	if err := reg.Register(*vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			*vec = are.ExistingCollector.(*prometheus.CounterVec)
			return nil
		}
		return err
	}
	return nil
}

func registerGauge(reg prometheus.Registerer, vec **prometheus.GaugeVec) error {
	if err := reg.Register(*vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			*vec = are.ExistingCollector.(*prometheus.GaugeVec)
			return nil
		}
		return err
	}
	return nil
}

// RecordCycle increments the cycle counters and per-slot operation counters.
func (s *PromSink) RecordCycle(res coremetrics.CycleResult) error {
	cat := res.Category.String()
	quotaHit := "false"
	if res.QuotaHit {
		quotaHit = "true"
	}
	s.cycles.WithLabelValues(cat, quotaHit).Inc()
	s.slots.WithLabelValues(cat, "claim", "ok").Add(float64(res.Claimed))
	s.slots.WithLabelValues(cat, "claim", "rejected").Add(float64(res.FailedClaims))
	s.slots.WithLabelValues(cat, "release", "ok").Add(float64(res.Released))
	s.earlier.WithLabelValues(cat).Set(float64(res.EarlierSlots))
	return nil
}

// RecordScrapeFailure increments the scrape-failure counter.
func (s *PromSink) RecordScrapeFailure(cat booking.Category) error {
	s.failures.WithLabelValues(cat.String()).Inc()
	return nil
}

// StartPromServer exposes /metrics on the given port until ctx is cancelled.
func StartPromServer(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
