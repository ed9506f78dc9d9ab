package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics tracks offer flow through the candidate ledger.
type DispatchMetrics struct {
	offers       *prometheus.CounterVec
	resolutions  *prometheus.CounterVec
	failures     *prometheus.CounterVec
	timeToAssign *prometheus.HistogramVec
}

// NewDispatchMetrics registers dispatch metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	offers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "dispatch",
		Name:      "offers_total",
		Help:      "Offers sent to agents.",
	}, []string{"method"})
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "dispatch",
		Name:      "offer_resolutions_total",
		Help:      "Offers leaving the pending state, by outcome.",
	}, []string{"method", "outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "dispatch",
		Name:      "allocation_failures_total",
		Help:      "Orders that exhausted every candidate.",
	}, []string{"method"})
	timeToAssign := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "courier",
		Subsystem: "dispatch",
		Name:      "time_to_assign_seconds",
		Help:      "Time from first offer to acceptance.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"method"})
	reg.MustRegister(offers, resolutions, failures, timeToAssign)
	return &DispatchMetrics{
		offers:       offers,
		resolutions:  resolutions,
		failures:     failures,
		timeToAssign: timeToAssign,
	}
}

// AddOffers counts n offers created for method.
func (d *DispatchMetrics) AddOffers(method string, n int) {
	if d == nil || d.offers == nil || n <= 0 {
		return
	}
	d.offers.WithLabelValues(normalizeLabel(method)).Add(float64(n))
}

// IncResolution counts an offer leaving pending with outcome accepted, rejected or expired.
func (d *DispatchMetrics) IncResolution(method, outcome string) {
	if d == nil || d.resolutions == nil {
		return
	}
	d.resolutions.WithLabelValues(normalizeLabel(method), normalizeLabel(outcome)).Inc()
}

// IncFailure counts an allocation failure.
func (d *DispatchMetrics) IncFailure(method string) {
	if d == nil || d.failures == nil {
		return
	}
	d.failures.WithLabelValues(normalizeLabel(method)).Inc()
}

// ObserveTimeToAssign records the wait between first offer and acceptance.
func (d *DispatchMetrics) ObserveTimeToAssign(method string, wait time.Duration) {
	if d == nil || d.timeToAssign == nil || wait < 0 {
		return
	}
	d.timeToAssign.WithLabelValues(normalizeLabel(method)).Observe(wait.Seconds())
}
