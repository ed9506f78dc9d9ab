package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

// CronJobMetrics tracks the cron worker loops: one run counter split by
// outcome, one duration histogram and a counter of cycles skipped because
// another replica held the loop lock. A nil value is a no-op.
type CronJobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	skipped  *prometheus.CounterVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "cron",
			Name:      "job_runs_total",
			Help:      "Cron job runs by loop, job and outcome.",
		}, []string{"loop", "job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "courier",
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Cron job wall time.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		}, []string{"loop", "job"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "cron",
			Name:      "cycles_skipped_total",
			Help:      "Cycles skipped because the loop lock was held elsewhere.",
		}, []string{"loop"}),
	}
	reg.MustRegister(m.runs, m.duration, m.skipped)
	return m
}

// ObserveRun records one job execution; a non-nil err counts as failed.
func (m *CronJobMetrics) ObserveRun(loop, job string, took time.Duration, err error) {
	if m == nil {
		return
	}
	loop, job = normalizeLabel(loop), normalizeLabel(job)
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeFailed
	}
	m.runs.WithLabelValues(loop, job, outcome).Inc()
	m.duration.WithLabelValues(loop, job).Observe(took.Seconds())
}

func (m *CronJobMetrics) IncSkipped(loop string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(normalizeLabel(loop)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
