package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsSplitsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.ObserveRun("maintenance", "incentive-batch", 250*time.Millisecond, nil)
	m.ObserveRun("maintenance", "incentive-batch", 100*time.Millisecond, errors.New("db down"))
	m.ObserveRun("maintenance", "incentive-batch", 50*time.Millisecond, nil)
	m.IncSkipped("dispatch-sweeper")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	runs := findMetricFamily(mfs, "courier_cron_job_runs_total")
	if runs == nil {
		t.Fatalf("runs counter missing")
	}
	byOutcome := map[string]float64{}
	for _, metric := range runs.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "outcome" {
				byOutcome[label.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	if byOutcome["ok"] != 2 || byOutcome["failed"] != 1 {
		t.Fatalf("unexpected outcomes %v", byOutcome)
	}

	if got, err := fetchHistogramSum(mfs, "courier_cron_job_duration_seconds", "job", "incentive-batch"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got < 0.39 || got > 0.41 {
		t.Fatalf("expected duration sum 0.4, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "courier_cron_cycles_skipped_total", "loop", "dispatch-sweeper"); err != nil || got != 1 {
		t.Fatalf("expected one skipped cycle, got %f (%v)", got, err)
	}
}

func TestNilCronJobMetricsIsNoop(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("maintenance", "outbox-retention", time.Second, nil)
	m.IncSkipped("maintenance")
	if NewCronJobMetrics(nil) != nil {
		t.Fatalf("expected nil metrics without a registerer")
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
