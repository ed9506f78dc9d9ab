package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	route := "/v1/orders/{orderId}/dispatch"
	m.Observe("POST", route, 200, 40*time.Millisecond)
	m.Observe("POST", route, 200, 60*time.Millisecond)
	m.Observe("POST", route, 409, 10*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "courier_http_requests_total", "status", "200"); err != nil || got != 2 {
		t.Fatalf("expected 2 ok requests, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "courier_http_request_duration_seconds", "route", route); err != nil || got < 0.1 {
		t.Fatalf("expected latency sum of at least 0.1s, got %f err=%v", got, err)
	}

	var nilMetrics *HTTPMetrics
	nilMetrics.Observe("GET", "/healthz", 200, time.Millisecond)
	NewHTTPMetrics(nil).Observe("GET", "/healthz", 200, time.Millisecond)
}
