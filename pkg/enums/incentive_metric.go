package enums

import "fmt"

// IncentiveMetric names the aggregated value a condition is checked against.
type IncentiveMetric string

const (
	MetricEarnings   IncentiveMetric = "earnings"
	MetricDeliveries IncentiveMetric = "deliveries"
)

var validIncentiveMetrics = []IncentiveMetric{
	MetricEarnings,
	MetricDeliveries,
}

// IsValid reports whether the value is a known IncentiveMetric.
func (v IncentiveMetric) IsValid() bool {
	for _, candidate := range validIncentiveMetrics {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseIncentiveMetric converts raw input into a IncentiveMetric.
func ParseIncentiveMetric(value string) (IncentiveMetric, error) {
	for _, candidate := range validIncentiveMetrics {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid incentive metric %q", value)
}
