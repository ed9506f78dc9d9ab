package enums

import "fmt"

// IncentivePlanType determines the aggregation window of a plan.
type IncentivePlanType string

const (
	PlanTypeDaily   IncentivePlanType = "daily"
	PlanTypeWeekly  IncentivePlanType = "weekly"
	PlanTypeMonthly IncentivePlanType = "monthly"
)

var validIncentivePlanTypes = []IncentivePlanType{
	PlanTypeDaily,
	PlanTypeWeekly,
	PlanTypeMonthly,
}

// String implements fmt.Stringer.
func (v IncentivePlanType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known IncentivePlanType.
func (v IncentivePlanType) IsValid() bool {
	for _, candidate := range validIncentivePlanTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseIncentivePlanType converts raw input into a IncentivePlanType.
func ParseIncentivePlanType(value string) (IncentivePlanType, error) {
	for _, candidate := range validIncentivePlanTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid incentive plan type %q", value)
}
