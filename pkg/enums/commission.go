package enums

import "fmt"

// CommissionType selects percentage or flat commission.
type CommissionType string

const (
	CommissionTypePercentage CommissionType = "percentage"
	CommissionTypeFlat       CommissionType = "flat"
)

var validCommissionTypes = []CommissionType{
	CommissionTypePercentage,
	CommissionTypeFlat,
}

// String implements fmt.Stringer.
func (v CommissionType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known CommissionType.
func (v CommissionType) IsValid() bool {
	for _, candidate := range validCommissionTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCommissionType converts raw input into a CommissionType.
func ParseCommissionType(value string) (CommissionType, error) {
	for _, candidate := range validCommissionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid commission type %q", value)
}
