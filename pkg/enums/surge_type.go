package enums

import "fmt"

// SurgeType controls how a surge zone value is applied.
type SurgeType string

const (
	SurgeTypeFixed      SurgeType = "fixed"
	SurgeTypePercentage SurgeType = "percentage"
)

var validSurgeTypes = []SurgeType{
	SurgeTypeFixed,
	SurgeTypePercentage,
}

// IsValid reports whether the value is a known SurgeType.
func (v SurgeType) IsValid() bool {
	for _, candidate := range validSurgeTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseSurgeType converts raw input into a SurgeType.
func ParseSurgeType(value string) (SurgeType, error) {
	for _, candidate := range validSurgeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid surge type %q", value)
}
