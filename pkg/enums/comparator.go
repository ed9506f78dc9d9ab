package enums

import "fmt"

// Comparator is used by incentive plan threshold conditions.
type Comparator string

const (
	ComparatorGT  Comparator = "gt"
	ComparatorGTE Comparator = "gte"
	ComparatorLT  Comparator = "lt"
	ComparatorLTE Comparator = "lte"
	ComparatorEQ  Comparator = "eq"
)

var validComparators = []Comparator{
	ComparatorGT,
	ComparatorGTE,
	ComparatorLT,
	ComparatorLTE,
	ComparatorEQ,
}

// IsValid reports whether the value is a known Comparator.
func (v Comparator) IsValid() bool {
	for _, candidate := range validComparators {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseComparator converts raw input into a Comparator.
func ParseComparator(value string) (Comparator, error) {
	for _, candidate := range validComparators {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid comparator %q", value)
}
