package enums

import "fmt"

// AllocationMethod selects the dispatch strategy.
type AllocationMethod string

const (
	AllocationOneByOne         AllocationMethod = "one_by_one"
	AllocationSendToAll        AllocationMethod = "send_to_all"
	AllocationRoundRobin       AllocationMethod = "round_robin"
	AllocationNearestAvailable AllocationMethod = "nearest_available"
	AllocationFIFO             AllocationMethod = "fifo"
	AllocationPooling          AllocationMethod = "pooling"
	AllocationManual           AllocationMethod = "manual"
)

var validAllocationMethods = []AllocationMethod{
	AllocationOneByOne,
	AllocationSendToAll,
	AllocationRoundRobin,
	AllocationNearestAvailable,
	AllocationFIFO,
	AllocationPooling,
	AllocationManual,
}

// String implements fmt.Stringer.
func (v AllocationMethod) String() string {
	return string(v)
}

// IsValid reports whether the value is a known AllocationMethod.
func (v AllocationMethod) IsValid() bool {
	for _, candidate := range validAllocationMethods {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseAllocationMethod converts raw input into a AllocationMethod.
func ParseAllocationMethod(value string) (AllocationMethod, error) {
	for _, candidate := range validAllocationMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid allocation method %q", value)
}

// IsAutomatic reports whether the method is a strategy the dispatcher can run.
func (v AllocationMethod) IsAutomatic() bool {
	return v.IsValid() && v != AllocationManual
}
