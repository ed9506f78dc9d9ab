package enums

import "fmt"

// AgentStatus reflects whether an agent can take new work.
type AgentStatus string

const (
	AgentStatusAvailable AgentStatus = "available"
	AgentStatusBusy      AgentStatus = "busy"
	AgentStatusOffline   AgentStatus = "offline"
)

var validAgentStatuss = []AgentStatus{
	AgentStatusAvailable,
	AgentStatusBusy,
	AgentStatusOffline,
}

// String implements fmt.Stringer.
func (v AgentStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known AgentStatus.
func (v AgentStatus) IsValid() bool {
	for _, candidate := range validAgentStatuss {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseAgentStatus converts raw input into a AgentStatus.
func ParseAgentStatus(value string) (AgentStatus, error) {
	for _, candidate := range validAgentStatuss {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid agent status %q", value)
}
