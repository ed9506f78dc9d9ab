package enums

import "fmt"

// AgentType distinguishes fleet-employed agents from freelancers.
type AgentType string

const (
	AgentTypeCaptive    AgentType = "captive"
	AgentTypeFreelancer AgentType = "freelancer"
)

var validAgentTypes = []AgentType{
	AgentTypeCaptive,
	AgentTypeFreelancer,
}

// IsValid reports whether the value is a known AgentType.
func (v AgentType) IsValid() bool {
	for _, candidate := range validAgentTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseAgentType converts raw input into a AgentType.
func ParseAgentType(value string) (AgentType, error) {
	for _, candidate := range validAgentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid agent type %q", value)
}
