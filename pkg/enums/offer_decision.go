package enums

import "fmt"

// OfferDecision is an agent's response to an offer.
type OfferDecision string

const (
	OfferDecisionAccept OfferDecision = "accept"
	OfferDecisionReject OfferDecision = "reject"
)

var validOfferDecisions = []OfferDecision{
	OfferDecisionAccept,
	OfferDecisionReject,
}

// String implements fmt.Stringer.
func (v OfferDecision) String() string {
	return string(v)
}

// IsValid reports whether the value is a known OfferDecision.
func (v OfferDecision) IsValid() bool {
	for _, candidate := range validOfferDecisions {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseOfferDecision converts raw input into a OfferDecision.
func ParseOfferDecision(value string) (OfferDecision, error) {
	for _, candidate := range validOfferDecisions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid offer decision %q", value)
}
