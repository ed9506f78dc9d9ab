package enums

import "fmt"

// CandidateStatus is the per-agent offer state inside an order's candidate ledger.
type CandidateStatus string

const (
	CandidateStatusPending  CandidateStatus = "pending"
	CandidateStatusAccepted CandidateStatus = "accepted"
	CandidateStatusRejected CandidateStatus = "rejected"
	CandidateStatusExpired  CandidateStatus = "expired"
)

var validCandidateStatuss = []CandidateStatus{
	CandidateStatusPending,
	CandidateStatusAccepted,
	CandidateStatusRejected,
	CandidateStatusExpired,
}

// String implements fmt.Stringer.
func (v CandidateStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known CandidateStatus.
func (v CandidateStatus) IsValid() bool {
	for _, candidate := range validCandidateStatuss {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCandidateStatus converts raw input into a CandidateStatus.
func ParseCandidateStatus(value string) (CandidateStatus, error) {
	for _, candidate := range validCandidateStatuss {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid candidate status %q", value)
}

// IsTerminal reports whether no further transition is allowed.
func (v CandidateStatus) IsTerminal() bool {
	return v != CandidateStatusPending && v.IsValid()
}
