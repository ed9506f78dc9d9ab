package enums

import "fmt"

// PayoutStatus tracks settlement of earnings rows.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
)

var validPayoutStatuss = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusProcessing,
	PayoutStatusPaid,
}

// String implements fmt.Stringer.
func (v PayoutStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PayoutStatus.
func (v PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuss {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuss {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}
