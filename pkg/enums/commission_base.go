package enums

import "fmt"

// CommissionBase is the order amount a commission is computed on.
type CommissionBase string

const (
	CommissionBaseSubtotal    CommissionBase = "subtotal"
	CommissionBaseSubtotalTax CommissionBase = "subtotal_tax"
	CommissionBaseFinalAmount CommissionBase = "final_amount"
)

var validCommissionBases = []CommissionBase{
	CommissionBaseSubtotal,
	CommissionBaseSubtotalTax,
	CommissionBaseFinalAmount,
}

// String implements fmt.Stringer.
func (v CommissionBase) String() string {
	return string(v)
}

// IsValid reports whether the value is a known CommissionBase.
func (v CommissionBase) IsValid() bool {
	for _, candidate := range validCommissionBases {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCommissionBase converts raw input into a CommissionBase.
func ParseCommissionBase(value string) (CommissionBase, error) {
	for _, candidate := range validCommissionBases {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid commission base %q", value)
}
