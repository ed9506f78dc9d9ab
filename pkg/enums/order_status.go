package enums

import "fmt"

// OrderStatus tracks the dispatch lifecycle of an order.
type OrderStatus string

const (
	OrderStatusUnassigned       OrderStatus = "unassigned"
	OrderStatusOffering         OrderStatus = "offering"
	OrderStatusAssigned         OrderStatus = "assigned"
	OrderStatusInTransit        OrderStatus = "in_transit"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusAllocationFailed OrderStatus = "allocation_failed"
	OrderStatusCanceled         OrderStatus = "canceled"
)

var validOrderStatuss = []OrderStatus{
	OrderStatusUnassigned,
	OrderStatusOffering,
	OrderStatusAssigned,
	OrderStatusInTransit,
	OrderStatusDelivered,
	OrderStatusAllocationFailed,
	OrderStatusCanceled,
}

// String implements fmt.Stringer.
func (v OrderStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known OrderStatus.
func (v OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuss {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into a OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuss {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// IsAssignable reports whether an order in this status may still receive an agent.
func (v OrderStatus) IsAssignable() bool {
	switch v {
	case OrderStatusUnassigned, OrderStatusOffering, OrderStatusAllocationFailed:
		return true
	default:
		return false
	}
}
