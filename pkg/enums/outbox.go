package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder     OutboxAggregateType = "order"
	AggregateAgent     OutboxAggregateType = "agent"
	AggregateMilestone OutboxAggregateType = "milestone"
	AggregateIncentive OutboxAggregateType = "incentive"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateAgent,
	AggregateMilestone,
	AggregateIncentive,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOfferCreated           OutboxEventType = "offer_created"
	EventOfferWithdrawn         OutboxEventType = "offer_withdrawn"
	EventOrderAssigned          OutboxEventType = "order_assigned"
	EventOrderAllocationFailed  OutboxEventType = "order_allocation_failed"
	EventOrderAutoCanceled      OutboxEventType = "order_auto_canceled"
	EventOrderDelivered         OutboxEventType = "order_delivered"
	EventMilestoneCompleted     OutboxEventType = "milestone_completed"
	EventMilestoneRewardClaimed OutboxEventType = "milestone_reward_claimed"
	EventIncentiveComputed      OutboxEventType = "incentive_computed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOfferCreated,
	EventOfferWithdrawn,
	EventOrderAssigned,
	EventOrderAllocationFailed,
	EventOrderAutoCanceled,
	EventOrderDelivered,
	EventMilestoneCompleted,
	EventMilestoneRewardClaimed,
	EventIncentiveComputed,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
