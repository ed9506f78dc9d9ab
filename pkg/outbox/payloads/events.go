package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// OfferCreatedEvent asks an agent to accept or reject one or more orders.
type OfferCreatedEvent struct {
	AgentID     uuid.UUID              `json:"agent_id"`
	OrderID     uuid.UUID              `json:"order_id"`
	BatchOrders []uuid.UUID            `json:"batch_orders,omitempty"`
	Method      enums.AllocationMethod `json:"method"`
	DistanceKm  float64                `json:"distance_km"`
	ExpiresAt   time.Time              `json:"expires_at"`
}

// OfferWithdrawnEvent tells an agent a pending offer is gone.
type OfferWithdrawnEvent struct {
	AgentID uuid.UUID `json:"agent_id"`
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

// OrderAssignedEvent is emitted when an order gets its agent.
type OrderAssignedEvent struct {
	OrderID  uuid.UUID              `json:"order_id"`
	AgentID  uuid.UUID              `json:"agent_id"`
	Method   enums.AllocationMethod `json:"method"`
	Manual   bool                   `json:"manual"`
	Assigned time.Time              `json:"assigned_at"`
}

// OrderAllocationFailedEvent hands an order to the manual fallback.
type OrderAllocationFailedEvent struct {
	OrderID      uuid.UUID              `json:"order_id"`
	Method       enums.AllocationMethod `json:"method"`
	Reason       string                 `json:"reason"`
	AutoCancelAt *time.Time             `json:"auto_cancel_at,omitempty"`
}

// OrderAutoCanceledEvent is emitted when an unallocated order times out.
type OrderAutoCanceledEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	CanceledAt time.Time `json:"canceled_at"`
}

// OrderDeliveredEvent carries the earning recorded for a completed delivery.
type OrderDeliveredEvent struct {
	OrderID      uuid.UUID       `json:"order_id"`
	AgentID      uuid.UUID       `json:"agent_id"`
	TotalEarning decimal.Decimal `json:"total_earning"`
	OnTime       bool            `json:"on_time"`
	DeliveredAt  time.Time       `json:"delivered_at"`
}

// MilestoneEvent covers level completion and reward claims.
type MilestoneEvent struct {
	AgentID      uuid.UUID       `json:"agent_id"`
	MilestoneID  uuid.UUID       `json:"milestone_id"`
	Level        int             `json:"level"`
	RewardType   string          `json:"reward_type,omitempty"`
	RewardAmount decimal.Decimal `json:"reward_amount"`
	At           time.Time       `json:"at"`
}

// IncentiveComputedEvent reports a batch-computed incentive row.
type IncentiveComputedEvent struct {
	AgentID          uuid.UUID       `json:"agent_id"`
	PlanID           uuid.UUID       `json:"plan_id"`
	PeriodIdentifier string          `json:"period_identifier"`
	IncentiveAmount  decimal.Decimal `json:"incentive_amount"`
}
