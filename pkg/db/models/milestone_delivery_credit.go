package models

import (
	"time"

	"github.com/google/uuid"
)

// MilestoneDeliveryCredit marks an order whose delivery already counted
// toward its agent's milestones.
type MilestoneDeliveryCredit struct {
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;primaryKey"`
	AgentID    uuid.UUID `gorm:"column:agent_id;type:uuid;not null;index:milestone_delivery_credits_agent_idx"`
	CreditedAt time.Time `gorm:"column:credited_at;not null"`
}

func (MilestoneDeliveryCredit) TableName() string { return "milestone_delivery_credits" }
