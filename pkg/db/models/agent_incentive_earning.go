package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// AgentIncentiveEarning is the incentive computed for one agent, plan and
// period. Batch runs overwrite the amount in place.
type AgentIncentiveEarning struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	AgentID          uuid.UUID          `gorm:"column:agent_id;type:uuid;not null;uniqueIndex:agent_incentive_earnings_period_key"`
	PlanID           uuid.UUID          `gorm:"column:plan_id;type:uuid;not null;uniqueIndex:agent_incentive_earnings_period_key"`
	PeriodIdentifier string             `gorm:"column:period_identifier;not null;uniqueIndex:agent_incentive_earnings_period_key"`
	PeriodStart      time.Time          `gorm:"column:period_start;not null"`
	PeriodEnd        time.Time          `gorm:"column:period_end;not null"`
	EarningsInWindow decimal.Decimal    `gorm:"column:earnings_in_window;type:numeric(14,4);not null"`
	DeliveryCount    int64              `gorm:"column:delivery_count;not null;default:0"`
	IncentiveAmount  decimal.Decimal    `gorm:"column:incentive_amount;type:numeric(14,4);not null"`
	PayoutStatus     enums.PayoutStatus `gorm:"column:payout_status;type:text;not null;default:'pending'"`
	ComputedAt       time.Time          `gorm:"column:computed_at;not null"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *AgentIncentiveEarning) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
