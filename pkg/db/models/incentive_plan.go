package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// IncentiveCondition is one threshold of a plan. A zero IncentiveAmount falls
// back to the plan-level amount.
type IncentiveCondition struct {
	Metric          enums.IncentiveMetric `json:"metric"`
	Comparator      enums.Comparator      `json:"comparator"`
	Threshold       decimal.Decimal       `json:"threshold"`
	IncentiveAmount decimal.Decimal       `json:"incentive_amount"`
}

// IncentivePlan rewards agents whose aggregated earnings in a period window
// satisfy threshold conditions. ValidTo nil means open-ended.
type IncentivePlan struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Name            string                  `gorm:"column:name;not null"`
	PlanType        enums.IncentivePlanType `gorm:"column:plan_type;type:text;not null"`
	Conditions      []IncentiveCondition    `gorm:"column:conditions;type:jsonb;serializer:json;not null"`
	IncentiveAmount decimal.Decimal         `gorm:"column:incentive_amount;type:numeric(14,4);not null;default:0"`
	CityID          *uuid.UUID              `gorm:"column:city_id;type:uuid"`
	ValidFrom       time.Time               `gorm:"column:valid_from;not null"`
	ValidTo         *time.Time              `gorm:"column:valid_to"`
	IsActive        bool                    `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *IncentivePlan) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ValidAt reports whether the plan's validity interval contains at.
func (p IncentivePlan) ValidAt(at time.Time) bool {
	if !p.IsActive || at.Before(p.ValidFrom) {
		return false
	}
	return p.ValidTo == nil || !at.After(*p.ValidTo)
}
