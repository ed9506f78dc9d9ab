package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MilestoneConditions are the lifetime targets of a level. Zero targets are
// ignored.
type MilestoneConditions struct {
	TotalDeliveries  int64           `json:"total_deliveries"`
	OnTimeDeliveries int64           `json:"on_time_deliveries"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
}

// MilestoneReward is one level of the milestone ladder.
type MilestoneReward struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Level         int                 `gorm:"column:level;not null;uniqueIndex:milestone_rewards_level_key"`
	Name          string              `gorm:"column:name;not null"`
	Conditions    MilestoneConditions `gorm:"column:conditions;type:jsonb;serializer:json;not null"`
	RewardType    string              `gorm:"column:reward_type;not null;default:'cash'"`
	RewardAmount  decimal.Decimal     `gorm:"column:reward_amount;type:numeric(14,4);not null;default:0"`
	RewardPayload datatypes.JSON      `gorm:"column:reward_payload;type:jsonb"`
	IsActive      bool                `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *MilestoneReward) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
