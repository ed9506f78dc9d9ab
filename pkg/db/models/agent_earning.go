package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// AgentEarning is the per-order earning of an agent. TotalEarning is derived
// and recomputed on every write.
type AgentEarning struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	AgentID              uuid.UUID          `gorm:"column:agent_id;type:uuid;not null;index"`
	OrderID              uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:agent_earnings_order_id_key"`
	BaseDeliveryFee      decimal.Decimal    `gorm:"column:base_delivery_fee;type:numeric(14,4);not null"`
	DistanceKm           decimal.Decimal    `gorm:"column:distance_km;type:numeric(14,4);not null"`
	DistanceBeyondBaseKm decimal.Decimal    `gorm:"column:distance_beyond_base_km;type:numeric(14,4);not null"`
	ExtraDistanceFee     decimal.Decimal    `gorm:"column:extra_distance_fee;type:numeric(14,4);not null"`
	SurgeAmount          decimal.Decimal    `gorm:"column:surge_amount;type:numeric(14,4);not null"`
	BonusAmount          decimal.Decimal    `gorm:"column:bonus_amount;type:numeric(14,4);not null"`
	TipAmount            decimal.Decimal    `gorm:"column:tip_amount;type:numeric(14,4);not null"`
	IncentiveAmount      decimal.Decimal    `gorm:"column:incentive_amount;type:numeric(14,4);not null"`
	TotalEarning         decimal.Decimal    `gorm:"column:total_earning;type:numeric(14,4);not null"`
	PayoutStatus         enums.PayoutStatus `gorm:"column:payout_status;type:text;not null;default:'pending'"`
	SettingScope         enums.SettingScope `gorm:"column:setting_scope;type:text;not null"`
	SettingID            uuid.UUID          `gorm:"column:setting_id;type:uuid;not null"`
	FallbackReason       *string            `gorm:"column:fallback_reason"`
	OnTime               bool               `gorm:"column:on_time;not null;default:false"`
	EarnedAt             time.Time          `gorm:"column:earned_at;not null;index"`
	CreatedAt            time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// RecomputeTotal sets TotalEarning to the sum of its components.
func (e *AgentEarning) RecomputeTotal() {
	e.TotalEarning = e.BaseDeliveryFee.
		Add(e.ExtraDistanceFee).
		Add(e.SurgeAmount).
		Add(e.BonusAmount).
		Add(e.TipAmount).
		Add(e.IncentiveAmount)
}

func (e *AgentEarning) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

func (e *AgentEarning) BeforeSave(*gorm.DB) error {
	e.RecomputeTotal()
	return nil
}
