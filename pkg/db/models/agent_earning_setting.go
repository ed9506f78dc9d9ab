package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// AgentEarningSetting is a fee configuration row. ScopeRefID is the merchant
// or city id and is nil for the global row.
type AgentEarningSetting struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Scope              enums.SettingScope `gorm:"column:scope;type:text;not null;uniqueIndex:agent_earning_settings_scope_key"`
	ScopeRefID         *uuid.UUID         `gorm:"column:scope_ref_id;type:uuid;uniqueIndex:agent_earning_settings_scope_key"`
	BaseFee            decimal.Decimal    `gorm:"column:base_fee;type:numeric(14,4);not null"`
	BaseKm             decimal.Decimal    `gorm:"column:base_km;type:numeric(14,4);not null"`
	PerKmFeeBeyondBase decimal.Decimal    `gorm:"column:per_km_fee_beyond_base;type:numeric(14,4);not null"`
	PeakHourBonus      decimal.Decimal    `gorm:"column:peak_hour_bonus;type:numeric(14,4);not null;default:0"`
	PeakHours          []string           `gorm:"column:peak_hours;type:jsonb;serializer:json"`
	RainBonus          decimal.Decimal    `gorm:"column:rain_bonus;type:numeric(14,4);not null;default:0"`
	IsActive           bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *AgentEarningSetting) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
