package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// CommissionSetting is a platform commission rule for a scope.
type CommissionSetting struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Scope          enums.SettingScope   `gorm:"column:scope;type:text;not null;uniqueIndex:commission_settings_scope_key"`
	ScopeRefID     *uuid.UUID           `gorm:"column:scope_ref_id;type:uuid;uniqueIndex:commission_settings_scope_key"`
	CommissionType enums.CommissionType `gorm:"column:commission_type;type:text;not null"`
	Value          decimal.Decimal      `gorm:"column:value;type:numeric(14,4);not null"`
	Base           enums.CommissionBase `gorm:"column:base;type:text;not null;default:'subtotal'"`
	IsActive       bool                 `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *CommissionSetting) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
