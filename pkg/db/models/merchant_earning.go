package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MerchantEarning stores the commission split computed for an order.
type MerchantEarning struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex:merchant_earnings_order_id_key"`
	MerchantID         uuid.UUID       `gorm:"column:merchant_id;type:uuid;not null;index"`
	SettingID          uuid.UUID       `gorm:"column:setting_id;type:uuid;not null"`
	CommissionBase     decimal.Decimal `gorm:"column:commission_base;type:numeric(14,4);not null"`
	CommissionAmount   decimal.Decimal `gorm:"column:commission_amount;type:numeric(14,4);not null"`
	MerchantNetEarning decimal.Decimal `gorm:"column:merchant_net_earning;type:numeric(14,4);not null"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (e *MerchantEarning) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
