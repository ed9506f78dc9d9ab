package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/geo"
)

// Order is the dispatchable unit: one restaurant pickup and one drop.
type Order struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID       uuid.UUID              `gorm:"column:merchant_id;type:uuid;not null"`
	CityID           *uuid.UUID             `gorm:"column:city_id;type:uuid"`
	Status           enums.OrderStatus      `gorm:"column:status;type:text;not null;default:'unassigned'"`
	AssignedAgentID  *uuid.UUID             `gorm:"column:assigned_agent_id;type:uuid"`
	AllocationMethod enums.AllocationMethod `gorm:"column:allocation_method;type:text"`
	PickupLat        float64                `gorm:"column:pickup_lat;not null"`
	PickupLng        float64                `gorm:"column:pickup_lng;not null"`
	DropLat          float64                `gorm:"column:drop_lat;not null"`
	DropLng          float64                `gorm:"column:drop_lng;not null"`
	DistanceKm       *float64               `gorm:"column:distance_km"`
	SubtotalAmount   decimal.Decimal        `gorm:"column:subtotal_amount;type:numeric(14,4);not null;default:0"`
	TaxAmount        decimal.Decimal        `gorm:"column:tax_amount;type:numeric(14,4);not null;default:0"`
	FinalAmount      decimal.Decimal        `gorm:"column:final_amount;type:numeric(14,4);not null;default:0"`
	TipAmount        decimal.Decimal        `gorm:"column:tip_amount;type:numeric(14,4);not null;default:0"`
	DispatchRound    int                    `gorm:"column:dispatch_round;not null;default:0"`
	DispatchSnapshot *AllocationSnapshot    `gorm:"column:dispatch_snapshot;type:jsonb;serializer:json"`
	BatchID          *uuid.UUID             `gorm:"column:batch_id;type:uuid"`
	FailureReason    *string                `gorm:"column:failure_reason"`
	AutoCancelAt     *time.Time             `gorm:"column:auto_cancel_at"`
	AssignedAt       *time.Time             `gorm:"column:assigned_at"`
	DeliveredAt      *time.Time             `gorm:"column:delivered_at"`
	CanceledAt       *time.Time             `gorm:"column:canceled_at"`
	Candidates       []AgentCandidate       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// Pickup returns the restaurant location.
func (o Order) Pickup() geo.Point {
	return geo.Point{Lat: o.PickupLat, Lng: o.PickupLng}
}

// Drop returns the customer location.
func (o Order) Drop() geo.Point {
	return geo.Point{Lat: o.DropLat, Lng: o.DropLng}
}

// AllocationSnapshot freezes the allocation settings an order was dispatched
// with. Later settings writes never reach in-flight orders.
type AllocationSnapshot struct {
	Method     enums.AllocationMethod `json:"method"`
	Parameters map[string]any         `json:"parameters"`
	CapturedAt time.Time              `json:"captured_at"`
}
