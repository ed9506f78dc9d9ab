package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/geo"
)

// SurgeZone is a circular geofence that adds a surge component while active.
type SurgeZone struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name       string          `gorm:"column:name;not null"`
	CityID     *uuid.UUID      `gorm:"column:city_id;type:uuid"`
	CenterLat  float64         `gorm:"column:center_lat;not null"`
	CenterLng  float64         `gorm:"column:center_lng;not null"`
	RadiusKm   float64         `gorm:"column:radius_km;not null"`
	SurgeType  enums.SurgeType `gorm:"column:surge_type;type:text;not null"`
	SurgeValue decimal.Decimal `gorm:"column:surge_value;type:numeric(14,4);not null"`
	StartsAt   *time.Time      `gorm:"column:starts_at"`
	EndsAt     *time.Time      `gorm:"column:ends_at"`
	IsActive   bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (z *SurgeZone) BeforeCreate(*gorm.DB) error {
	ensureID(&z.ID)
	return nil
}

// Center returns the zone center.
func (z SurgeZone) Center() geo.Point {
	return geo.Point{Lat: z.CenterLat, Lng: z.CenterLng}
}

// ActiveAt reports whether the zone applies at the given instant.
func (z SurgeZone) ActiveAt(at time.Time) bool {
	if !z.IsActive {
		return false
	}
	if z.StartsAt != nil && at.Before(*z.StartsAt) {
		return false
	}
	if z.EndsAt != nil && !at.Before(*z.EndsAt) {
		return false
	}
	return true
}
