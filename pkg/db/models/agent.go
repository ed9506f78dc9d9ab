package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/geo"
)

// Agent is a delivery agent as seen by the dispatcher.
type Agent struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Name           string            `gorm:"column:name;not null"`
	Type           enums.AgentType   `gorm:"column:type;type:text;not null;default:'freelancer'"`
	Status         enums.AgentStatus `gorm:"column:status;type:text;not null;default:'offline'"`
	CityID         *uuid.UUID        `gorm:"column:city_id;type:uuid"`
	Rating         float64           `gorm:"column:rating;not null;default:0"`
	Lat            float64           `gorm:"column:lat;not null;default:0"`
	Lng            float64           `gorm:"column:lng;not null;default:0"`
	ActiveTasks    int               `gorm:"column:active_tasks;not null;default:0"`
	AvailableSince *time.Time        `gorm:"column:available_since"`
	LastAssignedAt *time.Time        `gorm:"column:last_assigned_at"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Agent) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// Location returns the agent's last reported position.
func (a Agent) Location() geo.Point {
	return geo.Point{Lat: a.Lat, Lng: a.Lng}
}
