package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// AgentCandidate is one entry of an order's candidate ledger.
type AgentCandidate struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	AgentID            uuid.UUID             `gorm:"column:agent_id;type:uuid;not null;index"`
	Status             enums.CandidateStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Round              int                   `gorm:"column:round;not null;default:0"`
	Sequence           int                   `gorm:"column:sequence;not null;default:0"`
	DistanceKm         float64               `gorm:"column:distance_km;not null;default:0"`
	BatchID            *uuid.UUID            `gorm:"column:batch_id;type:uuid"`
	IsCurrentCandidate bool                  `gorm:"column:is_current_candidate;not null;default:false"`
	OfferedAt          time.Time             `gorm:"column:offered_at;not null"`
	ExpiresAt          time.Time             `gorm:"column:expires_at;not null"`
	RespondedAt        *time.Time            `gorm:"column:responded_at"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *AgentCandidate) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
