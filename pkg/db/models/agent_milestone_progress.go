package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/ringbuf"
)

// MilestoneHistoryCapacity bounds the per-level history.
const MilestoneHistoryCapacity = 50

// MilestoneCounters are accumulated per level from the moment it unlocks.
type MilestoneCounters struct {
	TotalDeliveries  int64           `json:"total_deliveries"`
	OnTimeDeliveries int64           `json:"on_time_deliveries"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
}

// MilestoneHistoryEntry records the delta a single delivery applied to a level.
type MilestoneHistoryEntry struct {
	OrderID         uuid.UUID       `json:"order_id"`
	At              time.Time       `json:"at"`
	DeltaDeliveries int64           `json:"delta_deliveries"`
	DeltaOnTime     int64           `json:"delta_on_time"`
	DeltaEarnings   decimal.Decimal `json:"delta_earnings"`
	ProgressAfter   float64         `json:"progress_after"`
}

// MilestoneLevelProgress is one level entry inside AgentMilestoneProgress.
type MilestoneLevelProgress struct {
	MilestoneID     uuid.UUID                             `json:"milestone_id"`
	Level           int                                   `json:"level"`
	Counters        MilestoneCounters                     `json:"conditions_progress"`
	OverallProgress float64                               `json:"overall_progress"`
	Status          enums.MilestoneStatus                 `json:"status"`
	History         ringbuf.Buffer[MilestoneHistoryEntry] `json:"history"`
	CompletedAt     *time.Time                            `json:"completed_at,omitempty"`
	ClaimedAt       *time.Time                            `json:"claimed_at,omitempty"`
}

// AgentMilestoneProgress holds every level entry for one agent. Version guards
// concurrent writers.
type AgentMilestoneProgress struct {
	ID        uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	AgentID   uuid.UUID                `gorm:"column:agent_id;type:uuid;not null;uniqueIndex:agent_milestone_progress_agent_key"`
	Levels    []MilestoneLevelProgress `gorm:"column:levels;type:jsonb;serializer:json;not null"`
	Version   int64                    `gorm:"column:version;not null;default:0"`
	CreatedAt time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (AgentMilestoneProgress) TableName() string { return "agent_milestone_progress" }

func (p *AgentMilestoneProgress) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
