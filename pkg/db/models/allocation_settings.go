package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// AllocationSettingsID is the primary key of the singleton settings row.
const AllocationSettingsID = 1

// AllocationSettings is the singleton dispatch configuration. Parameters is
// keyed by allocation method; each value is that method's parameter bag.
type AllocationSettings struct {
	ID                      int                    `gorm:"column:id;primaryKey"`
	IsAutoAllocationEnabled bool                   `gorm:"column:is_auto_allocation_enabled;not null;default:true"`
	Method                  enums.AllocationMethod `gorm:"column:method;type:text;not null;default:'one_by_one'"`
	Parameters              datatypes.JSONMap      `gorm:"column:parameters;type:jsonb"`
	CreatedAt               time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (AllocationSettings) TableName() string { return "allocation_settings" }

// ParametersFor returns the bag for method, or an empty bag.
func (s AllocationSettings) ParametersFor(method enums.AllocationMethod) map[string]any {
	raw, ok := s.Parameters[string(method)]
	if !ok {
		return map[string]any{}
	}
	if bag, ok := raw.(map[string]any); ok {
		return bag
	}
	return map[string]any{}
}
