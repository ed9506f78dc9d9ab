package dispatch

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/geo"
)

// AgentDirectory answers who can take work near a point.
type AgentDirectory interface {
	// Available lists AVAILABLE agents within radiusKm of center.
	Available(ctx context.Context, center geo.Point, radiusKm float64) ([]models.Agent, error)
	// ActivePickups returns the pickup points of orders each agent carries.
	ActivePickups(ctx context.Context, agentIDs []uuid.UUID) (map[uuid.UUID][]geo.Point, error)
}

type gormDirectory struct {
	db *gorm.DB
}

// NewAgentDirectory returns the agents-table directory.
func NewAgentDirectory(db *gorm.DB) AgentDirectory {
	return &gormDirectory{db: db}
}

func (d *gormDirectory) Available(ctx context.Context, center geo.Point, radiusKm float64) ([]models.Agent, error) {
	box := geo.BoundsAround(center, radiusKm)
	var rows []models.Agent
	if err := d.db.WithContext(ctx).
		Where("status = ?", enums.AgentStatusAvailable).
		Where("lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?", box.MinLat, box.MaxLat, box.MinLng, box.MaxLng).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, a := range rows {
		if geo.Within(center, a.Location(), radiusKm) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *gormDirectory) ActivePickups(ctx context.Context, agentIDs []uuid.UUID) (map[uuid.UUID][]geo.Point, error) {
	out := make(map[uuid.UUID][]geo.Point, len(agentIDs))
	if len(agentIDs) == 0 {
		return out, nil
	}
	var orders []models.Order
	if err := d.db.WithContext(ctx).
		Select("id", "assigned_agent_id", "pickup_lat", "pickup_lng").
		Where("assigned_agent_id IN ? AND status IN ?", agentIDs, []enums.OrderStatus{
			enums.OrderStatusAssigned, enums.OrderStatusInTransit,
		}).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	for _, o := range orders {
		if o.AssignedAgentID == nil {
			continue
		}
		out[*o.AssignedAgentID] = append(out[*o.AssignedAgentID], o.Pickup())
	}
	return out, nil
}
