package deliveries

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// Repository applies the order and agent writes of a delivery.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkInTransit(ctx context.Context, orderID, agentID uuid.UUID) (bool, error)
	MarkDelivered(ctx context.Context, orderID, agentID uuid.UUID, at time.Time) (bool, error)
	ReleaseAgent(ctx context.Context, agentID uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the delivery repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) MarkInTransit(ctx context.Context, orderID, agentID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND assigned_agent_id = ? AND status = ?", orderID, agentID, enums.OrderStatusAssigned).
		Update("status", enums.OrderStatusInTransit)
	return res.RowsAffected == 1, res.Error
}

func (r *repository) MarkDelivered(ctx context.Context, orderID, agentID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND assigned_agent_id = ? AND status IN ?", orderID, agentID,
			[]enums.OrderStatus{enums.OrderStatusAssigned, enums.OrderStatusInTransit}).
		Updates(map[string]any{
			"status":       enums.OrderStatusDelivered,
			"delivered_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

// ReleaseAgent frees one task slot. A busy agent becomes available again.
func (r *repository) ReleaseAgent(ctx context.Context, agentID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Agent{}).
		Where("id = ?", agentID).
		Updates(map[string]any{
			"active_tasks": gorm.Expr("CASE WHEN active_tasks > 0 THEN active_tasks - 1 ELSE 0 END"),
			"available_since": gorm.Expr("CASE WHEN status = ? THEN ? ELSE available_since END",
				enums.AgentStatusBusy, at),
			"status": gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END",
				enums.AgentStatusBusy, enums.AgentStatusAvailable),
		}).Error
}
