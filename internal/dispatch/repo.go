package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/geo"
)

// Repository is the order store used by the coordinator. Every state change
// is a conditional update; a false result means another writer got there
// first.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	ListCandidates(ctx context.Context, orderID uuid.UUID) (Ledger, error)
	ListBatchPending(ctx context.Context, batchID, agentID uuid.UUID) ([]models.AgentCandidate, error)
	CountPending(ctx context.Context, orderID uuid.UUID) (int64, error)

	StartDispatch(ctx context.Context, orderID uuid.UUID, snap models.AllocationSnapshot) (bool, error)
	AdvanceRound(ctx context.Context, orderID uuid.UUID, fromRound int, batchID *uuid.UUID) (bool, error)
	ClaimCompanion(ctx context.Context, companion models.Order, batchID uuid.UUID, snap models.AllocationSnapshot) (bool, error)
	ReleaseCompanions(ctx context.Context, batchID uuid.UUID) (int64, error)
	ClearCurrent(ctx context.Context, orderID uuid.UUID) error
	CreateCandidates(ctx context.Context, entries []models.AgentCandidate) error

	AcceptCandidate(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	RejectCandidate(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ExpireCandidate(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ExpirePending(ctx context.Context, orderID uuid.UUID, now time.Time) ([]models.AgentCandidate, error)

	AssignOrder(ctx context.Context, orderID, agentID uuid.UUID, now time.Time) (bool, error)
	AssignOrderManually(ctx context.Context, orderID, agentID uuid.UUID, now time.Time) (bool, error)
	ReserveAgent(ctx context.Context, agentID uuid.UUID, tasks, capacity int, now time.Time) (bool, error)
	MarkAllocationFailed(ctx context.Context, orderID uuid.UUID, reason string, autoCancelAt *time.Time) (bool, error)
	CancelIfDue(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error)

	ListDueCandidates(ctx context.Context, now time.Time, limit int) ([]models.AgentCandidate, error)
	ListAutoCancelDue(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	ListUndispatched(ctx context.Context, limit int) ([]models.Order, error)
	ListCompanionCandidates(ctx context.Context, order models.Order, box geo.BoundingBox, from, to time.Time) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the dispatch repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	var agent models.Agent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&agent).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *repository) ListCandidates(ctx context.Context, orderID uuid.UUID) (Ledger, error) {
	var entries []models.AgentCandidate
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("sequence ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return Ledger(entries), nil
}

func (r *repository) ListBatchPending(ctx context.Context, batchID, agentID uuid.UUID) ([]models.AgentCandidate, error) {
	var entries []models.AgentCandidate
	if err := r.db.WithContext(ctx).
		Where("batch_id = ? AND agent_id = ? AND status = ?", batchID, agentID, enums.CandidateStatusPending).
		Order("sequence ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) CountPending(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.AgentCandidate{}).
		Where("order_id = ? AND status = ?", orderID, enums.CandidateStatusPending).
		Count(&n).Error
	return n, err
}

func snapshotJSON(snap models.AllocationSnapshot) (string, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (r *repository) StartDispatch(ctx context.Context, orderID uuid.UUID, snap models.AllocationSnapshot) (bool, error) {
	raw, err := snapshotJSON(snap)
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND assigned_agent_id IS NULL", orderID, enums.OrderStatusUnassigned).
		Updates(map[string]any{
			"dispatch_snapshot": raw,
			"allocation_method": snap.Method,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) AdvanceRound(ctx context.Context, orderID uuid.UUID, fromRound int, batchID *uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND dispatch_round = ? AND assigned_agent_id IS NULL AND status IN ?",
			orderID, fromRound, []enums.OrderStatus{enums.OrderStatusUnassigned, enums.OrderStatusOffering}).
		Updates(map[string]any{
			"status":         enums.OrderStatusOffering,
			"dispatch_round": fromRound + 1,
			"batch_id":       batchID,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) ClaimCompanion(ctx context.Context, companion models.Order, batchID uuid.UUID, snap models.AllocationSnapshot) (bool, error) {
	raw, err := snapshotJSON(snap)
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND batch_id IS NULL AND assigned_agent_id IS NULL AND dispatch_round = ?",
			companion.ID, enums.OrderStatusUnassigned, companion.DispatchRound).
		Updates(map[string]any{
			"status":            enums.OrderStatusOffering,
			"batch_id":          batchID,
			"dispatch_round":    companion.DispatchRound + 1,
			"dispatch_snapshot": raw,
			"allocation_method": snap.Method,
		})
	return res.RowsAffected == 1, res.Error
}

// ReleaseCompanions hands companions of a batch back to the pending drain
// and withdraws their open offers. The primary keeps driving its own rounds.
func (r *repository) ReleaseCompanions(ctx context.Context, batchID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("batch_id = ? AND id <> ? AND status = ? AND assigned_agent_id IS NULL",
			batchID, batchID, enums.OrderStatusOffering).
		Updates(map[string]any{
			"status":            enums.OrderStatusUnassigned,
			"batch_id":          nil,
			"dispatch_snapshot": nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if err := r.db.WithContext(ctx).
		Model(&models.AgentCandidate{}).
		Where("batch_id = ? AND order_id <> ? AND status = ?", batchID, batchID, enums.CandidateStatusPending).
		Updates(map[string]any{
			"status":               enums.CandidateStatusExpired,
			"is_current_candidate": false,
		}).Error; err != nil {
		return 0, err
	}
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", batchID).
		Update("batch_id", nil).Error
	return res.RowsAffected, err
}

func (r *repository) ClearCurrent(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.AgentCandidate{}).
		Where("order_id = ? AND is_current_candidate = ?", orderID, true).
		Update("is_current_candidate", false).Error
}

func (r *repository) CreateCandidates(ctx context.Context, entries []models.AgentCandidate) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

// AcceptCandidate is the first-committer-wins step: only a pending entry
// whose offer has not lapsed can be accepted.
func (r *repository) AcceptCandidate(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.AgentCandidate{}).
		Where("id = ? AND status = ? AND expires_at > ?", id, enums.CandidateStatusPending, now).
		Updates(map[string]any{
			"status":       enums.CandidateStatusAccepted,
			"responded_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) RejectCandidate(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.AgentCandidate{}).
		Where("id = ? AND status = ?", id, enums.CandidateStatusPending).
		Updates(map[string]any{
			"status":               enums.CandidateStatusRejected,
			"responded_at":         now,
			"is_current_candidate": false,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) ExpireCandidate(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.AgentCandidate{}).
		Where("id = ? AND status = ? AND expires_at <= ?", id, enums.CandidateStatusPending, now).
		Updates(map[string]any{
			"status":               enums.CandidateStatusExpired,
			"is_current_candidate": false,
		})
	return res.RowsAffected == 1, res.Error
}

// ExpirePending withdraws every pending offer of an order and returns the
// entries it withdrew.
func (r *repository) ExpirePending(ctx context.Context, orderID uuid.UUID, now time.Time) ([]models.AgentCandidate, error) {
	var pending []models.AgentCandidate
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.CandidateStatusPending).
		Find(&pending).Error; err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(pending))
	for _, c := range pending {
		ids = append(ids, c.ID)
	}
	err := r.db.WithContext(ctx).
		Model(&models.AgentCandidate{}).
		Where("id IN ? AND status = ?", ids, enums.CandidateStatusPending).
		Updates(map[string]any{
			"status":               enums.CandidateStatusExpired,
			"is_current_candidate": false,
		}).Error
	return pending, err
}

func (r *repository) AssignOrder(ctx context.Context, orderID, agentID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND assigned_agent_id IS NULL AND status = ?", orderID, enums.OrderStatusOffering).
		Updates(map[string]any{
			"status":            enums.OrderStatusAssigned,
			"assigned_agent_id": agentID,
			"assigned_at":       now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) AssignOrderManually(ctx context.Context, orderID, agentID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND assigned_agent_id IS NULL AND status IN ?", orderID, []enums.OrderStatus{
			enums.OrderStatusUnassigned, enums.OrderStatusOffering, enums.OrderStatusAllocationFailed,
		}).
		Updates(map[string]any{
			"status":            enums.OrderStatusAssigned,
			"assigned_agent_id": agentID,
			"assigned_at":       now,
			"allocation_method": enums.AllocationManual,
			"batch_id":          nil,
			"auto_cancel_at":    nil,
			"failure_reason":    nil,
		})
	return res.RowsAffected == 1, res.Error
}

// ReserveAgent books tasks on an available agent, marking it busy once it
// reaches capacity.
func (r *repository) ReserveAgent(ctx context.Context, agentID uuid.UUID, tasks, capacity int, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Agent{}).
		Where("id = ? AND status = ? AND active_tasks + ? <= ?", agentID, enums.AgentStatusAvailable, tasks, capacity).
		Updates(map[string]any{
			"active_tasks":     gorm.Expr("active_tasks + ?", tasks),
			"last_assigned_at": now,
			"status": gorm.Expr("CASE WHEN active_tasks + ? >= ? THEN ? ELSE status END",
				tasks, capacity, enums.AgentStatusBusy),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) MarkAllocationFailed(ctx context.Context, orderID uuid.UUID, reason string, autoCancelAt *time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND assigned_agent_id IS NULL AND status IN ?", orderID, []enums.OrderStatus{
			enums.OrderStatusUnassigned, enums.OrderStatusOffering,
		}).
		Updates(map[string]any{
			"status":         enums.OrderStatusAllocationFailed,
			"failure_reason": reason,
			"auto_cancel_at": autoCancelAt,
			"batch_id":       nil,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) CancelIfDue(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND assigned_agent_id IS NULL AND auto_cancel_at IS NOT NULL AND auto_cancel_at <= ?",
			orderID, enums.OrderStatusAllocationFailed, now).
		Updates(map[string]any{
			"status":      enums.OrderStatusCanceled,
			"canceled_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) ListDueCandidates(ctx context.Context, now time.Time, limit int) ([]models.AgentCandidate, error) {
	var entries []models.AgentCandidate
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", enums.CandidateStatusPending, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListAutoCancelDue(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	q := r.db.WithContext(ctx).
		Where("status = ? AND auto_cancel_at IS NOT NULL AND auto_cancel_at <= ?", enums.OrderStatusAllocationFailed, now).
		Order("auto_cancel_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListUndispatched returns orders that never entered dispatch, oldest first.
func (r *repository) ListUndispatched(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	q := r.db.WithContext(ctx).
		Where("status = ? AND assigned_agent_id IS NULL AND batch_id IS NULL AND dispatch_snapshot IS NULL",
			enums.OrderStatusUnassigned).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListCompanionCandidates(ctx context.Context, order models.Order, box geo.BoundingBox, from, to time.Time) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.WithContext(ctx).
		Where("id <> ? AND status = ? AND assigned_agent_id IS NULL AND batch_id IS NULL", order.ID, enums.OrderStatusUnassigned).
		Where("created_at >= ? AND created_at <= ?", from, to).
		Where("pickup_lat BETWEEN ? AND ? AND pickup_lng BETWEEN ? AND ?", box.MinLat, box.MaxLat, box.MinLng, box.MaxLng).
		Order("created_at ASC").
		Order("id ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
