package incentives

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/pagination"
)

// AgentTotals are one agent's aggregated earnings inside a period.
type AgentTotals struct {
	AgentID    uuid.UUID       `gorm:"column:agent_id"`
	Earnings   decimal.Decimal `gorm:"column:earnings"`
	Deliveries int64           `gorm:"column:deliveries"`
}

// Repository reads plans and earnings and writes incentive rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ActivePlans(ctx context.Context, at time.Time) ([]models.IncentivePlan, error)
	ListPlans(ctx context.Context) ([]models.IncentivePlan, error)
	CreatePlan(ctx context.Context, plan *models.IncentivePlan) error
	AggregateEarnings(ctx context.Context, from, to time.Time, cityID *uuid.UUID) ([]AgentTotals, error)
	UpsertUnpaid(ctx context.Context, row *models.AgentIncentiveEarning) (bool, error)
	ListEarnings(ctx context.Context, filter EarningFilter, cursor *pagination.Cursor, limit int) ([]models.AgentIncentiveEarning, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the incentive repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ActivePlans(ctx context.Context, at time.Time) ([]models.IncentivePlan, error) {
	var plans []models.IncentivePlan
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("valid_from <= ?", at).
		Where("(valid_to IS NULL OR valid_to >= ?)", at).
		Order("created_at ASC").
		Find(&plans).Error
	return plans, err
}

func (r *repository) ListPlans(ctx context.Context) ([]models.IncentivePlan, error) {
	var plans []models.IncentivePlan
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&plans).Error
	return plans, err
}

func (r *repository) CreatePlan(ctx context.Context, plan *models.IncentivePlan) error {
	return r.db.WithContext(ctx).Select("*").Create(plan).Error
}

// AggregateEarnings sums the base and extra-distance components per agent for
// earnings in [from, to). A city restricts the sum to that city's agents.
func (r *repository) AggregateEarnings(ctx context.Context, from, to time.Time, cityID *uuid.UUID) ([]AgentTotals, error) {
	q := r.db.WithContext(ctx).
		Table("agent_earnings").
		Select("agent_earnings.agent_id AS agent_id, "+
			"SUM(agent_earnings.base_delivery_fee + agent_earnings.extra_distance_fee) AS earnings, "+
			"COUNT(*) AS deliveries").
		Where("agent_earnings.earned_at >= ? AND agent_earnings.earned_at < ?", from, to)
	if cityID != nil {
		q = q.Joins("JOIN agents ON agents.id = agent_earnings.agent_id").
			Where("agents.city_id = ?", *cityID)
	}
	var totals []AgentTotals
	err := q.Group("agent_earnings.agent_id").
		Order("agent_earnings.agent_id ASC").
		Scan(&totals).Error
	return totals, err
}

// UpsertUnpaid inserts the row or overwrites the computed columns of the
// existing one. Rows already paid out are left untouched and report false.
func (r *repository) UpsertUnpaid(ctx context.Context, row *models.AgentIncentiveEarning) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "agent_id"}, {Name: "plan_id"}, {Name: "period_identifier"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"period_start", "period_end", "earnings_in_window", "delivery_count",
				"incentive_amount", "computed_at", "updated_at",
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Neq{Column: clause.Column{Table: "agent_incentive_earnings", Name: "payout_status"}, Value: enums.PayoutStatusPaid},
			}},
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// EarningFilter narrows the incentive earnings listing. Zero fields match all.
type EarningFilter struct {
	PlanID  uuid.UUID
	AgentID uuid.UUID
	Period  string
}

func (r *repository) ListEarnings(ctx context.Context, filter EarningFilter, cursor *pagination.Cursor, limit int) ([]models.AgentIncentiveEarning, error) {
	q := r.db.WithContext(ctx).Model(&models.AgentIncentiveEarning{})
	if filter.PlanID != uuid.Nil {
		q = q.Where("plan_id = ?", filter.PlanID)
	}
	if filter.AgentID != uuid.Nil {
		q = q.Where("agent_id = ?", filter.AgentID)
	}
	if filter.Period != "" {
		q = q.Where("period_identifier = ?", filter.Period)
	}
	var rows []models.AgentIncentiveEarning
	err := q.Scopes(pagination.Newest(cursor, limit)).Find(&rows).Error
	return rows, err
}
