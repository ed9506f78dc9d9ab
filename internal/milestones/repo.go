package milestones

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
)

// Repository persists the reward ladder and per-agent progress.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ActiveRewards(ctx context.Context) ([]models.MilestoneReward, error)
	ListRewards(ctx context.Context) ([]models.MilestoneReward, error)
	MaxLevel(ctx context.Context) (int, error)
	CreateReward(ctx context.Context, reward *models.MilestoneReward) error
	FindProgress(ctx context.Context, agentID uuid.UUID) (*models.AgentMilestoneProgress, error)
	CreateProgress(ctx context.Context, progress *models.AgentMilestoneProgress) error
	UpdateProgress(ctx context.Context, progress *models.AgentMilestoneProgress, expectedVersion int64) (bool, error)
	CreditDelivery(ctx context.Context, credit *models.MilestoneDeliveryCredit) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the milestone repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ActiveRewards(ctx context.Context) ([]models.MilestoneReward, error) {
	var rewards []models.MilestoneReward
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("level ASC").Find(&rewards).Error
	return rewards, err
}

func (r *repository) ListRewards(ctx context.Context) ([]models.MilestoneReward, error) {
	var rewards []models.MilestoneReward
	err := r.db.WithContext(ctx).Order("level ASC").Find(&rewards).Error
	return rewards, err
}

func (r *repository) MaxLevel(ctx context.Context) (int, error) {
	var level int
	err := r.db.WithContext(ctx).
		Model(&models.MilestoneReward{}).
		Select("COALESCE(MAX(level), 0)").
		Scan(&level).Error
	return level, err
}

func (r *repository) CreateReward(ctx context.Context, reward *models.MilestoneReward) error {
	return r.db.WithContext(ctx).Create(reward).Error
}

func (r *repository) FindProgress(ctx context.Context, agentID uuid.UUID) (*models.AgentMilestoneProgress, error) {
	var progress models.AgentMilestoneProgress
	if err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).First(&progress).Error; err != nil {
		return nil, err
	}
	return &progress, nil
}

func (r *repository) CreateProgress(ctx context.Context, progress *models.AgentMilestoneProgress) error {
	return r.db.WithContext(ctx).Create(progress).Error
}

// UpdateProgress writes the levels only if the stored version still matches
// expectedVersion. It reports false when another writer got there first.
func (r *repository) UpdateProgress(ctx context.Context, progress *models.AgentMilestoneProgress, expectedVersion int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.AgentMilestoneProgress{}).
		Where("id = ? AND version = ?", progress.ID, expectedVersion).
		Select("levels", "version", "updated_at").
		Updates(&models.AgentMilestoneProgress{
			Levels:  progress.Levels,
			Version: expectedVersion + 1,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	progress.Version = expectedVersion + 1
	return true, nil
}

// CreditDelivery claims the order for milestone counting. It reports false
// when the order was credited before.
func (r *repository) CreditDelivery(ctx context.Context, credit *models.MilestoneDeliveryCredit) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(credit)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
