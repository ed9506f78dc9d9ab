package earnings

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/pagination"
)

// Repository persists fee settings, surge zones and agent earnings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveSetting(ctx context.Context, scope enums.SettingScope, refID *uuid.UUID) (*models.AgentEarningSetting, error)
	FindSetting(ctx context.Context, scope enums.SettingScope, refID *uuid.UUID) (*models.AgentEarningSetting, error)
	SaveSetting(ctx context.Context, setting *models.AgentEarningSetting) error
	ListSettings(ctx context.Context) ([]models.AgentEarningSetting, error)
	ListSurgeZones(ctx context.Context, cityID *uuid.UUID) ([]models.SurgeZone, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.AgentEarning, error)
	Create(ctx context.Context, earning *models.AgentEarning) error
	Save(ctx context.Context, earning *models.AgentEarning) error
	ListByAgent(ctx context.Context, agentID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.AgentEarning, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the earnings repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func scoped(q *gorm.DB, scope enums.SettingScope, refID *uuid.UUID) *gorm.DB {
	q = q.Where("scope = ?", scope)
	if refID == nil {
		return q.Where("scope_ref_id IS NULL")
	}
	return q.Where("scope_ref_id = ?", *refID)
}

func (r *repository) FindActiveSetting(ctx context.Context, scope enums.SettingScope, refID *uuid.UUID) (*models.AgentEarningSetting, error) {
	var setting models.AgentEarningSetting
	q := scoped(r.db.WithContext(ctx), scope, refID).Where("is_active = ?", true)
	if err := q.First(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *repository) FindSetting(ctx context.Context, scope enums.SettingScope, refID *uuid.UUID) (*models.AgentEarningSetting, error) {
	var setting models.AgentEarningSetting
	if err := scoped(r.db.WithContext(ctx), scope, refID).First(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}

// SaveSetting inserts new rows with every column so an inactive setting is
// not swapped for the column default.
func (r *repository) SaveSetting(ctx context.Context, setting *models.AgentEarningSetting) error {
	if setting.ID == uuid.Nil {
		return r.db.WithContext(ctx).Select("*").Create(setting).Error
	}
	return r.db.WithContext(ctx).Save(setting).Error
}

func (r *repository) ListSettings(ctx context.Context) ([]models.AgentEarningSetting, error) {
	var settings []models.AgentEarningSetting
	err := r.db.WithContext(ctx).
		Order("scope ASC").
		Order("created_at ASC").
		Find(&settings).Error
	return settings, err
}

// ListSurgeZones returns active zones of the city plus city-less zones.
func (r *repository) ListSurgeZones(ctx context.Context, cityID *uuid.UUID) ([]models.SurgeZone, error) {
	q := r.db.WithContext(ctx).Where("is_active = ?", true)
	if cityID == nil {
		q = q.Where("city_id IS NULL")
	} else {
		q = q.Where("(city_id IS NULL OR city_id = ?)", *cityID)
	}
	var zones []models.SurgeZone
	err := q.Order("created_at ASC").Find(&zones).Error
	return zones, err
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.AgentEarning, error) {
	var earning models.AgentEarning
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&earning).Error; err != nil {
		return nil, err
	}
	return &earning, nil
}

func (r *repository) Create(ctx context.Context, earning *models.AgentEarning) error {
	return r.db.WithContext(ctx).Create(earning).Error
}

func (r *repository) Save(ctx context.Context, earning *models.AgentEarning) error {
	return r.db.WithContext(ctx).Save(earning).Error
}

func (r *repository) ListByAgent(ctx context.Context, agentID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.AgentEarning, error) {
	var rows []models.AgentEarning
	err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Scopes(pagination.Newest(cursor, limit)).
		Find(&rows).Error
	return rows, err
}
