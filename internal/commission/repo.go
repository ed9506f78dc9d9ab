package commission

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// Repository persists commission settings and merchant earnings.
type Repository interface {
	FindActiveSetting(ctx context.Context, scope enums.SettingScope, refID *uuid.UUID) (*models.CommissionSetting, error)
	FindSetting(ctx context.Context, scope enums.SettingScope, refID *uuid.UUID) (*models.CommissionSetting, error)
	SaveSetting(ctx context.Context, setting *models.CommissionSetting) error
	ListSettings(ctx context.Context) ([]models.CommissionSetting, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindEarning(ctx context.Context, orderID uuid.UUID) (*models.MerchantEarning, error)
	CreateEarning(ctx context.Context, earning *models.MerchantEarning) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the commission repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) settingQuery(ctx context.Context, scope enums.SettingScope, refID *uuid.UUID) *gorm.DB {
	q := r.db.WithContext(ctx).Where("scope = ?", scope)
	if refID == nil {
		return q.Where("scope_ref_id IS NULL")
	}
	return q.Where("scope_ref_id = ?", *refID)
}

func (r *repository) FindActiveSetting(ctx context.Context, scope enums.SettingScope, refID *uuid.UUID) (*models.CommissionSetting, error) {
	var setting models.CommissionSetting
	if err := r.settingQuery(ctx, scope, refID).Where("is_active = ?", true).First(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *repository) FindSetting(ctx context.Context, scope enums.SettingScope, refID *uuid.UUID) (*models.CommissionSetting, error) {
	var setting models.CommissionSetting
	if err := r.settingQuery(ctx, scope, refID).First(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *repository) SaveSetting(ctx context.Context, setting *models.CommissionSetting) error {
	if setting.ID == uuid.Nil {
		return r.db.WithContext(ctx).Select("*").Create(setting).Error
	}
	return r.db.WithContext(ctx).Save(setting).Error
}

func (r *repository) ListSettings(ctx context.Context) ([]models.CommissionSetting, error) {
	var settings []models.CommissionSetting
	err := r.db.WithContext(ctx).Order("scope ASC").Order("created_at ASC").Find(&settings).Error
	return settings, err
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindEarning(ctx context.Context, orderID uuid.UUID) (*models.MerchantEarning, error) {
	var earning models.MerchantEarning
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&earning).Error; err != nil {
		return nil, err
	}
	return &earning, nil
}

func (r *repository) CreateEarning(ctx context.Context, earning *models.MerchantEarning) error {
	return r.db.WithContext(ctx).Create(earning).Error
}
