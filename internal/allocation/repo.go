package allocation

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
)

// Repository persists the allocation settings singleton.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context) (*models.AllocationSettings, error)
	CreateIfMissing(ctx context.Context, settings *models.AllocationSettings) error
	Save(ctx context.Context, settings *models.AllocationSettings) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the settings repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context) (*models.AllocationSettings, error) {
	var settings models.AllocationSettings
	if err := r.db.WithContext(ctx).
		Where("id = ?", models.AllocationSettingsID).
		First(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *repository) CreateIfMissing(ctx context.Context, settings *models.AllocationSettings) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(settings).Error
}

func (r *repository) Save(ctx context.Context, settings *models.AllocationSettings) error {
	return r.db.WithContext(ctx).Save(settings).Error
}
