package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

// Service owns the allocation settings singleton.
type Service interface {
	GetOrCreateDefault(ctx context.Context) (*models.AllocationSettings, error)
	Update(ctx context.Context, input UpdateSettingsInput) (*models.AllocationSettings, error)
	Snapshot(ctx context.Context, at time.Time) (*Snapshot, error)
}

// UpdateSettingsInput is a partial update. Parameters replaces the bag of
// each method it names and leaves the others alone.
type UpdateSettingsInput struct {
	IsAutoAllocationEnabled *bool                                     `json:"isAutoAllocationEnabled"`
	Method                  *enums.AllocationMethod                   `json:"method"`
	Parameters              map[enums.AllocationMethod]map[string]any `json:"parameters"`
}

// Snapshot is the settings view a single dispatch runs against.
type Snapshot struct {
	AutoAllocationEnabled bool
	Frozen                models.AllocationSnapshot
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds the settings service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("allocation repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, logg: logg}, nil
}

// DefaultSettings is the row created on first access.
func DefaultSettings() *models.AllocationSettings {
	return &models.AllocationSettings{
		ID:                      models.AllocationSettingsID,
		IsAutoAllocationEnabled: true,
		Method:                  enums.AllocationOneByOne,
		Parameters:              datatypes.JSONMap{},
	}
}

func (s *service) GetOrCreateDefault(ctx context.Context) (*models.AllocationSettings, error) {
	settings, err := s.repo.Find(ctx)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load allocation settings")
	}

	if err := s.repo.CreateIfMissing(ctx, DefaultSettings()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create default allocation settings")
	}
	s.logg.Info(ctx, "allocation settings initialized with defaults")

	settings, err = s.repo.Find(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload allocation settings")
	}
	return settings, nil
}

func (s *service) Update(ctx context.Context, input UpdateSettingsInput) (*models.AllocationSettings, error) {
	settings, err := s.GetOrCreateDefault(ctx)
	if err != nil {
		return nil, err
	}

	if input.Method != nil {
		if !input.Method.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid allocation method %q", *input.Method))
		}
		settings.Method = *input.Method
	}
	if input.IsAutoAllocationEnabled != nil {
		settings.IsAutoAllocationEnabled = *input.IsAutoAllocationEnabled
	}

	if settings.Parameters == nil {
		settings.Parameters = datatypes.JSONMap{}
	}
	for method, bag := range input.Parameters {
		if !method.IsAutomatic() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("method %q takes no parameters", method))
		}
		if _, err := ResolveParameters(method, bag); err != nil {
			return nil, err
		}
		settings.Parameters[string(method)] = bag
	}

	// the selected method must still resolve against its stored bag
	if settings.Method.IsAutomatic() {
		if _, err := ResolveParameters(settings.Method, settings.ParametersFor(settings.Method)); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Save(ctx, settings); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save allocation settings")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"method":          settings.Method,
		"auto_allocation": settings.IsAutoAllocationEnabled,
	})
	s.logg.Info(logCtx, "allocation settings updated")
	return settings, nil
}

func (s *service) Snapshot(ctx context.Context, at time.Time) (*Snapshot, error) {
	settings, err := s.GetOrCreateDefault(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		AutoAllocationEnabled: settings.IsAutoAllocationEnabled,
		Frozen: models.AllocationSnapshot{
			Method:     settings.Method,
			Parameters: map[string]any{},
			CapturedAt: at.UTC(),
		},
	}
	if !settings.Method.IsAutomatic() {
		return snap, nil
	}

	params, err := ResolveParameters(settings.Method, settings.ParametersFor(settings.Method))
	if err != nil {
		return nil, err
	}
	snap.Frozen.Parameters = params
	return snap, nil
}
