package earnings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/config"
	"github.com/angelmondragon/courier-dispatch/pkg/db"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/geo"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/pagination"
	"github.com/angelmondragon/courier-dispatch/pkg/validation"
)

// FallbackDefaultFee is recorded on earnings priced from the configured
// defaults because no fee setting matched.
const FallbackDefaultFee = "no active fee setting at merchant, city or global scope; configured defaults applied"

// Service prices completed deliveries and owns the fee settings.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*RecordResult, error)
	ApplyIncentive(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*models.AgentEarning, error)
	ResolveSetting(ctx context.Context, merchantID uuid.UUID, cityID *uuid.UUID) (*ResolvedSetting, error)
	UpsertSetting(ctx context.Context, input SettingInput) (*models.AgentEarningSetting, error)
	ListSettings(ctx context.Context) ([]models.AgentEarningSetting, error)
	ListAgentEarnings(ctx context.Context, agentID uuid.UUID, params pagination.Params) (*pagination.Page[models.AgentEarning], error)
}

// RecordInput describes a completed delivery.
type RecordInput struct {
	OrderID     uuid.UUID
	AgentID     uuid.UUID
	MerchantID  uuid.UUID
	CityID      *uuid.UUID
	DistanceKm  float64
	Drop        geo.Point
	Tip         decimal.Decimal
	Raining     bool
	OnTime      bool
	DeliveredAt time.Time
}

// RecordResult carries the stored earning. Created is false when the order
// already had one.
type RecordResult struct {
	Earning *models.AgentEarning
	Created bool
}

// ResolvedSetting is the fee configuration chosen for a delivery.
type ResolvedSetting struct {
	Scope          enums.SettingScope
	SettingID      uuid.UUID
	Fee            FeeConfig
	PeakHours      []string
	FallbackReason *string
}

// SettingInput creates or replaces the setting of one scope.
type SettingInput struct {
	Scope              enums.SettingScope `json:"scope" validate:"required"`
	ScopeRefID         *uuid.UUID         `json:"scopeRefId"`
	BaseFee            decimal.Decimal    `json:"baseFee" validate:"gte=0"`
	BaseKm             decimal.Decimal    `json:"baseKm" validate:"gte=0"`
	PerKmFeeBeyondBase decimal.Decimal    `json:"perKmFeeBeyondBase" validate:"gte=0"`
	PeakHourBonus      decimal.Decimal    `json:"peakHourBonus" validate:"gte=0"`
	PeakHours          []string           `json:"peakHours"`
	RainBonus          decimal.Decimal    `json:"rainBonus" validate:"gte=0"`
	IsActive           *bool              `json:"isActive"`
}

// ServiceParams wires the earnings service.
type ServiceParams struct {
	Repo     Repository
	Config   config.EarningsConfig
	Location *time.Location
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     Repository
	cfg      config.EarningsConfig
	location *time.Location
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the earnings service.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("earnings repository required")
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = db.UTCNow
	}
	return &service{repo: p.Repo, cfg: p.Config, location: p.Location, logg: p.Logger, now: p.Now}, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (*RecordResult, error) {
	if input.OrderID == uuid.Nil || input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and agent are required")
	}
	if input.DistanceKm < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "distance must not be negative")
	}

	existing, err := s.repo.FindByOrder(ctx, input.OrderID)
	if err == nil {
		return &RecordResult{Earning: existing}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent earning")
	}

	resolved, err := s.ResolveSetting(ctx, input.MerchantID, input.CityID)
	if err != nil {
		return nil, err
	}

	at := input.DeliveredAt
	if at.IsZero() {
		at = s.now()
	}
	surges, err := s.surgesAt(ctx, input.CityID, input.Drop, at)
	if err != nil {
		return nil, err
	}

	breakdown := Calculate(Input{
		DistanceKm: decimal.NewFromFloat(input.DistanceKm),
		Fee:        resolved.Fee,
		Surges:     surges,
		Tip:        input.Tip,
		PeakHour:   PeakApplies(resolved.PeakHours, at.In(s.location)),
		Raining:    input.Raining,
	})

	earning := &models.AgentEarning{
		AgentID:              input.AgentID,
		OrderID:              input.OrderID,
		BaseDeliveryFee:      breakdown.BaseDeliveryFee,
		DistanceKm:           breakdown.DistanceKm,
		DistanceBeyondBaseKm: breakdown.DistanceBeyondBaseKm,
		ExtraDistanceFee:     breakdown.ExtraDistanceFee,
		SurgeAmount:          breakdown.SurgeAmount,
		BonusAmount:          breakdown.BonusAmount(),
		TipAmount:            breakdown.TipAmount,
		IncentiveAmount:      decimal.Zero,
		PayoutStatus:         enums.PayoutStatusPending,
		SettingScope:         resolved.Scope,
		SettingID:            resolved.SettingID,
		FallbackReason:       resolved.FallbackReason,
		OnTime:               input.OnTime,
		EarnedAt:             at.UTC(),
	}
	if err := s.repo.Create(ctx, earning); err != nil {
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create agent earning")
		}
		// a concurrent completion won the insert
		existing, findErr := s.repo.FindByOrder(ctx, input.OrderID)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload agent earning")
		}
		return &RecordResult{Earning: existing}, nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":      input.OrderID.String(),
		"agent_id":      input.AgentID.String(),
		"setting_scope": resolved.Scope,
		"total":         earning.TotalEarning.String(),
	})
	if resolved.FallbackReason != nil {
		s.logg.Warn(logCtx, "agent earning priced from fallback defaults")
	} else {
		s.logg.Info(logCtx, "agent earning recorded")
	}
	return &RecordResult{Earning: earning, Created: true}, nil
}

func (s *service) surgesAt(ctx context.Context, cityID *uuid.UUID, drop geo.Point, at time.Time) ([]Surge, error) {
	zones, err := s.repo.ListSurgeZones(ctx, cityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load surge zones")
	}
	var surges []Surge
	for _, zone := range zones {
		if !zone.ActiveAt(at) {
			continue
		}
		if geo.HaversineKm(zone.Center(), drop) > zone.RadiusKm {
			continue
		}
		surges = append(surges, Surge{Type: zone.SurgeType, Value: zone.SurgeValue})
	}
	return surges, nil
}

// ResolveSetting picks the merchant setting, then the city one, then the
// global one.
func (s *service) ResolveSetting(ctx context.Context, merchantID uuid.UUID, cityID *uuid.UUID) (*ResolvedSetting, error) {
	type tier struct {
		scope enums.SettingScope
		ref   *uuid.UUID
	}
	var tiers []tier
	if merchantID != uuid.Nil {
		tiers = append(tiers, tier{enums.ScopeMerchant, &merchantID})
	}
	if cityID != nil {
		tiers = append(tiers, tier{enums.ScopeCity, cityID})
	}
	tiers = append(tiers, tier{enums.ScopeGlobal, nil})

	for _, t := range tiers {
		setting, err := s.repo.FindActiveSetting(ctx, t.scope, t.ref)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load earning setting")
		}
		return &ResolvedSetting{
			Scope:     setting.Scope,
			SettingID: setting.ID,
			Fee: FeeConfig{
				BaseFee:            setting.BaseFee,
				BaseKm:             setting.BaseKm,
				PerKmFeeBeyondBase: setting.PerKmFeeBeyondBase,
				PeakHourBonus:      setting.PeakHourBonus,
				RainBonus:          setting.RainBonus,
			},
			PeakHours: setting.PeakHours,
		}, nil
	}

	if !s.cfg.FallbackGlobal {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no earning setting configured").
			WithDetails(map[string]any{"merchant_id": merchantID, "city_id": cityID})
	}
	reason := FallbackDefaultFee
	return &ResolvedSetting{
		Scope:     enums.ScopeGlobal,
		SettingID: uuid.Nil,
		Fee: FeeConfig{
			BaseFee:            s.cfg.DefaultBaseFee,
			BaseKm:             s.cfg.DefaultBaseKm,
			PerKmFeeBeyondBase: s.cfg.DefaultPerKmFee,
			PeakHourBonus:      decimal.Zero,
			RainBonus:          decimal.Zero,
		},
		FallbackReason: &reason,
	}, nil
}

func (s *service) ApplyIncentive(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*models.AgentEarning, error) {
	if amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "incentive amount must not be negative")
	}
	earning, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "agent earning not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent earning")
	}
	if earning.PayoutStatus == enums.PayoutStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "earning already paid out").WithReason(pkgerrors.ReasonAlreadyPaid)
	}
	earning.IncentiveAmount = earning.IncentiveAmount.Add(amount)
	if err := s.repo.Save(ctx, earning); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save agent earning")
	}
	return earning, nil
}

func (s *service) UpsertSetting(ctx context.Context, input SettingInput) (*models.AgentEarningSetting, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if err := validateScope(input.Scope, input.ScopeRefID); err != nil {
		return nil, err
	}
	for _, raw := range input.PeakHours {
		if _, err := ParsePeakWindow(raw); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid peak hours").
				WithDetails(map[string]string{"peakHours": err.Error()})
		}
	}

	setting, err := s.repo.FindSetting(ctx, input.Scope, input.ScopeRefID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		setting = &models.AgentEarningSetting{Scope: input.Scope, ScopeRefID: input.ScopeRefID, IsActive: true}
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load earning setting")
	}

	setting.BaseFee = input.BaseFee
	setting.BaseKm = input.BaseKm
	setting.PerKmFeeBeyondBase = input.PerKmFeeBeyondBase
	setting.PeakHourBonus = input.PeakHourBonus
	setting.PeakHours = input.PeakHours
	setting.RainBonus = input.RainBonus
	if input.IsActive != nil {
		setting.IsActive = *input.IsActive
	}
	if err := s.repo.SaveSetting(ctx, setting); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save earning setting")
	}
	return setting, nil
}

func (s *service) ListSettings(ctx context.Context) ([]models.AgentEarningSetting, error) {
	settings, err := s.repo.ListSettings(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list earning settings")
	}
	return settings, nil
}

// validateScope checks that global rows carry no reference and scoped rows do.
func validateScope(scope enums.SettingScope, ref *uuid.UUID) error {
	if !scope.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid scope %q", scope))
	}
	if scope == enums.ScopeGlobal && ref != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "global settings take no scope reference")
	}
	if scope != enums.ScopeGlobal && (ref == nil || *ref == uuid.Nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s settings require a scope reference", scope))
	}
	return nil
}

// ListAgentEarnings pages through an agent's earnings, newest first.
func (s *service) ListAgentEarnings(ctx context.Context, agentID uuid.UUID, params pagination.Params) (*pagination.Page[models.AgentEarning], error) {
	if agentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByAgent(ctx, agentID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agent earnings")
	}
	page := pagination.Build(rows, params.Limit, func(e models.AgentEarning) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return &page, nil
}
