package commission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/db"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/validation"
)

// Service computes and records the platform commission on orders.
type Service interface {
	Resolve(ctx context.Context, merchantID uuid.UUID, cityID *uuid.UUID) (*models.CommissionSetting, error)
	Quote(ctx context.Context, merchantID uuid.UUID, cityID *uuid.UUID, totals Totals) (*Quote, error)
	RecordForOrder(ctx context.Context, orderID uuid.UUID) (*RecordResult, error)
	UpsertSetting(ctx context.Context, input SettingInput) (*models.CommissionSetting, error)
	ListSettings(ctx context.Context) ([]models.CommissionSetting, error)
}

// Quote is a commission split and the setting that produced it.
type Quote struct {
	Split
	SettingID uuid.UUID          `json:"settingId"`
	Scope     enums.SettingScope `json:"scope"`
}

// RecordResult wraps the stored merchant earning. Created is false when the
// order was already split.
type RecordResult struct {
	Earning *models.MerchantEarning `json:"earning"`
	Created bool                    `json:"created"`
}

// SettingInput creates or replaces the commission setting of one scope.
type SettingInput struct {
	Scope          enums.SettingScope   `json:"scope" validate:"required"`
	ScopeRefID     *uuid.UUID           `json:"scopeRefId"`
	CommissionType enums.CommissionType `json:"commissionType" validate:"required"`
	Value          decimal.Decimal      `json:"value" validate:"gte=0"`
	Base           enums.CommissionBase `json:"base"`
	IsActive       *bool                `json:"isActive"`
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds the commission service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("commission repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Resolve(ctx context.Context, merchantID uuid.UUID, cityID *uuid.UUID) (*models.CommissionSetting, error) {
	lookups := []struct {
		scope enums.SettingScope
		ref   *uuid.UUID
	}{
		{enums.ScopeMerchant, &merchantID},
		{enums.ScopeCity, cityID},
		{enums.ScopeGlobal, nil},
	}
	for _, l := range lookups {
		if l.scope != enums.ScopeGlobal && (l.ref == nil || *l.ref == uuid.Nil) {
			continue
		}
		setting, err := s.repo.FindActiveSetting(ctx, l.scope, l.ref)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission setting")
		}
		return setting, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no commission setting configured")
}

func (s *service) Quote(ctx context.Context, merchantID uuid.UUID, cityID *uuid.UUID, totals Totals) (*Quote, error) {
	setting, err := s.Resolve(ctx, merchantID, cityID)
	if err != nil {
		return nil, err
	}
	split := Calculate(Rule{Type: setting.CommissionType, Value: setting.Value, Base: setting.Base}, totals)
	return &Quote{Split: split, SettingID: setting.ID, Scope: setting.Scope}, nil
}

func (s *service) RecordForOrder(ctx context.Context, orderID uuid.UUID) (*RecordResult, error) {
	existing, err := s.repo.FindEarning(ctx, orderID)
	if err == nil {
		return &RecordResult{Earning: existing}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load merchant earning")
	}

	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	quote, err := s.Quote(ctx, order.MerchantID, order.CityID, Totals{
		Subtotal:    order.SubtotalAmount,
		Tax:         order.TaxAmount,
		FinalAmount: order.FinalAmount,
	})
	if err != nil {
		return nil, err
	}

	earning := &models.MerchantEarning{
		OrderID:            order.ID,
		MerchantID:         order.MerchantID,
		SettingID:          quote.SettingID,
		CommissionBase:     quote.CommissionBase,
		CommissionAmount:   quote.CommissionAmount,
		MerchantNetEarning: quote.MerchantNetEarning,
	}
	if err := s.repo.CreateEarning(ctx, earning); err != nil {
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create merchant earning")
		}
		existing, findErr := s.repo.FindEarning(ctx, orderID)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload merchant earning")
		}
		return &RecordResult{Earning: existing}, nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":   order.ID.String(),
		"commission": earning.CommissionAmount.String(),
		"scope":      quote.Scope,
	})
	s.logg.Info(logCtx, "merchant earning recorded")
	return &RecordResult{Earning: earning, Created: true}, nil
}

func (s *service) UpsertSetting(ctx context.Context, input SettingInput) (*models.CommissionSetting, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if input.Base == "" {
		input.Base = enums.CommissionBaseSubtotal
	}
	if err := validateSetting(input); err != nil {
		return nil, err
	}

	setting, err := s.repo.FindSetting(ctx, input.Scope, input.ScopeRefID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		setting = &models.CommissionSetting{Scope: input.Scope, ScopeRefID: input.ScopeRefID, IsActive: true}
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission setting")
	}

	setting.CommissionType = input.CommissionType
	setting.Value = input.Value
	setting.Base = input.Base
	if input.IsActive != nil {
		setting.IsActive = *input.IsActive
	}
	if err := s.repo.SaveSetting(ctx, setting); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save commission setting")
	}
	return setting, nil
}

func (s *service) ListSettings(ctx context.Context) ([]models.CommissionSetting, error) {
	settings, err := s.repo.ListSettings(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commission settings")
	}
	return settings, nil
}

func validateSetting(input SettingInput) error {
	details := map[string]string{}
	if !input.Scope.IsValid() {
		details["scope"] = "is invalid"
	} else if input.Scope == enums.ScopeGlobal && input.ScopeRefID != nil {
		details["scopeRefId"] = "must be empty for global settings"
	} else if input.Scope != enums.ScopeGlobal && (input.ScopeRefID == nil || *input.ScopeRefID == uuid.Nil) {
		details["scopeRefId"] = "is required"
	}
	if !input.CommissionType.IsValid() {
		details["commissionType"] = "is invalid"
	}
	if !input.Base.IsValid() {
		details["base"] = "is invalid"
	}
	if input.CommissionType == enums.CommissionTypePercentage && input.Value.GreaterThan(hundred) {
		details["value"] = "must be at most 100"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid commission setting").WithDetails(details)
	}
	return nil
}
