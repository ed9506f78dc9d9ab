package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/courier-dispatch/api/responses"
	"github.com/angelmondragon/courier-dispatch/api/validators"
	"github.com/angelmondragon/courier-dispatch/internal/allocation"
	"github.com/angelmondragon/courier-dispatch/internal/commission"
	"github.com/angelmondragon/courier-dispatch/internal/earnings"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

type quoteRequest struct {
	CityID      *uuid.UUID      `json:"cityId"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	FinalAmount decimal.Decimal `json:"finalAmount"`
}

func GetAllocationSettings(svc allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := svc.GetOrCreateDefault(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, settings)
	}
}

// UpdateAllocationSettings applies a partial update. Orders already in
// dispatch keep the settings they were frozen with.
func UpdateAllocationSettings(svc allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req allocation.UpdateSettingsInput
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		settings, err := svc.Update(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, settings)
	}
}

func ListEarningSettings(svc earnings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListSettings(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func UpsertEarningSetting(svc earnings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req earnings.SettingInput
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		setting, err := svc.UpsertSetting(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, setting)
	}
}

func ListCommissionSettings(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListSettings(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func UpsertCommissionSetting(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commission.SettingInput
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		setting, err := svc.UpsertSetting(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, setting)
	}
}

// RecordOrderCommission books the merchant split for a delivered order.
// Repeats return the stored split.
func RecordOrderCommission(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.RecordForOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, res)
	}
}

// QuoteCommission previews the split for a merchant without recording it.
func QuoteCommission(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, err := validators.PathUUID(r, "merchantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req quoteRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.FinalAmount.IsNegative() || req.Subtotal.IsNegative() || req.Tax.IsNegative() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amounts must not be negative"))
			return
		}
		quote, err := svc.Quote(r.Context(), merchantID, req.CityID, commission.Totals{
			Subtotal:    req.Subtotal,
			Tax:         req.Tax,
			FinalAmount: req.FinalAmount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}
